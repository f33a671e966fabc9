package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/runtime"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WithTracking attaches the request id, logger, tracer and metrics factory to
// the request's user context and opens a server span continuing any incoming
// trace.
func WithTracking(logger log.Logger, tracer trace.Tracer, factory *metrics.Factory) fiber.Handler {
	if logger == nil {
		logger = log.NewNop()
	}

	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.Must(uuid.NewV7()).String()
			c.Request().Header.Set(HeaderRequestID, requestID)
		}

		c.Set(HeaderRequestID, requestID)

		headers := http.Header{}
		for k, vs := range c.GetReqHeaders() {
			for _, v := range vs {
				headers.Add(k, v)
			}
		}

		ctx := tracking.ExtractHTTPContext(c.UserContext(), headers)
		ctx = tracking.ContextWithRequestID(ctx, requestID)
		ctx = tracking.ContextWithLogger(ctx, logger.With(log.String("request_id", requestID)))

		if tracer != nil {
			ctx = tracking.ContextWithTracer(ctx, tracer)
		}

		if factory != nil {
			ctx = tracking.ContextWithMetrics(ctx, factory)
		}

		_, spanTracer, _, _ := tracking.NewTrackingFromContext(ctx)

		ctx, span := spanTracer.Start(ctx, c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.SetUserContext(ctx)

		err := c.Next()

		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.status_code", c.Response().StatusCode()),
		)

		return err
	}
}

// RequestInfo is the access-log record of one request.
type RequestInfo struct {
	Method        string
	URI           string
	Referer       string
	RemoteAddress string
	Protocol      string
	UserAgent     string
	RequestID     string
	Status        int
	Size          int
	Date          time.Time
	Duration      time.Duration
}

// CLFString renders r in a Common Log Format style line.
func (r *RequestInfo) CLFString() string {
	return strings.Join([]string{
		r.RemoteAddress,
		"-",
		r.Protocol,
		r.Date.Format("[02/Jan/2006:15:04:05 -0700]"),
		`"` + r.Method + " " + r.URI + `"`,
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Size),
		r.Referer,
		r.UserAgent,
	}, " ")
}

// WithHTTPLogging logs one access line per request. Health probes are skipped.
// It must run after WithTracking so the request logger is available.
func WithHTTPLogging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/health") {
			return c.Next()
		}

		referer := c.Get(fiber.HeaderReferer)
		if referer == "" {
			referer = "-"
		}

		info := &RequestInfo{
			Method:        c.Method(),
			URI:           c.OriginalURL(),
			Referer:       referer,
			RemoteAddress: c.IP(),
			Protocol:      c.Protocol(),
			UserAgent:     c.Get(fiber.HeaderUserAgent),
			RequestID:     c.Get(HeaderRequestID),
			Date:          time.Now().UTC(),
		}

		err := c.Next()
		if err != nil {
			// Render now so the logged status matches the response.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		info.Duration = time.Since(info.Date)
		info.Status = c.Response().StatusCode()
		info.Size = len(c.Response().Body())

		ctx := c.UserContext()
		tracking.LoggerFromContext(ctx).Log(ctx, log.LevelInfo, info.CLFString(),
			log.Duration("duration", info.Duration),
			log.Int("status", info.Status),
		)

		return nil
	}
}

// WithRecover turns handler panics into 500 responses after logging them.
func WithRecover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.UserContext()
				runtime.HandlePanicValue(ctx, tracking.LoggerFromContext(ctx), r, "http", c.Method()+" "+c.Path())

				err = RespondError(c, fiber.StatusInternalServerError, "0500", "Internal Server Error", "internal server error")
			}
		}()

		return c.Next()
	}
}
