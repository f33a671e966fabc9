package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AlertsCollection is the MongoDB collection holding alert documents.
const AlertsCollection = "fraud_alerts"

type alertDocument struct {
	ID               string               `bson:"_id"`
	TransactionID    string               `bson:"transaction_id"`
	AccountID        string               `bson:"account_id"`
	BranchID         int                  `bson:"branch_id"`
	Amount           primitive.Decimal128 `bson:"amount"`
	Channel          string               `bson:"channel"`
	RiskScore        int                  `bson:"risk_score"`
	FraudFlag        bool                 `bson:"fraud_flag"`
	Reason           string               `bson:"reason"`
	Anomaly          string               `bson:"anomaly"`
	ResolutionStatus string               `bson:"resolution_status"`
	FeedbackType     string               `bson:"feedback_type,omitempty"`
	FeedbackDate     *time.Time           `bson:"feedback_date,omitempty"`
	ResolvedAt       *time.Time           `bson:"resolved_at,omitempty"`
	CreatedAt        time.Time            `bson:"created_at"`
}

func toDocument(a Alert) (alertDocument, error) {
	amount, err := primitive.ParseDecimal128(a.Amount.String())
	if err != nil {
		return alertDocument{}, fmt.Errorf("encode amount %s: %w", a.Amount, err)
	}

	return alertDocument{
		ID:               a.ID.String(),
		TransactionID:    a.TransactionID,
		AccountID:        a.AccountID,
		BranchID:         a.BranchID,
		Amount:           amount,
		Channel:          a.Channel,
		RiskScore:        a.RiskScore,
		FraudFlag:        a.FraudFlag,
		Reason:           a.Reason,
		Anomaly:          a.Anomaly,
		ResolutionStatus: string(a.ResolutionStatus),
		FeedbackType:     a.FeedbackType,
		FeedbackDate:     a.FeedbackDate,
		ResolvedAt:       a.ResolvedAt,
		CreatedAt:        a.CreatedAt,
	}, nil
}

func (d alertDocument) toAlert() (Alert, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return Alert{}, fmt.Errorf("decode alert id %q: %w", d.ID, err)
	}

	amount, err := money.Parse(d.Amount.String())
	if err != nil {
		return Alert{}, fmt.Errorf("decode amount of alert %s: %w", d.ID, err)
	}

	utc := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}

		u := t.UTC()

		return &u
	}

	return Alert{
		ID:               id,
		TransactionID:    d.TransactionID,
		AccountID:        d.AccountID,
		BranchID:         d.BranchID,
		Amount:           amount,
		Channel:          d.Channel,
		RiskScore:        d.RiskScore,
		FraudFlag:        d.FraudFlag,
		Reason:           d.Reason,
		Anomaly:          d.Anomaly,
		ResolutionStatus: ResolutionStatus(d.ResolutionStatus),
		FeedbackType:     d.FeedbackType,
		FeedbackDate:     utc(d.FeedbackDate),
		ResolvedAt:       utc(d.ResolvedAt),
		CreatedAt:        d.CreatedAt.UTC(),
	}, nil
}

// MongoStore keeps alerts as documents.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore returns a store over coll.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Indexes lists the indexes MongoStore relies on.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
		{Keys: bson.D{{Key: "resolution_status", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

func (s *MongoStore) Save(ctx context.Context, a Alert) error {
	doc, err := toDocument(a)
	if err != nil {
		return err
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert fraud alert %s: %w", a.ID, err)
	}

	return nil
}

func (s *MongoStore) Get(ctx context.Context, id uuid.UUID) (Alert, error) {
	var doc alertDocument

	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	if err != nil {
		return Alert{}, fmt.Errorf("find fraud alert %s: %w", id, err)
	}

	return doc.toAlert()
}

func (s *MongoStore) Resolve(ctx context.Context, id uuid.UUID, feedbackType string, feedbackDate, resolvedAt time.Time) (Alert, error) {
	var doc alertDocument

	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{
			"feedback_type":     feedbackType,
			"feedback_date":     feedbackDate,
			"resolved_at":       resolvedAt,
			"resolution_status": string(ResolutionResolved),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	if err != nil {
		return Alert{}, fmt.Errorf("resolve fraud alert %s: %w", id, err)
	}

	return doc.toAlert()
}
