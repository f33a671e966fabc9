// Package httpx holds the fiber plumbing shared by every corebank HTTP
// surface: error rendering, request validation, tracking and access-log
// middleware, health endpoints and the JSON client used between services.
package httpx
