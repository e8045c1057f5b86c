package context

import (
	"context"

	"github.com/google/uuid"
)

// Origins of a unit of work.
const (
	OriginHTTP   = "http"
	OriginWorker = "worker"
	OriginCLI    = "cli"
)

// TraceContext identifies one unit of work: an API request, a worker job
// run or a CLI invocation.
type TraceContext struct {
	TraceID   string
	RequestID string
	Origin    string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext starts a trace for work not driven by an API request.
// The request id doubles as the trace id.
func NewTraceContext(origin string) *TraceContext {
	traceID := uuid.NewString()
	return &TraceContext{
		TraceID:   traceID,
		RequestID: traceID,
		Origin:    origin,
	}
}
