package engine

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// rateLimitTransport delays each attempt until the limiter grants a token.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// errServerStatus marks a 5xx for the breaker's failure accounting. It is
// stripped before the response reaches the retry engine, which must see
// HTTP error statuses as responses, never as transport errors.
var errServerStatus = errors.New("server error status")

// breakerTransport routes attempts through a circuit breaker. Server errors
// count as failures so a struggling backend trips the breaker before the
// retry loop hammers it.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newBreakerTransport(next http.RoundTripper, settings gobreaker.Settings) *breakerTransport {
	return &breakerTransport{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) && resp != nil {
		return resp, nil
	}
	return resp, err
}

// traceTransport opens one span per attempt and records the outcome.
type traceTransport struct {
	next   http.RoundTripper
	tracer trace.Tracer
}

func newTraceTransport(next http.RoundTripper, tp trace.TracerProvider) *traceTransport {
	return &traceTransport{
		next:   next,
		tracer: tp.Tracer("github.com/veildata/anonclient-go/engine"),
	}
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		))
	defer span.End()

	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}

// chainTransports layers the optional transports over the base transport,
// innermost first: trace, breaker, then rate limit outermost so throttling
// happens before the breaker sees the attempt.
func chainTransports(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	rt := base
	if cfg.tracerProvider != nil {
		rt = newTraceTransport(rt, cfg.tracerProvider)
	}
	if cfg.breakerConfig != nil {
		rt = newBreakerTransport(rt, *cfg.breakerConfig)
	}
	if cfg.rateLimiter != nil {
		rt = &rateLimitTransport{next: rt, limiter: cfg.rateLimiter}
	}
	return rt
}
