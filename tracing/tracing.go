// Package tracing wraps httpx attempts in OpenTelemetry client spans.
package tracing

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgc202/restkit/httpx"
)

const instrumentationName = "github.com/lgc202/restkit/tracing"

type options struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
}

type Option func(*options)

// WithTracerProvider defaults to otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.provider = tp }
}

// WithPropagator defaults to otel.GetTextMapPropagator().
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) { o.propagator = p }
}

// W3CPropagator is the TraceContext+Baggage propagator.
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Middleware starts one client span per attempt and injects the trace context
// into the outgoing headers. Retries therefore show up as sibling spans.
func Middleware(opts ...Option) httpx.Middleware {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.provider == nil {
		o.provider = otel.GetTracerProvider()
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}
	tracer := o.provider.Tracer(instrumentationName)

	return func(next http.RoundTripper) http.RoundTripper {
		return httpx.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			ctx, span := tracer.Start(req.Context(), "HTTP "+req.Method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("url.full", spanURL(req)),
					attribute.String("server.address", req.URL.Hostname()),
					attribute.String("http.cache_mode", string(httpx.CacheModeOf(req))),
				),
			)
			defer span.End()

			out := req.Clone(ctx)
			o.propagator.Inject(ctx, propagation.HeaderCarrier(out.Header))

			resp, err := next.RoundTrip(out)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			if resp.StatusCode >= 500 {
				span.SetStatus(codes.Error, strconv.Itoa(resp.StatusCode))
			}
			return resp, nil
		})
	}
}

// spanURL drops the query and credentials, which may carry secrets.
func spanURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
