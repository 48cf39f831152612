package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{ServiceName: "edgegw"})

	require.NoError(t, err)
	assert.Nil(t, tracer.provider)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "always", rate: 1.0, want: "ParentBased{root:AlwaysOnSampler"},
		{name: "never", rate: 0, want: "AlwaysOffSampler"},
		{name: "ratio", rate: 0.5, want: "TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Contains(t, createSampler(tt.rate).Description(), tt.want)
		})
	}
}

func TestBuildOTLPExporterOptions(t *testing.T) {
	t.Parallel()

	opts := buildOTLPExporterOptions(TracerConfig{OTLPEndpoint: "localhost:4317"})
	assert.Len(t, opts, 5)
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	tracer := NewTracerFromProvider(provider, "test")

	var traceID string
	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
		AnnotateRoute(r.Context(), r.Method, "/user-service", "user-service")
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-service/users/1", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Len(t, traceID, 32)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /user-service", span.Name())
	assert.Equal(t, traceID, span.SpanContext().TraceID().String())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), AttrService.String("user-service"))
	assert.Contains(t, span.Attributes(), attribute.Int("http.response.status_code", http.StatusBadGateway))
}

func TestTracingMiddleware_UnmatchedKeepsMethodName(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	handler := TracingMiddleware(NewTracerFromProvider(provider, "test"))(http.NotFoundHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nowhere/abc", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestAnnotateRoute_NonRecording(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		AnnotateRoute(context.Background(), http.MethodGet, "/user-service", "user-service")
	})
}

func TestNilTracer_StartUpstreamSpan(t *testing.T) {
	t.Parallel()

	var tracer *Tracer
	_, span := tracer.StartUpstreamSpan(context.Background(), "user-service", "user-1", "127.0.0.1:8081", 1)
	assert.False(t, span.SpanContext().IsValid())
	EndSpan(span, 0, errors.New("dial tcp: refused"))
	span.End()
}

func TestInjectTraceContext(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	assert.NotPanics(t, func() {
		InjectTraceContext(context.Background(), header)
	})
}
