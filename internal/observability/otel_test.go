package observability

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")

	shutdown := InitTracing(context.Background(), zerolog.Nop(), TracingConfig{ServiceName: "event-grouper"})
	if shutdown == nil {
		t.Fatalf("expected a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSampleRatioClamps(t *testing.T) {
	cases := map[string]float64{
		"":     1,
		"0.25": 0.25,
		"-3":   0,
		"7":    1,
		"abc":  1,
	}
	for raw, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", raw)
		if got := sampleRatio(); got != want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestOTLPHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer x, broken ,tenant = news,empty=")

	want := map[string]string{"authorization": "Bearer x", "tenant": "news"}
	if got := otlpHeaders(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headers: %v", got)
	}
}
