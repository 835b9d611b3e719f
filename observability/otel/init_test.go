package otel

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=promo")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "promo" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected service name error")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "promod"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer("promoledger/test") == nil {
		t.Fatalf("tracer must never be nil")
	}
}

func TestResourceAttributesSkipEmptyValues(t *testing.T) {
	attrs := resourceAttributes(Config{ServiceName: "promod", Environment: " ", Version: "1.2.0"})
	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if len(got) != 2 || got["service.name"] != "promod" || got["service.version"] != "1.2.0" {
		t.Fatalf("unexpected attributes %+v", got)
	}
}

func TestSamplerHonoursRatio(t *testing.T) {
	if desc := sampler(0).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("zero ratio must keep every span, got %s", desc)
	}
	if desc := sampler(0.25).Description(); !strings.Contains(desc, "TraceIDRatioBased{0.25}") {
		t.Fatalf("unexpected sampler %s", desc)
	}
}

func TestInitTracesInstallsProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "promod", Traces: true, Insecure: true, Endpoint: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
