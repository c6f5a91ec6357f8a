package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestSlogBridge_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRelease(ctx, "2024-09-18.0")
	ctx = WithFeatureType(ctx, "building")
	l.InfoContext(ctx, "retrieved", "rows", 42, "ok", true)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":          "retrieved",
		"component":    "test",
		"request_id":   "req-1",
		"release":      "2024-09-18.0",
		"feature_type": "building",
		"ok":           true,
		"rows":         float64(42),
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("field %s=%v want %v (line=%s)", k, rec[k], v, buf.String())
		}
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}
