package services_test

import (
	"context"
	"testing"

	"fieldscan/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRowID(ctx, "row-12")
	ctx = services.WithMutationID(ctx, "mut-1")
	ctx = services.WithPassID(ctx, "pass-9")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RowIDFromContext(ctx); !ok || id != "row-12" {
		t.Fatalf("unexpected row id: %v %v", id, ok)
	}
	if id, ok := services.MutationIDFromContext(ctx); !ok || id != "mut-1" {
		t.Fatalf("unexpected mutation id: %v %v", id, ok)
	}
	if id, ok := services.PassIDFromContext(ctx); !ok || id != "pass-9" {
		t.Fatalf("unexpected pass id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRowID(ctx, "")
	ctx = services.WithPassID(ctx, "")
	if _, ok := services.RowIDFromContext(ctx); ok {
		t.Fatal("expected no row id value")
	}
	if _, ok := services.PassIDFromContext(ctx); ok {
		t.Fatal("expected no pass id value")
	}
}
