package infra

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("--sql 0c1f6a3e-5b0e-4d7a-9a53-3f0c6a0e2b11\nselect 1;\n")
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "0c1f6a3e-5b0e-4d7a-9a53-3f0c6a0e2b11" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestExtractMarkerRejectsUntagged(t *testing.T) {
	if _, _, err := extractMarker("select 1;"); err == nil {
		t.Fatal("expected error for query without marker")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(fmt.Errorf("other")) {
		t.Fatal("unexpected match")
	}
}
