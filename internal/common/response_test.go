package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestRenderErrorUsesAppErrorFields(t *testing.T) {
	rec := httptest.NewRecorder()
	ae := NewAppError("STORE_ERROR", `relation "orders" does not exist`, http.StatusInternalServerError, errors.New("pg failure"))
	ae.Details = "insert failed"
	RenderError(rec, ae)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != "STORE_ERROR" {
		t.Fatalf("unexpected code %q", got.Code)
	}
	if got.Message != `relation "orders" does not exist` {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if got.Details != "insert failed" {
		t.Fatalf("unexpected details %v", got.Details)
	}
}

func TestRenderErrorUnwrapsNestedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	ae := NewAppError("SETTINGS_ERROR", "could not update forced-open", http.StatusInternalServerError, nil)
	RenderError(rec, fmt.Errorf("settings upsert: %w", ae))

	got := decodeError(t, rec)
	if got.Code != "SETTINGS_ERROR" {
		t.Fatalf("expected nested AppError to win, got code %q", got.Code)
	}
}

func TestRenderErrorDefaultsPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != "INTERNAL" {
		t.Fatalf("unexpected code %q", got.Code)
	}
	if got.Message != "boom" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestRenderErrorDefaultsMissingStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, &AppError{Code: "STORE_ERROR", Message: "no status set"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback, got %d", rec.Code)
	}
}
