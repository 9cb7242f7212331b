package common

import (
	"errors"
	"testing"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := WrapError(NewAppError("DB_MIGRATE", "create pipeline_runs", ErrDatabase), "journal")
	if !errors.Is(err, ErrDatabase) {
		t.Fatalf("errors.Is(%v, ErrDatabase) = false", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "DB_MIGRATE" {
		t.Fatalf("errors.As = %+v", appErr)
	}
	if got := err.Error(); got != "journal: DB_MIGRATE: create pipeline_runs: database error" {
		t.Errorf("Error() = %q", got)
	}
	if WrapError(nil, "journal") != nil {
		t.Errorf("WrapError(nil) must stay nil")
	}
}

func TestValidatorErrIsInvalidInput(t *testing.T) {
	v := NewValidator()
	v.Field("data", []byte(nil), Required)
	err := v.Err("INVALID_DOCUMENT")
	if !errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if NewValidator().Err("X") != nil {
		t.Errorf("empty validator returned an error")
	}
}
