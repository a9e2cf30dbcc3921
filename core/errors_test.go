package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/goliatone/go-connections/datastore"
	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_TypedErrors(t *testing.T) {
	key := NewConnectionKey("facebook", "fb1")
	cases := []struct {
		name     string
		err      error
		status   int
		textCode string
		category goerrors.Category
	}{
		{"duplicate", duplicateConnection(key), http.StatusConflict, ErrorCodeDuplicate, goerrors.CategoryConflict},
		{"no such", fmt.Errorf("wrapped: %w", noSuchConnection(key)), http.StatusNotFound, ErrorCodeNotFound, goerrors.CategoryNotFound},
		{"not connected", notConnected("facebook"), http.StatusNotFound, ErrorCodeNotConnected, goerrors.CategoryNotFound},
		{"invalid", invalidArgument("user_id", "user id cannot be empty"), http.StatusBadRequest, ErrorCodeBadInput, goerrors.CategoryValidation},
		{"conflict", fmt.Errorf("commit: %w", datastore.ErrConcurrentModification), http.StatusConflict, ErrorCodeConflict, goerrors.CategoryConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
			}
		})
	}
}

func TestMapError_UnknownErrorsAreInternal(t *testing.T) {
	mapped := MapError(errors.New("disk on fire"))
	if mapped == nil || mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 envelope, got %#v", mapped)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	if !errors.Is(duplicateConnection(ConnectionKey{}), ErrDuplicateConnection) {
		t.Fatalf("duplicate should match sentinel")
	}
	if !errors.Is(noSuchConnection(ConnectionKey{}), ErrNoSuchConnection) {
		t.Fatalf("no such should match sentinel")
	}
	if !errors.Is(notConnected("x"), ErrNotConnected) {
		t.Fatalf("not connected should match sentinel")
	}
	inner := errors.New("inner")
	if !errors.Is(&AfterInterceptorError{Operation: "create", Err: inner}, inner) {
		t.Fatalf("after interceptor error should unwrap")
	}
}
