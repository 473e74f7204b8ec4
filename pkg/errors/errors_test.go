package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"syntax", &QuerySyntaxError{Query: `"red`, Offset: 0, Reason: "unterminated phrase"}, http.StatusBadRequest},
		{"wrapped syntax", fmt.Errorf("parsing: %w", &QuerySyntaxError{Reason: "x"}), http.StatusBadRequest},
		{"invalid input", fmt.Errorf("limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"baseline", fmt.Errorf("seed: %w", ErrBaselineUnavailable), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"schema", ErrSchemaMismatch, http.StatusInternalServerError},
		{"app error", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuerySyntaxErrorIs(t *testing.T) {
	err := fmt.Errorf("search: %w", &QuerySyntaxError{Query: "title:", Offset: 6, Reason: "empty field value"})
	if !errors.Is(err, ErrQuerySyntax) {
		t.Fatal("expected errors.Is(err, ErrQuerySyntax)")
	}
	var qse *QuerySyntaxError
	if !errors.As(err, &qse) || qse.Offset != 6 {
		t.Fatalf("expected QuerySyntaxError at offset 6, got %v", qse)
	}
}
