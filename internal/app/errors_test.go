package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"
)

func TestMapErrorUnwrapsDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: invalidInput("name is required"), status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "wrapped forbidden", err: fmt.Errorf("delete space: %w", forbidden("Only space admins can delete a space")), status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "missing row", err: fmt.Errorf("get post: %w", sql.ErrNoRows), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Fatalf("mapError() = %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}

	var nilErr *DomainError
	if nilErr.Error() != "" {
		t.Fatal("expected empty message for nil domain error")
	}
}
