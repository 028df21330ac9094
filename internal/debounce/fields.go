package debounce

import (
	"context"
	"regexp"
	"strings"

	"campus/api/internal/client"
)

var (
	usernameFormat = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailFormat    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldChecker asks the server whether a value is available.
type FieldChecker interface {
	CheckField(ctx context.Context, field, value string) (client.FieldCheck, error)
}

// UsernameCheck validates the format locally and then asks api for availability.
func UsernameCheck(api FieldChecker) CheckFunc {
	return func(ctx context.Context, value string) (Result, error) {
		value = strings.TrimSpace(value)
		if !usernameFormat.MatchString(value) {
			return Result{Valid: false, Message: "Username must be 3-20 characters: letters, numbers or underscores"}, nil
		}
		return remote(ctx, api, "username", value)
	}
}

func EmailCheck(api FieldChecker) CheckFunc {
	return func(ctx context.Context, value string) (Result, error) {
		value = strings.TrimSpace(value)
		if !emailFormat.MatchString(value) {
			return Result{Valid: false, Message: "Enter a valid email address"}, nil
		}
		return remote(ctx, api, "email", value)
	}
}

func remote(ctx context.Context, api FieldChecker, field, value string) (Result, error) {
	check, err := api.CheckField(ctx, field, value)
	if err != nil {
		return Result{}, err
	}
	return Result{Valid: check.Valid, Message: check.Message}, nil
}

// SignupChecks returns the username and email checks used by the signup form.
func SignupChecks(api FieldChecker) map[string]CheckFunc {
	return map[string]CheckFunc{
		"username": UsernameCheck(api),
		"email":    EmailCheck(api),
	}
}
