package auth

import (
	"net/http"
	"regexp"
	"strings"
)

// UserIDHeader carries the caller identity established by the upstream gateway.
const UserIDHeader = "X-User-ID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@-]{0,127}$`)

// ExtractUserID reads the caller identity from the request.
// Authentication happens upstream; only the identifier shape is checked here.
func ExtractUserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		return "", ErrMissingUserID
	}
	if !userIDPattern.MatchString(id) {
		return "", ErrInvalidUserID
	}
	return id, nil
}

// RoleHeader carries the caller role established by the upstream gateway.
const RoleHeader = "X-User-Role"

// IsAdmin reports whether the upstream gateway marked the caller as an administrator.
func IsAdmin(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get(RoleHeader)), "admin")
}
