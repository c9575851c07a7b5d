package auth

import (
	"errors"
	"net/http"
)

// LocalDevUserID is used for header-less requests when the dev fallback is enabled.
const LocalDevUserID = "local-dev-user"

// Resolver identifies the caller of a request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver trusts the upstream identity header. With DevFallback set, requests
// without the header resolve to LocalDevUserID; malformed headers are still rejected.
type HeaderResolver struct {
	DevFallback bool
}

func NewHeaderResolver(devFallback bool) *HeaderResolver {
	return &HeaderResolver{DevFallback: devFallback}
}

func (h *HeaderResolver) Resolve(r *http.Request) (string, error) {
	id, err := ExtractUserID(r)
	if errors.Is(err, ErrMissingUserID) && h.DevFallback {
		return LocalDevUserID, nil
	}
	return id, err
}
