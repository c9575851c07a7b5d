package api

import (
	"net/http"

	respond "github.com/CARBONMOLECULE09/bear-code/internal/api/respond"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/services"
)

// UserHandler serves per-user aggregates.
type UserHandler struct {
	stats *services.StatsService
	users auth.Resolver
}

func NewUserHandler(stats *services.StatsService, users auth.Resolver) *UserHandler {
	return &UserHandler{stats: stats, users: users}
}

// GetStats GET /api/v1/users/stats
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	st, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, st)
}
