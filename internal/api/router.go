package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/CARBONMOLECULE09/bear-code/internal/api/respond"
	"github.com/CARBONMOLECULE09/bear-code/internal/api/recovery"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/services"
)

// Deps are the services the HTTP transport delegates to.
type Deps struct {
	Ledger *ledger.Ledger
	Code   *services.CodeService
	Stats  *services.StatsService
	Users  auth.Resolver
	Health ServiceHealth
}

// NewRouter creates the HTTP router with all /api/v1 routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)

	credits := NewCreditHandler(d.Ledger, d.Users)
	search := NewSearchHandler(d.Code, d.Users)
	users := NewUserHandler(d.Stats, d.Users)
	health := NewHealthHandler(d.Health)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Health endpoint
	v1.HandleFunc("/health", health.CheckHealth).Methods("GET")

	// Account endpoints
	v1.HandleFunc("/accounts", credits.OpenAccount).Methods("POST")
	v1.HandleFunc("/users/account", credits.DeactivateAccount).Methods("DELETE")
	v1.HandleFunc("/users/stats", users.GetStats).Methods("GET")

	// Credit endpoints
	v1.HandleFunc("/credits/balance", credits.GetBalance).Methods("GET")
	v1.HandleFunc("/credits/history", credits.GetHistory).Methods("GET")
	v1.HandleFunc("/credits/transactions", credits.GetHistory).Methods("GET")
	v1.HandleFunc("/credits/purchase", credits.Purchase).Methods("POST")
	v1.HandleFunc("/credits/bonus", credits.AddBonus).Methods("POST")
	v1.HandleFunc("/credits/refund", credits.Refund).Methods("POST")

	// Search endpoints
	v1.HandleFunc("/search/index", search.IndexCode).Methods("POST")
	v1.HandleFunc("/search/index/stats", search.IndexStats).Methods("GET")
	v1.HandleFunc("/search/query", search.SearchCode).Methods("POST")
	v1.HandleFunc("/search/documents", search.ListDocuments).Methods("GET")
	v1.HandleFunc("/search/documents/{documentId}", search.DeleteDocument).Methods("DELETE")
	v1.HandleFunc("/search/history", search.SearchHistory).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.WriteNotFound(w, "route not found: "+r.URL.Path)
	})

	return router
}
