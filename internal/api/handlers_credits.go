package api

import (
	"encoding/json"
	"net/http"

	respond "github.com/CARBONMOLECULE09/bear-code/internal/api/respond"
	"github.com/CARBONMOLECULE09/bear-code/internal/api/validate"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// CreditHandler exposes the ledger over HTTP.
type CreditHandler struct {
	ledger *ledger.Ledger
	users  auth.Resolver
}

func NewCreditHandler(l *ledger.Ledger, users auth.Resolver) *CreditHandler {
	return &CreditHandler{ledger: l, users: users}
}

// OpenAccount POST /api/v1/accounts
func (h *CreditHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	acc, err := h.ledger.OpenAccount(r.Context(), userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, acc)
}

// DeactivateAccount DELETE /api/v1/users/account
func (h *CreditHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	if err := h.ledger.Deactivate(r.Context(), userID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBalance GET /api/v1/credits/balance
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	bal, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

// GetHistory GET /api/v1/credits/history
func (h *CreditHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	page, err := validate.Page(r.URL.Query().Get("page"), r.URL.Query().Get("limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.ledger.History(r.Context(), userID, page)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// Purchase POST /api/v1/credits/purchase
func (h *CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	var req struct {
		Amount        int64  `json:"amount"`
		PaymentMethod string `json:"paymentMethod"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Purchase(req.Amount, req.PaymentMethod); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	rec, err := h.ledger.Purchase(r.Context(), userID, req.Amount, req.PaymentMethod)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"balance": rec.BalanceAfter, "transaction": rec})
}

// AddBonus POST /api/v1/credits/bonus (admin)
func (h *CreditHandler) AddBonus(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.users) {
		return
	}
	var req struct {
		UserID      string `json:"userId"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Bonus(req.UserID, req.Amount, req.Description); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	bal, err := h.ledger.Credit(r.Context(), req.UserID, req.Amount, model.KindBonus, req.Description, nil)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

// Refund POST /api/v1/credits/refund (admin)
func (h *CreditHandler) Refund(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.users) {
		return
	}
	var req struct {
		UserID                string `json:"userId"`
		Amount                int64  `json:"amount"`
		Reason                string `json:"reason"`
		OriginalTransactionID string `json:"originalTransactionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Refund(req.UserID, req.Amount, req.Reason); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	bal, err := h.ledger.Refund(r.Context(), req.UserID, req.Amount, req.Reason, req.OriginalTransactionID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

// caller resolves the user id or writes 401.
func caller(w http.ResponseWriter, r *http.Request, users auth.Resolver) (string, bool) {
	id, err := users.Resolve(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return id, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request, users auth.Resolver) bool {
	if _, ok := caller(w, r, users); !ok {
		return false
	}
	if !auth.IsAdmin(r) {
		respond.WriteError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}
