package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tekkistudio/sales-orchestrator/internal/cart"
	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/middleware"
	"github.com/tekkistudio/sales-orchestrator/internal/orchestrator"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

// SessionHandler handles session and cart endpoints. Session reads go
// through the orchestrator so they serialize with in-flight turns.
type SessionHandler struct {
	orch   *orchestrator.Orchestrator
	carts  *cart.Service
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(orch *orchestrator.Orchestrator, carts *cart.Service, log *logger.Logger) *SessionHandler {
	return &SessionHandler{orch: orch, carts: carts, logger: log}
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.orch.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Reset handles DELETE /api/v1/sessions/{id}. The conversation is
// flushed and forgotten; the cart survives on purpose so a page
// navigation never empties it.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.orch.Reset(r.Context(), sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// GetCart handles GET /api/v1/sessions/{id}/cart.
func (h *SessionHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.carts.Summary(r.Context(), sessionID))
}

// AddCartItem handles POST /api/v1/sessions/{id}/cart/items.
func (h *SessionHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name,omitempty"`
		Quantity  int    `json:"quantity"`
		UnitPrice int64  `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if err := middleware.ValidateQuantity(req.Quantity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.carts.AddItem(r.Context(), sessionID, req.ProductID, req.Name, req.Quantity, req.UnitPrice)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// SetCartItem handles PUT /api/v1/sessions/{id}/cart/items/{productID}.
// A quantity of zero removes the line.
func (h *SessionHandler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	productID := chi.URLParam(r, "productID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateQuantity(req.Quantity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.carts.SetQuantity(r.Context(), sessionID, productID, req.Quantity)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ClearCart handles DELETE /api/v1/sessions/{id}/cart.
func (h *SessionHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.carts.Clear(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
