// Package handler exposes the HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/middleware"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/orchestrator"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

// ChatHandler handles the conversation endpoints.
type ChatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: log}
}

// Send handles POST /api/v1/chat. An empty session ID starts a new
// conversation; the generated ID comes back in the response.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID != "" {
		if err := middleware.ValidateSessionID(req.SessionID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := middleware.ValidateProductID(req.ProductID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.orch.Handle(r.Context(), req.SessionID, req.Message, req.ProductID)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithSession(req.SessionID, req.ProductID).Error("chat turn failed",
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Init handles POST /api/v1/sessions. It opens a session and returns
// the welcome message. Re-initializing an existing session is a no-op.
func (h *ChatHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id,omitempty"`
		ProductID string `json:"product_id,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.SessionID != "" {
		if err := middleware.ValidateSessionID(req.SessionID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := h.orch.Initialize(r.Context(), req.SessionID, req.ProductID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}
