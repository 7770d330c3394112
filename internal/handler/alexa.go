package handler

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"camerabridge/internal/bridge"
	"camerabridge/internal/logging"
)

// DirectiveHandler answers one raw directive body
type DirectiveHandler interface {
	Handle(ctx context.Context, body []byte) bridge.Response
}

// AlexaHandler is the directive entry point
type AlexaHandler struct {
	bridge DirectiveHandler
	logger *zap.Logger
}

// NewAlexaHandler creates the directive handler
func NewAlexaHandler(b DirectiveHandler, logger *zap.Logger) *AlexaHandler {
	return &AlexaHandler{bridge: b, logger: logging.OrNop(logger)}
}

// Status answers GET /alexa
func (h *AlexaHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, map[string]string{"message": "Alexa endpoint is active. Use POST for directives."}, http.StatusOK)
}

// Directive answers POST /alexa. Directive failures are part of the event
// body, so the status is always 200 once the body has been read.
func (h *AlexaHandler) Directive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, h.logger, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	resp := h.bridge.Handle(r.Context(), body)
	if resp.IsError() {
		h.logger.Debug("directive answered with error", zap.Any("payload", resp.Event.Payload))
	}
	writeJSON(w, h.logger, resp, http.StatusOK)
}
