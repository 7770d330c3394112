package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
	"camerabridge/internal/service"
)

// maxBodySize caps request bodies
const maxBodySize = 1 << 20

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CameraHandler handles camera API requests
type CameraHandler struct {
	svc    *service.CameraService
	logger *zap.Logger
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(svc *service.CameraService, logger *zap.Logger) *CameraHandler {
	return &CameraHandler{svc: svc, logger: logging.OrNop(logger)}
}

type camerasResponse struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Cameras []domain.Device `json:"cameras"`
}

type cameraResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Camera  domain.Device `json:"camera"`
}

// ListCameras returns every camera
func (h *CameraHandler) ListCameras(w http.ResponseWriter, r *http.Request) {
	cameras := h.svc.ListCameras()
	writeJSON(w, h.logger, camerasResponse{Success: true, Count: len(cameras), Cameras: cameras}, http.StatusOK)
}

// GetCamera returns a single camera
func (h *CameraHandler) GetCamera(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetCamera(r.PathValue("id"))
	if err != nil {
		h.fail(w, "Camera not found", err)
		return
	}
	writeJSON(w, h.logger, cameraResponse{Success: true, Camera: d}, http.StatusOK)
}

// CreateCamera adds a camera by hand
func (h *CameraHandler) CreateCamera(w http.ResponseWriter, r *http.Request) {
	var in service.NewCamera
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, h.logger, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.svc.AddCamera(r.Context(), in)
	if err != nil {
		h.fail(w, "Failed to add camera", err)
		return
	}
	writeJSON(w, h.logger, cameraResponse{Success: true, Camera: d}, http.StatusCreated)
}

// UpdateCamera applies a partial update
func (h *CameraHandler) UpdateCamera(w http.ResponseWriter, r *http.Request) {
	var patch domain.DevicePatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, h.logger, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.svc.UpdateCamera(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, "Failed to update camera", err)
		return
	}
	writeJSON(w, h.logger, cameraResponse{Success: true, Message: "Camera updated", Camera: d}, http.StatusOK)
}

// DeleteCamera removes a camera
func (h *CameraHandler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCamera(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "Failed to remove camera", err)
		return
	}
	writeJSON(w, h.logger, map[string]any{"success": true, "message": "Camera removed"}, http.StatusOK)
}

type discoverResponse struct {
	Success bool `json:"success"`
	domain.DiscoveryResult
}

// TriggerDiscovery runs one discovery pass and returns its result
func (h *CameraHandler) TriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Discover(r.Context())
	if err != nil {
		h.fail(w, "Discovery failed", err)
		return
	}
	writeJSON(w, h.logger, discoverResponse{Success: true, DiscoveryResult: res}, http.StatusOK)
}

type tokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	CameraID  string    `json:"cameraId"`
	ExpiresIn int       `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken returns a short-lived token for ?cameraId=
func (h *CameraHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("cameraId")
	if id == "" {
		writeError(w, h.logger, "cameraId query parameter is required", "", http.StatusBadRequest)
		return
	}

	tok, err := h.svc.IssueToken(id)
	if err != nil {
		h.fail(w, "Failed to issue token", err)
		return
	}
	writeJSON(w, h.logger, tokenResponse{
		Success:   true,
		Token:     tok.Token,
		CameraID:  tok.CameraID,
		ExpiresIn: tok.ExpiresIn(),
		ExpiresAt: tok.ExpiresAt,
	}, http.StatusOK)
}

type startStreamRequest struct {
	CameraID string `json:"cameraId"`
}

// StartStream registers a camera's stream with the media engine
func (h *CameraHandler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req startStreamRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	name, err := h.svc.StartStream(r.Context(), req.CameraID)
	if err != nil {
		h.fail(w, "Failed to start stream", err)
		return
	}
	writeJSON(w, h.logger, map[string]any{"success": true, "streamName": name}, http.StatusOK)
}

// GetStatus reports camera counts and engine readiness
func (h *CameraHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, map[string]any{"success": true, "status": h.svc.Status(r.Context())}, http.StatusOK)
}

// Health is a liveness probe
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nil, map[string]any{"status": "ok", "timestamp": time.Now().UTC()}, http.StatusOK)
}

func (h *CameraHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	writeError(w, h.logger, msg, err.Error(), status)
}

// statusForError maps the error taxonomy onto HTTP status codes
func statusForError(err error) int {
	switch domain.Kind(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// Helper functions

func writeJSON(w http.ResponseWriter, logger *zap.Logger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.OrNop(logger).Debug("failed to encode JSON", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, error, details string, statusCode int) {
	writeJSON(w, logger, ErrorResponse{Error: error, Details: details}, statusCode)
}

// bearerToken returns the token from ?token= or an Authorization header
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
