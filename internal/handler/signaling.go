package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camerabridge/internal/bridge"
	"camerabridge/internal/logging"
)

// Signaling message types
const (
	MsgWelcome      = "welcome"
	MsgStartStream  = "start-stream"
	MsgStreamReady  = "stream-ready"
	MsgICECandidate = "ice-candidate"
	MsgError        = "error"
)

// TokenVerifier resolves an access token to the camera it is bound to
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// StreamRegistrar makes a camera stream available on the media engine
type StreamRegistrar interface {
	RegisterStream(ctx context.Context, id, sourceURI string) error
}

// SignalMessage is a frame sent by a signaling client
type SignalMessage struct {
	Type     string          `json:"type"`
	CameraID string          `json:"cameraId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// SignalReply is a frame sent to a signaling client
type SignalReply struct {
	Type          string `json:"type"`
	ClientID      string `json:"clientId,omitempty"`
	Authenticated *bool  `json:"authenticated,omitempty"`
	CameraID      string `json:"cameraId,omitempty"`
	StreamName    string `json:"streamName,omitempty"`
	Error         string `json:"error,omitempty"`
	Details       string `json:"details,omitempty"`
}

// SignalingHandler serves /ws. A connection with a valid token is bound to
// that token's camera; a connection without one may connect but every
// message is refused.
type SignalingHandler struct {
	tokens        TokenVerifier
	devices       bridge.DeviceLookup
	engine        StreamRegistrar
	upgrader      websocket.Upgrader
	engineTimeout time.Duration
	logger        *zap.Logger
}

// NewSignalingHandler creates the WebSocket handler
func NewSignalingHandler(tokens TokenVerifier, devices bridge.DeviceLookup, engine StreamRegistrar, origins []string, logger *zap.Logger) *SignalingHandler {
	return &SignalingHandler{
		tokens:  tokens,
		devices: devices,
		engine:  engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r)
			},
		},
		engineTimeout: 10 * time.Second,
		logger:        logging.OrNop(logger),
	}
}

// ServeHTTP upgrades the connection and runs the message loop
func (h *SignalingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	log := h.logger.With(zap.String("client", clientID))

	var cameraID string
	authenticated := false
	if token != "" {
		id, err := h.tokens.Verify(token)
		if err != nil {
			log.Warn("signaling authentication failed", zap.Error(err))
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Authentication failed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		cameraID = id
		authenticated = true
	}
	log.Info("signaling client connected", zap.Bool("authenticated", authenticated), zap.String("camera", cameraID))

	if err := conn.WriteJSON(SignalReply{Type: MsgWelcome, ClientID: clientID, Authenticated: &authenticated}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("signaling read failed", zap.Error(err))
			}
			log.Info("signaling client disconnected")
			return
		}

		reply := h.handleMessage(r.Context(), authenticated, cameraID, data, log)
		if reply == nil {
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

// handleMessage returns the reply frame, or nil for messages that are
// acknowledged silently
func (h *SignalingHandler) handleMessage(ctx context.Context, authenticated bool, boundCamera string, data []byte, log *zap.Logger) *SignalReply {
	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply("Invalid message format", err.Error())
	}
	if !authenticated {
		return errorReply("Not authenticated", "")
	}
	if msg.CameraID != boundCamera {
		return errorReply("Unauthorized for this camera", "")
	}

	device, ok := h.devices.Get(msg.CameraID)
	if !ok {
		return errorReply("Camera not found", "")
	}

	switch msg.Type {
	case MsgStartStream:
		if h.engine == nil {
			return errorReply("Failed to process start-stream", "no media engine configured")
		}
		ctx, cancel := context.WithTimeout(ctx, h.engineTimeout)
		defer cancel()
		if err := h.engine.RegisterStream(ctx, device.ID, device.StreamURI); err != nil {
			log.Warn("start-stream failed", zap.String("camera", device.ID), zap.Error(err))
			return errorReply("Failed to process start-stream", err.Error())
		}
		log.Info("stream ready", zap.String("camera", device.ID))
		return &SignalReply{Type: MsgStreamReady, CameraID: device.ID, StreamName: device.ID}

	case MsgICECandidate:
		log.Debug("ICE candidate received", zap.String("camera", device.ID))
		return nil

	default:
		log.Debug("unknown signaling message", zap.String("type", msg.Type))
		return errorReply("Unknown message type", msg.Type)
	}
}

func errorReply(msg, details string) *SignalReply {
	return &SignalReply{Type: MsgError, Error: msg, Details: details}
}
