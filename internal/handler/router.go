package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// Routes holds everything the HTTP server serves. Nil handlers leave
// their routes unregistered.
type Routes struct {
	Cameras     *CameraHandler
	Alexa       *AlexaHandler
	Signaling   http.Handler
	Events      http.Handler
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter registers every route and applies the middleware chain
func NewRouter(rt Routes) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", Health)

	if c := rt.Cameras; c != nil {
		mux.HandleFunc("GET /api/cameras", c.ListCameras)
		mux.HandleFunc("POST /api/cameras", c.CreateCamera)
		mux.HandleFunc("POST /api/cameras/discover", c.TriggerDiscovery)
		mux.HandleFunc("GET /api/cameras/export", c.ExportCameras)
		mux.HandleFunc("POST /api/cameras/import", c.ImportCameras)
		mux.HandleFunc("GET /api/cameras/{id}", c.GetCamera)
		mux.HandleFunc("PATCH /api/cameras/{id}", c.UpdateCamera)
		mux.HandleFunc("DELETE /api/cameras/{id}", c.DeleteCamera)
		mux.HandleFunc("GET /api/token", c.IssueToken)
		mux.HandleFunc("POST /api/stream/start", c.StartStream)
		mux.HandleFunc("GET /api/status", c.GetStatus)
	}

	if a := rt.Alexa; a != nil {
		mux.HandleFunc("GET /alexa", a.Status)
		mux.HandleFunc("POST /alexa", a.Directive)
	}

	if rt.Events != nil {
		mux.Handle("GET /events", rt.Events)
	}
	if rt.Signaling != nil {
		mux.Handle("GET /ws", rt.Signaling)
	}

	return Chain(mux,
		Recover(rt.Logger),
		CORS(rt.CORSOrigins),
		Logger(rt.Logger),
	)
}
