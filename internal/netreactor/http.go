package netreactor

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"go1090/internal/registry"
)

// HTTPServer serves the dump1090-style static map page plus JSON aircraft
// feeds, and optionally a live WebSocket feed of the same JSON (the one
// additive endpoint this implementation adds beyond the historical HTTP
// surface).
type HTTPServer struct {
	srv      *http.Server
	logger   *logrus.Logger
	registry registrySource
	upgrader websocket.Upgrader
}

type registrySource interface {
	SnapshotForJSON(nowMs int64) []registry.AircraftJSON
	MessageCount() uint64
	HomePosition() (lat, lon float64, ok bool)
}

// NewHTTPServer builds the HTTP mux: "/" redirects to the configured web
// page, static files are served from webRoot, and the JSON endpoints read
// live out of the registry on every request.
func NewHTTPServer(addr, webRoot, webPage string, logger *logrus.Logger, registry registrySource) *HTTPServer {
	h := &HTTPServer{
		logger:   logger,
		registry: registry,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	var fileHandler http.Handler
	if webRoot != "" {
		fileHandler = http.FileServer(http.Dir(webRoot))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/"+webPage, http.StatusSeeOther)
			return
		}
		if fileHandler != nil {
			fileHandler.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/data.json", h.serveAircraftJSON)
	mux.HandleFunc("/data/aircraft.json", h.serveAircraftJSONExtended)
	mux.HandleFunc("/data/receiver.json", h.serveReceiverJSON)
	mux.HandleFunc("/data/ws", h.serveWebSocket)
	if webRoot != "" {
		mux.HandleFunc("/"+webPage, func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(webRoot, webPage))
		})
	}

	h.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return h
}

// Start runs the HTTP server until ctx is cancelled.
func (h *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.srv.Shutdown(shutdownCtx)
	}()

	if h.srv.Addr == "" {
		return nil
	}
	err := h.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// serveAircraftJSON serves the legacy /data.json shape: a bare array of
// aircraft objects.
func (h *HTTPServer) serveAircraftJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.SnapshotForJSON(time.Now().UnixMilli()))
}

// aircraftJSONExtended is the /data/aircraft.json envelope: the same
// per-aircraft objects as /data.json, wrapped with a timestamp and total
// message count.
type aircraftJSONExtended struct {
	Now      float64                `json:"now"`
	Messages uint64                 `json:"messages"`
	Aircraft []registry.AircraftJSON `json:"aircraft"`
}

func (h *HTTPServer) serveAircraftJSONExtended(w http.ResponseWriter, r *http.Request) {
	nowMs := time.Now().UnixMilli()
	resp := aircraftJSONExtended{
		Now:      float64(nowMs) / 1000.0,
		Messages: h.registry.MessageCount(),
		Aircraft: h.registry.SnapshotForJSON(nowMs),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type receiverInfo struct {
	Version string  `json:"version"`
	Refresh int     `json:"refresh"`
	History int     `json:"history"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (h *HTTPServer) serveReceiverJSON(w http.ResponseWriter, r *http.Request) {
	lat, lon, _ := h.registry.HomePosition()
	info := receiverInfo{Version: "go1090", Refresh: 1000, History: 0, Lat: lat, Lon: lon}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// serveWebSocket pushes the aircraft JSON snapshot to the client once per
// second until it disconnects.
func (h *HTTPServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		data, err := json.Marshal(h.registry.SnapshotForJSON(time.Now().UnixMilli()))
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
