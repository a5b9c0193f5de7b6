package statsexport

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts connections from any origin: this is a read-only
// operator feed with no authenticated session state to protect.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSServer is the websocket stats monitor (A7): an HTTP server with a
// single upgrade handler that pushes a JSON-encoded StatsSnapshot to
// each connected client once per interval until the client
// disconnects. Client frames are read and discarded; it never acts on
// them.
type WSServer struct {
	source   Source
	interval time.Duration
	srv      *http.Server
}

// NewWSServer constructs (but does not start) a websocket stats
// monitor listening on addr.
func NewWSServer(addr string, source Source, interval time.Duration) *WSServer {
	w := &WSServer{source: source, interval: interval}
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", w.handleStats)
	w.srv = &http.Server{Addr: addr, Handler: mux}
	return w
}

// ListenAndServe blocks, serving websocket connections until Close is
// called.
func (w *WSServer) ListenAndServe() error {
	return w.srv.ListenAndServe()
}

// Close shuts down the HTTP server.
func (w *WSServer) Close() error {
	return w.srv.Close()
}

func (w *WSServer) handleStats(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("statsexport: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain and discard any client frames so a close frame is observed
	// promptly; this feed never acts on client input.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		snap := w.source.Snapshot()
		data, err := json.Marshal(snap)
		if err != nil {
			log.Printf("statsexport: failed to marshal snapshot: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		<-ticker.C
	}
}
