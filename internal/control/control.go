// Package control exposes the session over a small local HTTP API so that
// taps and mode changes can come from other processes or devices.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"go.aimuz.me/basar/internal/types"
)

// Session is the part of the session controller the API drives.
type Session interface {
	Activate(mode types.Mode)
	Deactivate()
	Status() types.Status
}

// Tapper receives taps for gesture recognition.
type Tapper interface {
	Tap()
}

// StatusResponse is the JSON form of a session status.
type StatusResponse struct {
	Mode      string    `json:"mode"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
	Busy      bool      `json:"busy"`
	Speaking  bool      `json:"speaking"`
	Cycles    int       `json:"cycles"`
	Skipped   int       `json:"skipped"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newStatusResponse(st types.Status) StatusResponse {
	return StatusResponse{
		Mode:      st.Mode.String(),
		Text:      st.Text,
		Error:     st.Err,
		Busy:      st.Busy,
		Speaking:  st.Speaking,
		Cycles:    st.Cycles,
		Skipped:   st.Skipped,
		UpdatedAt: st.UpdatedAt,
	}
}

// Server serves the control API.
type Server struct {
	session Session
	taps    Tapper
	router  *mux.Router
	srv     *http.Server
}

// NewServer creates a server for session and taps.
func NewServer(session Session, taps Tapper) *Server {
	s := &Server{session: session, taps: taps}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/tap", s.handleTap).Methods(http.MethodPost)
	r.HandleFunc("/modes/{mode}", s.handleActivate).Methods(http.MethodPost)
	r.HandleFunc("/modes", s.handleDeactivate).Methods(http.MethodDelete)
	return r
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until ctx is done or Shutdown is called.
// It returns once the listener is bound.
func (s *Server) Start(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	slog.Info("control api listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "OK")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusResponse(s.session.Status()))
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	s.taps.Tap()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	mode, err := types.ParseMode(mux.Vars(r)["mode"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if mode == types.ModeIdle {
		s.session.Deactivate()
	} else {
		s.session.Activate(mode)
	}
	writeJSON(w, http.StatusOK, newStatusResponse(s.session.Status()))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.session.Deactivate()
	writeJSON(w, http.StatusOK, newStatusResponse(s.session.Status()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
