package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"droneops-ground/internal/station"
)

// Station is the control surface the admin API drives.
type Station interface {
	Status() station.Status
	Pause()
	Resume()
	Stop()
}

type Server struct {
	Station Station
	log     *slog.Logger
	tpl     *template.Template
	now     func() time.Time
}

//go:embed templates/index.html
var content embed.FS

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	station.Status
	Uptime    string `json:"uptime"`
	LinkAge   string `json:"link_age"`
	Processed string `json:"processed"`
}

func NewServer(st Station, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{Station: st, log: logger, tpl: tpl, now: time.Now}
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("POST /exit", s.handleExit)
	return mux
}

// Start serves the admin API on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("admin API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) statusResponse() StatusResponse {
	st := s.Station.Status()
	now := s.now()
	resp := StatusResponse{
		Status:    st,
		Uptime:    humanize.RelTime(st.StartedAt, now, "", ""),
		LinkAge:   "never",
		Processed: humanize.Comma(st.Snapshots) + " snapshots, " + humanize.Comma(st.Commands) + " commands",
	}
	if !st.LinkSince.IsZero() {
		resp.LinkAge = humanize.RelTime(st.LinkSince, now, "ago", "from now")
	}
	return resp
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.tpl.Execute(w, s.statusResponse()); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.statusResponse())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Station.Pause()
	s.writeState(w)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Station.Resume()
	s.writeState(w)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.Station.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeState(w http.ResponseWriter) {
	st := s.Station.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"paused": st.Paused, "exiting": st.Exiting})
}
