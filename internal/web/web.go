package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"weekcal/internal/board"
	"weekcal/internal/config"
	appLog "weekcal/internal/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/week.html"))

// Server exposes the scheduler page, its form actions and a JSON mirror of
// the same operations.
type Server struct {
	cfg   *config.Config
	board *board.Board
	mux   *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *board.Board) *Server {
	s := &Server{
		cfg:   cfg,
		board: b,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routes wrapped in request ID, access log and, when
// configured, Basic Auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestID(accessLog(h))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("POST /week/prev", s.handleNavigateForm(-1))
	s.mux.HandleFunc("POST /week/next", s.handleNavigateForm(1))
	s.mux.HandleFunc("POST /timezone", s.handleTimezoneForm)
	s.mux.HandleFunc("POST /slots/toggle", s.handleToggleForm)

	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("POST /api/week/navigate", s.handleNavigate)
	s.mux.HandleFunc("POST /api/timezone", s.handleTimezone)
	s.mux.HandleFunc("POST /api/slots/toggle", s.handleToggle)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// pageData is the template input for week.html.
type pageData struct {
	View board.View
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	s.board.Refresh()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, pageData{View: s.board.View()}); err != nil {
		appLog.Error("render page failed", err)
	}
}

func (s *Server) handleNavigateForm(direction int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.board.NavigateWeek(direction); err != nil {
			s.formError(w, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleTimezoneForm(w http.ResponseWriter, r *http.Request) {
	if err := s.board.SetTimezone(r.FormValue("timezone")); err != nil {
		s.formError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleToggleForm(w http.ResponseWriter, r *http.Request) {
	day, slot, err := slotParams(r)
	if err != nil {
		s.formError(w, err)
		return
	}
	if _, err := s.board.ToggleSlot(day, slot); err != nil {
		s.formError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) formError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

// handleWeek returns the current week.
//
// GET /api/week
func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	s.board.Refresh()
	writeJSON(w, http.StatusOK, s.board.View())
}

// handleNavigate moves one week and returns the new week.
//
// POST /api/week/navigate?direction=-1|1
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	dir, err := strconv.Atoi(r.FormValue("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "direction must be -1 or 1")
		return
	}
	if err := s.board.NavigateWeek(dir); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.board.View())
}

// handleTimezone selects a timezone and returns the regenerated week.
//
// POST /api/timezone?timezone=America/New_York
func (s *Server) handleTimezone(w http.ResponseWriter, r *http.Request) {
	if err := s.board.SetTimezone(r.FormValue("timezone")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.board.View())
}

type toggleResponse struct {
	Day     int  `json:"day"`
	Slot    int  `json:"slot"`
	Checked bool `json:"checked"`
}

// handleToggle flips one slot's tick.
//
// POST /api/slots/toggle?day=3&slot=0
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	day, slot, err := slotParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	on, err := s.board.ToggleSlot(day, slot)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Day: day, Slot: slot, Checked: on})
}

// handleEvents returns the loaded event feed in source order.
//
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Events())
}

var errBadSlotParams = errors.New("day and slot must be integers")

func slotParams(r *http.Request) (int, int, error) {
	day, err := strconv.Atoi(r.FormValue("day"))
	if err != nil {
		return 0, 0, errBadSlotParams
	}
	slot, err := strconv.Atoi(r.FormValue("slot"))
	if err != nil {
		return 0, 0, errBadSlotParams
	}
	return day, slot, nil
}

// statusFor maps board errors to 400 and anything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrUnknownTimezone),
		errors.Is(err, board.ErrInvalidDirection),
		errors.Is(err, board.ErrSlotOutOfRange),
		errors.Is(err, board.ErrPastSlot),
		errors.Is(err, errBadSlotParams):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
