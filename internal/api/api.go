// Package api exposes the session over a small local HTTP/JSON interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phuslu/log"

	"gameboost/internal/logger"
	"gameboost/internal/session"
)

// Sessions is the part of session.Manager served over HTTP.
type Sessions interface {
	Activate(cfg session.Config) (session.ActivationResult, error)
	Deactivate() (session.DeactivationResult, error)
	Status() session.Status
	Suspended() []session.SuspendedProcessRecord
	Ledger() []session.LedgerEntry
}

// StatusResponse is the body of GET /session.
type StatusResponse struct {
	session.Status
	Suspended []session.SuspendedProcessRecord `json:"suspended"`
	Ledger    []session.LedgerEntry            `json:"ledger"`
	Games     []string                         `json:"games,omitempty"`
}

type errorResponse struct {
	Error string        `json:"error"`
	State session.State `json:"state"`
}

// Handler serves the session endpoints.
type Handler struct {
	sessions Sessions
	config   func() session.Config
	games    func() []string
	log      *log.Logger
}

// NewHandler returns a Handler. config supplies the settings for each
// activation; games, if not nil, lists detected games for the status view.
func NewHandler(sessions Sessions, config func() session.Config, games func() []string) *Handler {
	return &Handler{
		sessions: sessions,
		config:   config,
		games:    games,
		log:      logger.NewLoggerWithContext("api"),
	}
}

// Register adds the session routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /session", h.status)
	mux.HandleFunc("POST /session/activate", h.activate)
	mux.HandleFunc("POST /session/deactivate", h.deactivate)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:    h.sessions.Status(),
		Suspended: h.sessions.Suspended(),
		Ledger:    h.sessions.Ledger(),
	}
	if resp.Suspended == nil {
		resp.Suspended = []session.SuspendedProcessRecord{}
	}
	if resp.Ledger == nil {
		resp.Ledger = []session.LedgerEntry{}
	}
	if h.games != nil {
		resp.Games = h.games()
	}
	h.write(w, http.StatusOK, resp)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Activate(h.config())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusOK, res)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Deactivate()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusOK, res)
}

// fail maps state errors to 409; anything else is a 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, session.ErrAlreadyActive) || errors.Is(err, session.ErrNotActive) {
		code = http.StatusConflict
	}
	h.log.Debug().Err(err).Str("path", r.URL.Path).Int("code", code).Msg("Request rejected")
	h.write(w, code, errorResponse{Error: err.Error(), State: h.sessions.Status().State})
}

func (h *Handler) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to write response")
	}
}
