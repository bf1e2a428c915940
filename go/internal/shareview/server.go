package shareview

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/internal/store"
)

// Milliseconds reads the cosmetic sub-second counter for a timer.
type Milliseconds interface {
	Milliseconds(id string) int
}

// Handler serves the read-only shared countdown screens: anyone holding a
// share id can watch the reconciled state without authenticating.
type Handler struct {
	store *store.Store
	ms    Milliseconds
}

// NewHandler creates a share-view handler. ms may be nil when no ticker is
// attached.
func NewHandler(st *store.Store, ms Milliseconds) *Handler {
	return &Handler{store: st, ms: ms}
}

// sharedTimer is the public read model for one shared countdown.
type sharedTimer struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Remaining        int    `json:"remaining"`
	Milliseconds     int    `json:"milliseconds"`
	OriginalDuration int    `json:"originalDuration"`
	IsRunning        bool   `json:"isRunning"`
	Theme            string `json:"theme"`
	ShowMilliseconds bool   `json:"showMilliseconds"`
}

type errorResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// RegisterRoutes mounts the share-view routes on a router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/share/{shareId}", h.handleShare).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	shareID := mux.Vars(r)["shareId"]
	if shareID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Msg: "share id is required"})
		return
	}

	tm, ok := h.store.PeekByShareID(shareID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Msg: "no timer with that share id"})
		return
	}
	if !tm.IsPublic {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Msg: "no timer with that share id"})
		return
	}

	view := sharedTimer{
		Name:             tm.Name,
		Description:      tm.Description,
		Remaining:        tm.Remaining,
		OriginalDuration: tm.OriginalDuration,
		IsRunning:        tm.IsRunning,
		Theme:            tm.Theme,
		ShowMilliseconds: tm.ShowMilliseconds,
	}
	if h.ms != nil && tm.ShowMilliseconds {
		view.Milliseconds = h.ms.Milliseconds(tm.ID)
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode share view response")
	}
}
