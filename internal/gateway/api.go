package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/chat"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxHistoryLimit caps the limit query parameter of the history endpoint.
const MaxHistoryLimit = 500

// HistoryAPI serves GET / with the most recent messages, oldest first.
type HistoryAPI struct {
	store        chat.Store
	defaultLimit int
	timeout      time.Duration
	logger       *zap.Logger
}

// NewHistoryAPI creates the history endpoint. defaultLimit applies when the
// request has no limit parameter.
func NewHistoryAPI(store chat.Store, defaultLimit int, timeout time.Duration, logger *zap.Logger) *HistoryAPI {
	if defaultLimit <= 0 {
		defaultLimit = chat.DefaultRecentLimit
	}
	return &HistoryAPI{
		store:        store,
		defaultLimit: defaultLimit,
		timeout:      timeout,
		logger:       logger.Named("history"),
	}
}

// Routes returns a router meant to be mounted at /api/messages.
func (a *HistoryAPI) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", a.list)
	return r
}

func (a *HistoryAPI) list(w http.ResponseWriter, r *http.Request) {
	limit := a.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	ctx := r.Context()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	msgs, err := a.store.Recent(ctx, limit)
	if err != nil {
		a.logger.Error("recent failed", zap.Int("limit", limit), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
