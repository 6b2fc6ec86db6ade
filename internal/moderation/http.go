package moderation

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/ban"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BanRequest is the body of POST /ban. The address may be given as "ip" or
// "address"; "address" wins when both are set.
type BanRequest struct {
	IP        string     `json:"ip"`
	Address   string     `json:"address"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type banInput struct {
	Address string `validate:"required,max=255"`
	Reason  string `validate:"max=512"`
}

// AdminAPI exposes the Service over HTTP.
type AdminAPI struct {
	svc      *Service
	validate *validator.Validate
	token    string
	logger   *zap.Logger
}

// NewAdminAPI creates the admin endpoints. A non-empty token requires every
// request to carry "Authorization: Bearer <token>".
func NewAdminAPI(svc *Service, token string, logger *zap.Logger) *AdminAPI {
	return &AdminAPI{
		svc:      svc,
		validate: validator.New(),
		token:    token,
		logger:   logger.Named("admin"),
	}
}

// Routes returns a router meant to be mounted at /api/admin.
func (a *AdminAPI) Routes() http.Handler {
	r := chi.NewRouter()
	if a.token != "" {
		r.Use(a.requireToken)
	}
	r.Post("/ban", a.ban)
	r.Get("/banned", a.list)
	r.Delete("/unban/{address}", a.unban)
	return r
}

func (a *AdminAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAPI) ban(w http.ResponseWriter, r *http.Request) {
	var body BanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	in := banInput{
		Address: strings.TrimSpace(lo.CoalesceOrEmpty(body.Address, body.IP)),
		Reason:  body.Reason,
	}
	if err := a.validate.Struct(in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(describeValidation(err)))
		return
	}

	var opts []BanOption
	if body.ExpiresAt != nil {
		opts = append(opts, WithExpiry(*body.ExpiresAt))
	}
	if err := a.svc.Ban(r.Context(), in.Address, in.Reason, opts...); err != nil {
		a.logger.Error("ban failed", zap.String("address", in.Address), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("ban failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *AdminAPI) list(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.List(r.Context())
	if err != nil {
		a.logger.Error("list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("list failed"))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *AdminAPI) unban(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := a.svc.Unban(r.Context(), address); err != nil {
		if errors.Is(err, ban.ErrEmptyAddress) {
			writeJSON(w, http.StatusBadRequest, errorBody("address is required"))
			return
		}
		a.logger.Error("unban failed", zap.String("address", address), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("unban failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " is too long"
	default:
		return field + " is invalid"
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
