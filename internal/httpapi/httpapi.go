package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"billdesk/internal/document"
	"billdesk/internal/domain"
	"billdesk/internal/observability"
	"billdesk/internal/reporting"
	"billdesk/internal/service"
	"billdesk/internal/store"
)

type Options struct {
	Service       *service.Service
	Reports       *reporting.Aggregator
	Auth          *AuthManager
	Documents     *document.Renderer
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	AllowedOrigin string
	// Location interprets ?date= query parameters.
	Location   *time.Location
	Production bool
	// LoginLimit is the number of login attempts allowed per IP per minute.
	LoginLimit int
}

type API struct {
	service       *service.Service
	reports       *reporting.Aggregator
	auth          *AuthManager
	documents     *document.Renderer
	metrics       *observability.Metrics
	logger        *slog.Logger
	allowedOrigin string
	location      *time.Location
	production    bool
	loginLimit    int
}

func New(opts Options) *API {
	api := &API{
		service:       opts.Service,
		reports:       opts.Reports,
		auth:          opts.Auth,
		documents:     opts.Documents,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		allowedOrigin: opts.AllowedOrigin,
		location:      opts.Location,
		production:    opts.Production,
		loginLimit:    opts.LoginLimit,
	}
	if api.logger == nil {
		api.logger = slog.Default()
	}
	if api.location == nil {
		api.location = time.Local
	}
	if api.documents == nil {
		api.documents = document.NewRenderer("", nil)
	}
	if api.loginLimit < 1 {
		api.loginLimit = 5
	}
	return api
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		a.secureHeaders(),
		a.cors,
		a.metrics.Middleware,
	)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.Limit(a.loginLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			}),
		)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth())

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleSearchSales)
				r.Post("/", a.handleCreateSale)
				r.Get("/next-id", a.handleNextBillID)
				r.Get("/{billID}", a.handleGetSale)
				r.Put("/{billID}", a.handleUpdateSale)
				r.Get("/{billID}/document", a.handleBillDocument)
				r.With(a.requireRole(RoleAdmin)).Delete("/{billID}", a.handleDeleteSale)
			})

			r.Route("/purchases", func(r chi.Router) {
				r.Post("/general", a.handleCreatePurchase(false))
				r.Post("/tracked", a.handleCreatePurchase(true))
				r.Get("/items", a.handleListPurchaseLines)
				r.Put("/items/{id}", a.handleEditPurchaseItem)
				r.Delete("/items/{id}", a.handleDeletePurchaseItem)
			})

			r.Route("/expenditures", func(r chi.Router) {
				r.Get("/", a.handleListExpenditures)
				r.Post("/", a.handleAddExpenditure)
				r.Put("/{id}", a.handleUpdateExpenditure)
				r.Delete("/{id}", a.handleDeleteExpenditure)
			})

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", a.handleListInventory)
				r.Get("/movements", a.handleListMovements)
				r.With(a.requireRole(RoleAdmin)).Delete("/{id}", a.handleDeleteInventory)
			})

			r.Route("/reminders", func(r chi.Router) {
				r.Get("/due", a.handleDueReminders)
				r.Post("/{id}/notified", a.handleMarkReminder)
				r.Post("/{id}/send", a.handleSendReminder)
			})

			r.Get("/reports/summary", a.handleSummary)
			r.Get("/reports/dashboard", a.handleDashboard)

			r.Get("/business-profile", a.handleGetProfile)
			r.With(a.requireRole(RoleAdmin)).Put("/business-profile", a.handleSaveProfile)

			r.Route("/users", func(r chi.Router) {
				r.Use(a.requireRole(RoleAdmin))
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Delete("/{username}", a.handleDeleteUser)
			})
		})
	})

	return r
}

func (a *API) secureHeaders() func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
		SSLRedirect:           a.production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return sec.Handler
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			actor, err := a.auth.ParseToken(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps the store error categories onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConsistency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// parseDay reads ?date=YYYY-MM-DD in the configured location. A missing
// value means today.
func (a *API) parseDay(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now().In(a.location), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, a.location)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return day, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses never carry driver or file system details.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
