package routing

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tangled.org/creel.social/creel/internal/handlers"
	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/middleware"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Logger   zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Create CrossOriginProtection for CSRF protection on state-changing routes
	cop := http.NewCrossOriginProtection()

	// End-user API routes
	mux.Handle("POST /api/report", cop.Handler(http.HandlerFunc(h.HandleSubmitReport)))
	mux.HandleFunc("GET /api/users/{id}/status", h.HandleUserStatus)
	mux.Handle("GET /api/notifications", identity.Require(http.HandlerFunc(h.HandleListNotifications)))
	mux.Handle("GET /api/notifications/unread", identity.Require(http.HandlerFunc(h.HandleUnreadCount)))
	mux.Handle("POST /api/notifications/read", cop.Handler(identity.Require(http.HandlerFunc(h.HandleMarkNotificationsRead))))
	mux.Handle("POST /api/limits/{action}/consume", cop.Handler(identity.Require(http.HandlerFunc(h.HandleConsumeLimit))))

	// Moderator routes. Fine-grained permission checks happen in the
	// services; these wrappers only require a known identity.
	mux.Handle("GET /mod/reports", identity.Require(http.HandlerFunc(h.HandleListReports)))
	mux.Handle("GET /mod/reports/{id}", identity.Require(http.HandlerFunc(h.HandleReportContext)))
	mux.Handle("POST /mod/reports/{id}/status", cop.Handler(identity.Require(http.HandlerFunc(h.HandleUpdateReportStatus))))
	mux.Handle("POST /mod/reports/{id}/resolve", cop.Handler(identity.Require(http.HandlerFunc(h.HandleResolveReport))))

	mux.Handle("GET /mod/users/{id}", identity.Require(http.HandlerFunc(h.HandleUserRecord)))
	mux.Handle("POST /mod/users/{id}/action", cop.Handler(identity.Require(http.HandlerFunc(h.HandleModerationAction))))
	mux.Handle("POST /mod/users/{id}/lift", cop.Handler(identity.Require(http.HandlerFunc(h.HandleLiftRestrictions))))

	mux.Handle("POST /mod/content/{type}/{id}/delete", cop.Handler(identity.Require(http.HandlerFunc(h.HandleDeleteContent))))
	mux.Handle("POST /mod/content/{type}/{id}/restore", cop.Handler(identity.Require(http.HandlerFunc(h.HandleRestoreContent))))

	mux.Handle("GET /mod/audit", identity.Require(http.HandlerFunc(h.HandleAuditLog)))
	mux.Handle("GET /mod/audit/export", identity.Require(http.HandlerFunc(h.HandleAuditExport)))
	mux.Handle("GET /mod/audit/{type}/{id}", identity.Require(http.HandlerFunc(h.HandleAuditForTarget)))
	mux.Handle("GET /mod/stats", identity.Require(http.HandlerFunc(h.HandleModStats)))
	mux.Handle("GET /mod/stream", identity.Require(http.HandlerFunc(h.HandleStream)))

	// Operational endpoints
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Extract the gateway identity header into the context
	handler = identity.Middleware(handler)

	// 3. Apply per-IP rate limiting
	rateLimitConfig := middleware.NewDefaultRateLimitConfig()
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 4. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 5. Apply logging middleware (outermost - wraps everything)
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	return handler
}
