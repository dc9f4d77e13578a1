package api

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/atelier-portal/portal-sync/internal/api/handler"
	"github.com/atelier-portal/portal-sync/internal/api/middleware"
	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

const (
	streamRoute  = "/v1/clients/:client_id/stream"
	metricsRoute = "/metrics"
)

// RouterDeps carries everything the HTTP layer needs. Services are built by
// the caller so storage and push backends stay swappable.
type RouterDeps struct {
	Auth          ports.AuthService
	Assignments   ports.AssignmentStore
	Clients       ports.ClientDirectory
	Notifications ports.NotificationStore
	Presence      ports.PresenceTracker
	Readiness     map[string]handler.Pinger
	JWTSecret     string
	KeepAlive     time.Duration
	Log           zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	httpMetrics, metricsHandler := metrics.HTTP(streamRoute, metricsRoute)
	e.Use(httpMetrics)

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	assignmentHandler := handler.NewAssignmentHandler(d.Assignments, d.Clients)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)
	presenceHandler := handler.NewPresenceHandler(d.Presence)
	streamHandler := handler.NewStreamHandler(d.Assignments, d.Notifications, d.KeepAlive, d.Log)
	authMiddleware := middleware.Auth(d.JWTSecret)
	staffOnly := middleware.RBAC(domain.RoleAdmin, domain.RoleSeller)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/register", authHandler.Register, authMiddleware, middleware.RBAC(domain.RoleAdmin))

	// --- Portal routes ---
	v1 := e.Group("/v1", authMiddleware)

	clients := v1.Group("/clients/:client_id")
	clients.GET("", assignmentHandler.GetClient)
	clients.GET("/assignment", assignmentHandler.Get)
	clients.PUT("/assignment", assignmentHandler.Put, staffOnly)
	clients.DELETE("/assignment", assignmentHandler.Delete, staffOnly)
	clients.GET("/messages/unread", notificationHandler.Unread)
	clients.POST("/messages", notificationHandler.Append)
	clients.GET("/stream", streamHandler.Stream)

	v1.POST("/messages/read", notificationHandler.MarkRead)
	v1.POST("/presence/heartbeat", presenceHandler.Heartbeat)
	v1.GET("/presence/:viewer_id", presenceHandler.Get, staffOnly)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)           // process up
	e.GET("/health/ready", readinessHandler.Readiness) // stores reachable

	// --- Operations ---
	e.GET(metricsRoute, metricsHandler)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
