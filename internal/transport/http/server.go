package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/config"
	"github.com/overchat/relay-server/internal/core"
	"github.com/overchat/relay-server/internal/identity"
	"github.com/overchat/relay-server/internal/mailbox"
	"github.com/overchat/relay-server/internal/moderation"
	"github.com/overchat/relay-server/internal/registry"
	"github.com/overchat/relay-server/internal/verify"
)

// Deps bundles the components behind the transport surfaces.
type Deps struct {
	Channels  *core.Registry
	Queue     *moderation.Queue
	Mailboxes *mailbox.Store
	Auth      *registry.Authenticator
	Verifier  *verify.Service
	Hasher    *identity.Hasher
}

// NewServer builds the HTTP server carrying both surfaces. The streaming
// /ws endpoint and /health are served straight from the stdlib mux: the
// websocket upgrade hijacks the connection, which gin's response writer
// does not tolerate. The request/response API routes through gin. The
// returned limiter must run so idle rate-limit buckets get pruned.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) (*stdhttp.Server, *rateLimiter) {
	gin.SetMode(gin.ReleaseMode)

	limiter := newRateLimiter(cfg.EchoRatePerSecond)
	api := NewAPIHandlers(deps.Queue, deps.Mailboxes, deps.Auth, deps.Verifier,
		deps.Hasher, limiter, cfg.MaxMessageBytes, logger)
	ws := NewWSHandler(deps.Channels, deps.Queue, deps.Verifier, deps.Hasher,
		cfg.MaxMessageBytes, cfg.HeartbeatInterval, logger)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.POST("/echo", api.Echo)

	commands := router.Group("/api/v1")
	commands.GET("/commands", RegistryAuthMiddleware(deps.Auth, logger), api.DrainMailbox)
	commands.POST("/commands", AdminAuthMiddleware(cfg.AdminKey, logger), api.PushCommands)

	admin := router.Group("/api/admin", AdminAuthMiddleware(cfg.AdminKey, logger))
	admin.GET("/registry", api.ListServices)
	admin.POST("/registry", api.UpsertService)
	admin.DELETE("/registry/:id", api.RemoveService)

	verifyGroup := router.Group("/api/verify")
	verifyGroup.POST("/generate", api.GenerateCode)
	verifyGroup.POST("/confirm", api.Confirm)
	verifyGroup.POST("/unverify", api.Unverify)

	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return server, limiter
}

func healthHandler(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
	_, _ = fmt.Fprint(w, "OK")
}
