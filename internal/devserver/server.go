// Package devserver is a local stand-in for the booking backend: the room
// REST endpoints and the realtime websocket, backed by memory.
package devserver

import (
	stdhttp "net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bookchat/internal/auth"
	"github.com/vovakirdan/bookchat/internal/config"
)

// DefaultRateLimit is the number of intents a connection may send per minute.
const DefaultRateLimit = 120

// Options configure the sandbox server.
type Options struct {
	Addr      string
	JWT       *auth.JWTConfig
	RateLimit int
	Clock     clock.Clock
	Logger    *zerolog.Logger
}

// NewRouter builds the gin engine with every sandbox route.
func NewRouter(backend *Backend, opts Options) *gin.Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.JWT == nil {
		opts.JWT = &auth.JWTConfig{}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(opts.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	rooms := NewRoomHandlers(backend, opts.Logger)
	ws := NewWSHandler(backend, opts.Clock, opts.RateLimit, opts.Logger)

	api := router.Group("/api", AuthMiddleware(opts.JWT, opts.Logger))
	api.GET("/chat/rooms", rooms.ListRooms(config.RoleCustomer))
	api.GET("/owner/chat/rooms", rooms.ListRooms(config.RoleOwner))
	api.GET("/coach/chat/rooms", rooms.ListRooms(config.RoleCoach))
	api.GET("/chat/rooms/:id", rooms.GetRoom)
	api.PATCH("/chat/rooms/:id/read", rooms.MarkRead)
	api.GET("/chat/unread-count", rooms.UnreadCount)

	router.GET("/ws", AuthMiddleware(opts.JWT, opts.Logger), ws.Serve)

	return router
}

// NewServer builds an HTTP server for the sandbox.
func NewServer(backend *Backend, opts Options) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(backend, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
