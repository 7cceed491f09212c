package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/village-chat/internal/auth"
	"github.com/vovakirdan/village-chat/internal/config"
	"github.com/vovakirdan/village-chat/internal/relay"
	"github.com/vovakirdan/village-chat/internal/service/rooms"
)

// NewServer builds the relay HTTP server: room REST endpoints and the /chats WebSocket.
func NewServer(hub *relay.Hub, authService *auth.Service, roomService *rooms.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	roomHandlers := NewRoomHandlers(roomService, logger)
	chat := router.Group("/chat")
	chat.Use(AuthMiddleware(authService, logger))
	{
		chat.GET("/room", roomHandlers.ListRooms)
		chat.POST("/room", roomHandlers.CreateRoom)
		chat.GET("/room/:id", roomHandlers.GetRoom)
		chat.DELETE("/room/:id", roomHandlers.DeleteRoom)
	}

	ws := NewWSHandler(hub, authService, WSOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		ClientBuffer:    cfg.ClientBuffer,
		RateLimit:       cfg.RateLimit,
	}, logger)

	// The WebSocket endpoint bypasses gin: its response writer refuses to be
	// hijacked once the router has touched it.
	mux := stdhttp.NewServeMux()
	mux.Handle("/chats", ws)
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
