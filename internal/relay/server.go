package relay

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"minigames/internal/domain"
	"minigames/internal/realtime"
)

// Server exposes the relay over HTTP: a health probe, room provisioning,
// and the websocket realtime endpoint.
type Server struct {
	hub      *Hub
	logger   *log.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer wires a hub behind the HTTP surface.
func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		hub:    NewHub(logger),
		logger: logger,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers and bots connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	engine.GET("/healthz", s.handleHealth)
	engine.POST("/v1/rooms", s.handleCreateRoom)
	engine.GET("/v1/rooms/:code", s.handleRoomInfo)
	engine.GET("/realtime", s.handleRealtime)
	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Printf("relay: listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": s.hub.RoomCount()})
}

type createRoomRequest struct {
	GameType domain.GameType `json:"gameType"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	// An absent or malformed body falls back to the default game type.
	if err := c.ShouldBindJSON(&req); err != nil {
		req.GameType = ""
	}
	if req.GameType == "" {
		req.GameType = domain.GameRedLightGreenLight
	}
	room := domain.Room{
		Code:      domain.NewRoomCode(),
		CreatedAt: time.Now().UnixMilli(),
		GameType:  req.GameType,
	}
	c.JSON(http.StatusCreated, room)
}

func (s *Server) handleRoomInfo(c *gin.Context) {
	code := domain.NormalizeRoomCode(c.Param("code"))
	if !domain.ValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    code,
		"players": s.hub.RoomSize("room:" + code),
	})
}

// handleRealtime upgrades the connection and runs the join handshake: the
// first frame must be a join naming the channel and the client key.
func (s *Server) handleRealtime(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("relay: upgrade: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(joinDeadline))
	var join realtime.Frame
	if err := conn.ReadJSON(&join); err != nil || join.Type != realtime.FrameJoin || join.Channel == "" || join.Key == "" {
		conn.WriteJSON(realtime.Frame{Type: realtime.FrameError, Reason: "expected join frame"})
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	client := newClient(s.hub, conn, join.Channel, join.Key)
	s.hub.join(client)
	go client.writePump()
	client.readPump()
}

const joinDeadline = 10 * time.Second
