package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/crypto"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"
)

const (
	// socketPingInterval controls how quickly a vanished display or operator
	// is noticed by the hub.
	socketPingInterval = 5 * time.Second
	socketPingTimeout  = 15 * time.Second
)

// SocketIOServer accepts operator and display sockets and wires them into
// a Registry.
type SocketIOServer struct {
	jwtManager *crypto.JWTManager
	registry   *Registry
	server     *socket.Server
	socketData sync.Map // socket id -> *SocketData
}

// socketAuth is the handshake auth payload.
type socketAuth struct {
	Token string `json:"token"`
}

// SocketData is the authenticated identity of a socket.
type SocketData struct {
	Role     string
	Terminal string
}

// NewSocketIOServer creates the Socket.IO server.
func NewSocketIOServer(jwtManager *crypto.JWTManager, registry *Registry) *SocketIOServer {
	opts := socket.DefaultServerOptions()
	opts.SetCors(&sockettypes.Cors{
		Origin:      "*",
		Credentials: false,
	})
	opts.SetPingTimeout(socketPingTimeout)
	opts.SetPingInterval(socketPingInterval)
	opts.SetPath(wire.SocketPath)

	s := &SocketIOServer{
		jwtManager: jwtManager,
		registry:   registry,
		server:     socket.NewServer(nil, opts),
	}
	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})
	return s
}

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	authMap := client.Handshake().Auth
	if len(authMap) == 0 {
		logger.Warnf("Socket %s rejected: missing auth", socketID)
		client.Emit("error", map[string]string{"message": "Missing authentication data"})
		client.Disconnect(true)
		return
	}
	var auth socketAuth
	if err := decodeAny(authMap, &auth); err != nil {
		logger.Warnf("Socket %s rejected: invalid auth: %v", socketID, err)
		client.Emit("error", map[string]string{"message": "Invalid authentication data"})
		client.Disconnect(true)
		return
	}
	claims, err := s.jwtManager.VerifyToken(auth.Token)
	if err != nil {
		logger.Warnf("Socket %s rejected: %v", socketID, err)
		client.Emit("error", map[string]string{"message": "Invalid authentication token"})
		client.Disconnect(true)
		return
	}

	sd := &SocketData{Role: claims.Role, Terminal: claims.Terminal}
	s.socketData.Store(socketID, sd)
	peer := &socketPeer{sock: client}

	switch claims.Role {
	case wire.RoleDisplay:
		s.registry.AddDisplay(claims.Terminal, peer)
		s.setupDisplayHandlers(client)
	default:
		s.registry.AddOperator(claims.Terminal, peer)
		s.setupOperatorHandlers(client)
	}
	logger.Infof("%s connected: terminal %s (socket %s)", claims.Role, claims.Terminal, socketID)

	client.On("disconnect", func(data ...any) {
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("%s disconnected: terminal %s (socket %s, reason: %s)", sd.Role, sd.Terminal, socketID, reason)
		s.socketData.Delete(socketID)
		s.registry.Remove(socketID, reason)
	})
}

func (s *SocketIOServer) setupOperatorHandlers(client *socket.Socket) {
	socketID := string(client.Id())

	client.On(wire.EventSurfaceOpen, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		if ack == nil {
			logger.Warnf("surface:open from %s without ack", socketID)
			return
		}
		var req wire.SurfaceOpenRequest
		if err := decodeAny(raw, &req); err != nil || req.SurfaceID == "" {
			ack(wire.SurfaceOpenAck{OK: false, Reason: "invalid surface:open payload"})
			return
		}
		s.registry.OpenSurface(socketID, req, func(res wire.SurfaceOpenAck) {
			ack(res)
		})
	})

	client.On(wire.EventSurfaceClose, func(data ...any) {
		raw, _ := getFirstAnyWithAck(data)
		var ref wire.SurfaceRef
		if err := decodeAny(raw, &ref); err != nil {
			return
		}
		if err := s.registry.CloseSurface(socketID, ref); err != nil {
			logger.Debugf("surface:close from %s: %v", socketID, err)
		}
	})

	client.On(wire.EventEnvelope, func(data ...any) {
		raw, _ := getFirstAnyWithAck(data)
		var msg wire.EnvelopeMessage
		if err := decodeAny(raw, &msg); err != nil {
			logger.Warnf("Malformed envelope from %s: %v", socketID, err)
			return
		}
		if err := msg.Envelope.Validate(); err != nil {
			logger.Warnf("Invalid envelope from %s: %v", socketID, err)
			return
		}
		if err := s.registry.Relay(socketID, msg); err != nil {
			logger.Debugf("Relay from %s failed: %v", socketID, err)
		}
	})
}

func (s *SocketIOServer) setupDisplayHandlers(client *socket.Socket) {
	socketID := string(client.Id())

	client.On(wire.EventSurfaceClosed, func(data ...any) {
		raw, _ := getFirstAnyWithAck(data)
		var ref wire.SurfaceRef
		if err := decodeAny(raw, &ref); err != nil {
			return
		}
		s.registry.SurfaceClosed(socketID, ref)
	})
}

// HandleSocketIO creates a Gin handler for Socket.IO.
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}

		logger.Tracef("Socket.IO request: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server.
func (s *SocketIOServer) Close() {
	s.server.Close(nil)
}

// socketPeer adapts a server socket to Peer.
type socketPeer struct {
	sock *socket.Socket
}

func (p *socketPeer) ID() string { return string(p.sock.Id()) }

func (p *socketPeer) Emit(event string, payload any) {
	p.sock.Emit(event, payload)
}

func (p *socketPeer) Request(event string, payload any, timeout time.Duration, reply func(args []any, err error)) {
	p.sock.Timeout(timeout).EmitWithAck(event, payload)(func(args []any, err error) {
		reply(args, err)
	})
}

func (p *socketPeer) Disconnect() {
	p.sock.Disconnect(true)
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}
