package hub

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/crypto"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// PairSecretHeader carries the hub secret on pairing requests.
const PairSecretHeader = "X-Posdisplay-Secret"

// DefaultTokenTTL is the lifetime of tokens issued by /v1/pair.
const DefaultTokenTTL = 30 * 24 * time.Hour

// PairRequest is the body of POST /v1/pair.
type PairRequest struct {
	Terminal string `json:"terminal" binding:"required"`
	Role     string `json:"role"`
}

// PairResponse is returned by POST /v1/pair.
type PairResponse struct {
	Token    string `json:"token"`
	Terminal string `json:"terminal"`
	Role     string `json:"role"`
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Debugf("[%s] %s - %d (%v)", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

type routes struct {
	registry *Registry
	jwt      *crypto.JWTManager
	secret   string
	tokenTTL time.Duration
}

// NewRouter builds the hub HTTP surface. socketHandler serves wire.SocketPath and
// may be nil when only the REST routes are needed.
func NewRouter(registry *Registry, jwt *crypto.JWTManager, secret string, socketHandler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", PairSecretHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(LoggingMiddleware())

	rt := &routes{registry: registry, jwt: jwt, secret: secret, tokenTTL: DefaultTokenTTL}
	router.GET("/healthz", rt.health)
	router.GET("/v1/terminals/:id/status", rt.terminalStatus)
	router.POST("/v1/pair", rt.pair)

	if socketHandler != nil {
		router.Any(wire.SocketPath, socketHandler)
		router.Any(wire.SocketPath+"/*any", socketHandler)
	}
	return router
}

func (rt *routes) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rt *routes) terminalStatus(c *gin.Context) {
	c.JSON(http.StatusOK, rt.registry.Status(c.Param("id")))
}

func (rt *routes) pair(c *gin.Context) {
	given := c.GetHeader(PairSecretHeader)
	if rt.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(rt.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid pairing secret"})
		return
	}

	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Terminal = strings.TrimSpace(req.Terminal)
	if req.Role == "" {
		req.Role = wire.RoleDisplay
	}

	token, err := rt.jwt.CreateToken(req.Role, req.Terminal, rt.tokenTTL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("Issued %s token for terminal %s", req.Role, req.Terminal)
	c.JSON(http.StatusOK, PairResponse{Token: token, Terminal: req.Terminal, Role: req.Role})
}
