// Package api HTTP 查询接口
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"klgrid/level"
	"klgrid/logger"
	"klgrid/store"
)

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	st         *store.Store
	symbol     string
	httpServer *http.Server
	port       int
}

// NewServer Creates API server
func NewServer(st *store.Store, symbol string, port int) *Server {
	// Set to Release mode (reduce log output)
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		st:     st,
		symbol: symbol,
		port:   port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// setupRoutes Setup routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)
		api.GET("/levels", s.handleLevels)
		api.GET("/levels/history", s.handleLevelHistory)
		api.GET("/audit", s.handleAudit)
		api.GET("/grid", s.handleGrid)
	}
}

// Start 启动 HTTP 服务
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	logger.Infof("api: listening on :%d", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleLevels 返回指定方向的活跃快照
func (s *Server) handleLevels(c *gin.Context) {
	role, ok := parseRole(c.DefaultQuery("role", "support"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be support or resistance"})
		return
	}

	snap, err := s.st.Level().GetActive(s.querySymbol(c), role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleLevelHistory 返回历史快照
func (s *Server) handleLevelHistory(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	snapshots, err := s.st.Level().History(s.querySymbol(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// handleAudit 返回最近一次审计记录
func (s *Server) handleAudit(c *gin.Context) {
	role, ok := parseRole(c.DefaultQuery("role", "support"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be support or resistance"})
		return
	}

	rec, err := s.st.Audit().Latest(s.querySymbol(c), role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audit record"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleGrid 返回活跃网格会话及挂单意图
func (s *Server) handleGrid(c *gin.Context) {
	session, err := s.st.Grid().ActiveSession(s.querySymbol(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active grid session"})
		return
	}

	intents, err := s.st.Grid().IntentsBySession(session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "intents": intents})
}

func (s *Server) querySymbol(c *gin.Context) string {
	if symbol := c.Query("symbol"); symbol != "" {
		return symbol
	}
	return s.symbol
}

func parseRole(v string) (level.Role, bool) {
	switch v {
	case "support":
		return level.RoleSupport, true
	case "resistance":
		return level.RoleResistance, true
	default:
		return "", false
	}
}
