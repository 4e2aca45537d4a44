package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/identity"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles operator REST endpoints.
// Routes should be protected by the IPWhitelist middleware.
type AdminHandler struct {
	sched    *scheduler.Scheduler
	resolver *identity.Resolver
	sec      config.SecurityConfig
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	sched *scheduler.Scheduler,
	resolver *identity.Resolver,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{sched: sched, resolver: resolver, sec: sec, logger: logger}
}

// Tasks returns the scheduler task table.
// GET /api/admin/tasks
func (h *AdminHandler) Tasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunTask triggers a scheduler task immediately.
// POST /api/admin/tasks/:name/run
func (h *AdminHandler) RunTask(c *gin.Context) {
	name := c.Param("name")
	if !h.sched.RunNow(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	h.logger.Info("admin triggered task", zap.String("task", name))
	c.JSON(http.StatusAccepted, gin.H{"message": "task started"})
}

// IssueToken signs a token for a user, for tooling and local development.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.resolver.Resolve(req.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	token, err := mw.GenerateToken(id.String(), h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	h.logger.Info("admin issued token", zap.String("user", id.String()))
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": id.String()})
}
