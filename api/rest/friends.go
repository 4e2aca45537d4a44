package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/friends"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"go.uber.org/zap"
)

// FriendsHandler exposes the relationship engine over REST. The acting user
// is always the authenticated one.
type FriendsHandler struct {
	svc    *friends.Service
	logger *zap.Logger
}

// NewFriendsHandler creates a new FriendsHandler.
func NewFriendsHandler(svc *friends.Service, logger *zap.Logger) *FriendsHandler {
	return &FriendsHandler{svc: svc, logger: logger}
}

// Register mounts the friends routes on g.
func (h *FriendsHandler) Register(g *gin.RouterGroup) {
	g.POST("/request", h.SendRequest)
	g.POST("/request/:id/response", h.Respond)
	g.DELETE("/request/:id", h.Cancel)
	g.GET("/requests", h.ListRequests)
	g.GET("/list", h.ListFriends)
	g.DELETE("/list/:user_id", h.RemoveFriend)
	g.GET("/search", h.Search)
	g.POST("/block", h.Block)
	g.POST("/unblock", h.Unblock)
	g.GET("/blocked", h.ListBlocked)
	g.PUT("/profile", h.UpdateProfile)
}

func (h *FriendsHandler) fail(c *gin.Context, err error) { writeError(c, h.logger, err) }

func queryLimit(c *gin.Context) (int, bool) {
	s := c.Query("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "errcode": "invalid_argument"})
		return 0, false
	}
	return n, true
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "errcode": "invalid_argument"})
		return false
	}
	return true
}

// SendRequest handles POST /api/friends/request.
func (h *FriendsHandler) SendRequest(c *gin.Context) {
	var req struct {
		Target  string `json:"target" binding:"required"`
		Message string `json:"message"`
	}
	if !bind(c, &req) {
		return
	}
	fr, err := h.svc.Requests.Create(c.Request.Context(), mw.GetUserID(c), req.Target, req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": fr})
}

// Respond handles POST /api/friends/request/:id/response.
func (h *FriendsHandler) Respond(c *gin.Context) {
	var req struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	fr, err := h.svc.Requests.Respond(c.Request.Context(), c.Param("id"), mw.GetUserID(c), *req.Accept)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": fr})
}

// Cancel handles DELETE /api/friends/request/:id.
func (h *FriendsHandler) Cancel(c *gin.Context) {
	fr, err := h.svc.Requests.Cancel(c.Request.Context(), c.Param("id"), mw.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": fr})
}

// ListRequests handles GET /api/friends/requests?direction=received|sent.
func (h *FriendsHandler) ListRequests(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	p, err := h.svc.Query.ListPending(c.Request.Context(), mw.GetUserID(c),
		c.DefaultQuery("direction", "received"), c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListFriends handles GET /api/friends/list.
func (h *FriendsHandler) ListFriends(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	p, err := h.svc.Query.ListFriends(c.Request.Context(), mw.GetUserID(c), c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RemoveFriend handles DELETE /api/friends/list/:user_id.
func (h *FriendsHandler) RemoveFriend(c *gin.Context) {
	if err := h.svc.Requests.RemoveFriend(c.Request.Context(), mw.GetUserID(c), c.Param("user_id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// Search handles GET /api/friends/search?q=.
func (h *FriendsHandler) Search(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	res, err := h.svc.Query.SearchCandidates(c.Request.Context(), c.Query("q"), mw.GetUserID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

type targetRequest struct {
	Target string `json:"target" binding:"required"`
}

// Block handles POST /api/friends/block.
func (h *FriendsHandler) Block(c *gin.Context) {
	var req targetRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Blocks.Block(c.Request.Context(), mw.GetUserID(c), req.Target); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "blocked"})
}

// Unblock handles POST /api/friends/unblock.
func (h *FriendsHandler) Unblock(c *gin.Context) {
	var req targetRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Blocks.Unblock(c.Request.Context(), mw.GetUserID(c), req.Target); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}

// ListBlocked handles GET /api/friends/blocked.
func (h *FriendsHandler) ListBlocked(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	p, err := h.svc.Query.ListBlocked(c.Request.Context(), mw.GetUserID(c), c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProfile handles PUT /api/friends/profile.
func (h *FriendsHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		DisplayName  string `json:"display_name"`
		Discoverable *bool  `json:"discoverable" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Query.UpdateProfile(c.Request.Context(), mw.GetUserID(c), req.DisplayName, *req.Discoverable); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated"})
}
