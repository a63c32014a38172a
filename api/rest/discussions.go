package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/discussion"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/store"
)

// DiscussionHandler handles discussion and session REST endpoints.
type DiscussionHandler struct {
	svc *discussion.Service
}

// NewDiscussionHandler creates a DiscussionHandler.
func NewDiscussionHandler(svc *discussion.Service) *DiscussionHandler {
	return &DiscussionHandler{svc: svc}
}

type createDiscussionRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// Create handles POST /api/discussions.
func (h *DiscussionHandler) Create(c *gin.Context) {
	var req createDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.CreateDiscussion(c.Request.Context(), mw.GetAccountID(c), req.Name)
	if err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Get handles GET /api/discussions/:id.
func (h *DiscussionHandler) Get(c *gin.Context) {
	d, err := h.svc.Discussion(c.Request.Context(), c.Param("id"))
	if err != nil {
		discussionError(c, err)
		return
	}
	if !d.HasParticipant(mw.GetAccountID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// Join handles POST /api/discussions/:id/join.
func (h *DiscussionHandler) Join(c *gin.Context) {
	if err := h.svc.AddParticipant(c.Request.Context(), c.Param("id"), mw.GetAccountID(c)); err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

type postMessageRequest struct {
	Text string `json:"text" binding:"required,min=1,max=2000"`
}

// PostMessage handles POST /api/discussions/:id/messages.
func (h *DiscussionHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), c.Param("id"), mw.GetAccountID(c), req.Text)
	if err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Open handles POST /api/discussions/:id/open, resetting the caller's
// unread counter.
func (h *DiscussionHandler) Open(c *gin.Context) {
	if err := h.svc.OpenDiscussion(c.Request.Context(), mw.GetAccountID(c), c.Param("id")); err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "opened"})
}

// Previews handles GET /api/discussions/previews.
func (h *DiscussionHandler) Previews(c *gin.Context) {
	previews, err := h.svc.Previews(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"previews": previews})
}

type createSessionRequest struct {
	Name     string    `json:"name" binding:"required,min=1,max=64"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
}

// CreateSession handles POST /api/discussions/:id/sessions.
func (h *DiscussionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(),
		mw.GetAccountID(c), c.Param("id"), req.Name, req.Location, req.StartsAt)
	if err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession handles GET /api/sessions/:id.
func (h *DiscussionHandler) GetSession(c *gin.Context) {
	sess, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// JoinSession handles POST /api/sessions/:id/join.
func (h *DiscussionHandler) JoinSession(c *gin.Context) {
	if err := h.svc.AddSessionParticipant(c.Request.Context(), c.Param("id"), mw.GetAccountID(c)); err != nil {
		discussionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

func discussionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, discussion.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, discussion.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
