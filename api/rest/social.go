package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meeplemeet/server/audit"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/notification"
	"github.com/meeplemeet/server/relationship"
	"github.com/meeplemeet/server/store"
)

// SocialHandler handles relationship REST endpoints.
type SocialHandler struct {
	rel    *relationship.Engine
	notifs *notification.Engine
	audit  *audit.Service
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(rel *relationship.Engine, notifs *notification.Engine, a *audit.Service) *SocialHandler {
	return &SocialHandler{rel: rel, notifs: notifs, audit: a}
}

// List handles GET /api/social/relationships.
func (h *SocialHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	rels, err := h.rel.Relationships(c.Request.Context(), accountID)
	if err != nil {
		relationshipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": rels})
}

type peerRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// SendRequest handles POST /api/social/request. On success the peer also
// receives a friend request notification; its failure does not undo the
// relationship write, the peer can still accept from the relationship
// state directly.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if err := h.rel.SendFriendRequest(ctx, accountID, req.PeerID); err != nil {
		h.logAction(c, "friend_request", req.PeerID, err)
		relationshipError(c, err)
		return
	}
	if _, err := h.notifs.SendFriendRequestNotification(ctx, req.PeerID, accountID); err != nil {
		h.logAction(c, "friend_request_notify", req.PeerID, err)
	}
	h.logAction(c, "friend_request", req.PeerID, nil)
	c.JSON(http.StatusCreated, gin.H{"message": "request sent"})
}

// Accept handles POST /api/social/accept.
func (h *SocialHandler) Accept(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.rel.AcceptFriendRequest(c.Request.Context(), accountID, req.PeerID)
	h.logAction(c, "friend_accept", req.PeerID, err)
	if err != nil {
		relationshipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// Block handles POST /api/social/block.
func (h *SocialHandler) Block(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.rel.BlockUser(c.Request.Context(), accountID, req.PeerID)
	h.logAction(c, "block", req.PeerID, err)
	if err != nil {
		relationshipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "blocked"})
}

type resetRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
	// BothSides clears the peer's entry too: unfriend, cancel or deny.
	// Without it only the caller's entry goes, which is how unblock works.
	BothSides bool `json:"both_sides"`
}

// Reset handles POST /api/social/reset.
func (h *SocialHandler) Reset(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.rel.ResetRelationship(c.Request.Context(), accountID, req.PeerID, req.BothSides)
	h.logAction(c, "reset", req.PeerID, err)
	if err != nil {
		relationshipError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reset"})
}

func (h *SocialHandler) logAction(c *gin.Context, action, peerID string, err error) {
	entry := audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: mw.GetAccountID(c),
		Action:    action,
		Detail:    map[string]string{"peer_id": peerID},
		IP:        c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// relationshipError maps engine rejections to HTTP statuses.
func relationshipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, relationship.ErrSelfAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot act on yourself"})
	case errors.Is(err, relationship.ErrAlreadyRelated):
		c.JSON(http.StatusConflict, gin.H{"error": "relationship already exists"})
	case errors.Is(err, relationship.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "no pending request"})
	case errors.Is(err, relationship.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "blocked"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
