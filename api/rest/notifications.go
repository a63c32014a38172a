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

// NotificationHandler handles notification REST endpoints.
type NotificationHandler struct {
	notifs *notification.Engine
	audit  *audit.Service
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(n *notification.Engine, a *audit.Service) *NotificationHandler {
	return &NotificationHandler{notifs: n, audit: a}
}

// List handles GET /api/notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	list, err := h.notifs.List(c.Request.Context(), accountID)
	if err != nil {
		notificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if err := h.notifs.MarkRead(c.Request.Context(), accountID, c.Param("id")); err != nil {
		notificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

// Delete handles DELETE /api/notifications/:id.
func (h *NotificationHandler) Delete(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if err := h.notifs.Delete(c.Request.Context(), accountID, c.Param("id")); err != nil {
		notificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Execute handles POST /api/notifications/:id/execute. It loads the
// caller's notification and applies the transition it carries.
func (h *NotificationHandler) Execute(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	ctx := c.Request.Context()

	n, err := h.notifs.Get(ctx, accountID, c.Param("id"))
	if err != nil {
		notificationError(c, err)
		return
	}
	err = h.notifs.Execute(ctx, n)
	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: accountID,
		Action:    "notification_execute",
		Detail:    map[string]string{"notification_id": n.ID, "type": string(n.Type)},
		Error:     errString(err),
		IP:        c.ClientIP(),
	})
	if err != nil {
		notificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "executed"})
}

type inviteRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	// RefID is the discussion or session being invited to.
	RefID string `json:"ref_id" binding:"required"`
	Kind  string `json:"kind" binding:"required,oneof=discussion session"`
}

// Invite handles POST /api/notifications/invite, sending a join invite
// for a discussion or session.
func (h *NotificationHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReceiverID == mw.GetAccountID(c) {
		notificationError(c, notification.ErrSelfNotification)
		return
	}
	ctx := c.Request.Context()

	var err error
	if req.Kind == "discussion" {
		_, err = h.notifs.SendJoinDiscussionNotification(ctx, req.ReceiverID, req.RefID)
	} else {
		_, err = h.notifs.SendJoinSessionNotification(ctx, req.ReceiverID, req.RefID)
	}
	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: mw.GetAccountID(c),
		Action:    "invite_" + req.Kind,
		Detail:    map[string]string{"receiver_id": req.ReceiverID, "ref_id": req.RefID},
		Error:     errString(err),
		IP:        c.ClientIP(),
	})
	if err != nil {
		notificationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "invited"})
}

func notificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case errors.Is(err, notification.ErrSelfNotification):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot notify yourself"})
	case errors.Is(err, notification.ErrUnknownType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown notification type"})
	case errors.Is(err, relationship.ErrNotPending),
		errors.Is(err, relationship.ErrAlreadyRelated):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, relationship.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "blocked"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
