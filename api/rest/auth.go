package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/config"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/store"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles authentication REST endpoints. Accounts live in the
// accounts collection; the handles collection maps login handle to
// account id.
type AuthHandler struct {
	store store.Client
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s store.Client, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{store: s, cache: c, sec: sec}
}

type loginRequest struct {
	Handle   string `json:"handle" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

// Login handles POST /api/auth/login.
// Auto-registers on first login if the handle does not exist.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	var accountID string
	handleDoc, err := h.store.Get(ctx, model.CollHandles, req.Handle)

	switch {
	case errors.Is(err, store.ErrNotFound):
		// Auto-register
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		accountID = uuid.NewString()
		acc := &model.Account{
			ID:           accountID,
			Handle:       req.Handle,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		txErr := h.store.RunTransaction(ctx, func(tx store.Tx) error {
			// Another request may have registered the handle meanwhile.
			if _, err := tx.Get(model.CollHandles, req.Handle); err == nil {
				return errHandleTaken
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := tx.Set(model.CollHandles, req.Handle, map[string]any{"account_id": accountID}); err != nil {
				return err
			}
			return tx.Set(model.CollAccounts, accountID, acc.Fields())
		})
		if errors.Is(txErr, errHandleTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "handle already taken"})
			return
		}
		if txErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}

	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return

	default:
		accountID, _ = handleDoc["account_id"].(string)
		accFields, err := h.store.Get(ctx, model.CollAccounts, accountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		acc := model.AccountFromFields(accountID, accFields)
		if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	token, err := mw.GenerateToken(accountID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	// Store session in cache as a simple KV entry so Exists() works uniformly.
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = h.cache.Set(cacheCtx, "session:"+token, accountID, h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"account_id": accountID,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+tokenStr)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Invalidate old token
	header := c.GetHeader("Authorization")
	oldToken := strings.TrimPrefix(header, "Bearer ")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+oldToken)

	// Issue new token
	newToken, err := mw.GenerateToken(accountID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	_ = h.cache.Set(ctx, "session:"+newToken, accountID, h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{"token": newToken})
}

// Me handles GET /api/auth/me, returning the caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	fields, err := h.store.Get(c.Request.Context(), model.CollAccounts, accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, model.AccountFromFields(accountID, fields))
}

var errHandleTaken = errors.New("handle already taken")
