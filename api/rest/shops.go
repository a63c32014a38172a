package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	mw "github.com/meeplemeet/server/middleware"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/offline"
	"github.com/meeplemeet/server/store"
)

// ShopHandler handles shop profile REST endpoints. All reads and writes
// go through the offline manager, so shop edits made without
// connectivity are buffered and replayed on reconnect.
type ShopHandler struct {
	cache *offline.Manager
}

// NewShopHandler creates a ShopHandler.
func NewShopHandler(cache *offline.Manager) *ShopHandler {
	return &ShopHandler{cache: cache}
}

type createShopRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=64"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
	Address string `json:"address"`
}

// Create handles POST /api/shops.
func (h *ShopHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req createShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	shop := &model.Shop{
		ID:      uuid.NewString(),
		OwnerID: accountID,
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Website: req.Website,
		Address: req.Address,
	}
	if err := h.cache.Write(c.Request.Context(), model.CollShops, shop.ID, shop.Fields()); err != nil {
		shopError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shop)
}

// Get handles GET /api/shops/:id.
func (h *ShopHandler) Get(c *gin.Context) {
	fields, err := h.cache.Read(c.Request.Context(), model.CollShops, c.Param("id"))
	if err != nil {
		shopError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ShopFromFields(c.Param("id"), fields))
}

type updateShopRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Website *string `json:"website"`
	Address *string `json:"address"`
}

// Update handles PATCH /api/shops/:id. Only the fields present in the
// body are written; the offline manager narrows them further to the ones
// that actually changed.
func (h *ShopHandler) Update(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	shopID := c.Param("id")
	ctx := c.Request.Context()

	var req updateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := h.cache.Read(ctx, model.CollShops, shopID)
	if err != nil {
		shopError(c, err)
		return
	}
	if owner, _ := current["owner_id"].(string); owner != accountID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the shop owner"})
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Phone != nil {
		fields["phone"] = *req.Phone
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Website != nil {
		fields["website"] = *req.Website
	}
	if req.Address != nil {
		fields["address"] = *req.Address
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	if err := h.cache.Write(ctx, model.CollShops, shopID, fields); err != nil {
		shopError(c, err)
		return
	}
	updated, err := h.cache.Read(ctx, model.CollShops, shopID)
	if err != nil {
		shopError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ShopFromFields(shopID, updated))
}

func shopError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
	case errors.Is(err, offline.ErrUnreachable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline and not cached"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
