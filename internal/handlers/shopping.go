package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/services"
	"github.com/hearthly/hearth/pkg/response"
)

// ShoppingHandler exposes shopping list endpoints.
type ShoppingHandler struct {
	svc *services.ShoppingService
}

// NewShoppingHandler constructs a shopping handler.
func NewShoppingHandler(svc *services.ShoppingService) *ShoppingHandler {
	return &ShoppingHandler{svc: svc}
}

type itemPayload struct {
	Name      string `json:"name" validate:"required,notblank,max=160"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Category  string `json:"category" validate:"max=60"`
	Purchased bool   `json:"purchased"`
}

// List returns the shopping list, optionally for one category.
func (h *ShoppingHandler) List(c *gin.Context) {
	items, err := h.svc.List(requestContext(c), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, items)
}

// Get returns a single item.
func (h *ShoppingHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Create adds an item.
func (h *ShoppingHandler) Create(c *gin.Context) {
	var payload itemPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	item, err := h.svc.Create(requestContext(c), services.CreateItemInput{
		Name:      payload.Name,
		Quantity:  payload.Quantity,
		Category:  payload.Category,
		Purchased: payload.Purchased,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// Update applies a partial update.
func (h *ShoppingHandler) Update(c *gin.Context) {
	var patch models.ShoppingPatch
	if !bindAndValidate(c, &patch) {
		return
	}

	item, err := h.svc.Update(requestContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Delete removes an item.
func (h *ShoppingHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id})
}

// ClearPurchased removes every purchased item.
func (h *ShoppingHandler) ClearPurchased(c *gin.Context) {
	removed, err := h.svc.ClearPurchased(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
