package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/services"
	"github.com/hearthly/hearth/pkg/response"
)

// FamilyHandler exposes family member endpoints.
type FamilyHandler struct {
	svc *services.FamilyService
}

// NewFamilyHandler constructs a family handler.
func NewFamilyHandler(svc *services.FamilyService) *FamilyHandler {
	return &FamilyHandler{svc: svc}
}

type memberPayload struct {
	Name     string `json:"name" validate:"required,notblank,max=120"`
	Role     string `json:"role" validate:"omitempty,oneof=parent child"`
	Color    string `json:"color" validate:"max=16"`
	Earnings int64  `json:"earnings" validate:"gte=0"`
	PIN      string `json:"pin" validate:"omitempty,numeric,min=4,max=12"`
}

// List returns every member.
func (h *FamilyHandler) List(c *gin.Context) {
	members, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, members)
}

// Get returns a single member.
func (h *FamilyHandler) Get(c *gin.Context) {
	member, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// Create adds a member.
func (h *FamilyHandler) Create(c *gin.Context) {
	var payload memberPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	member, err := h.svc.Create(requestContext(c), services.CreateMemberInput{
		Name:     payload.Name,
		Role:     payload.Role,
		Color:    payload.Color,
		Earnings: payload.Earnings,
		PIN:      payload.PIN,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, member)
}

// Update applies a partial update.
func (h *FamilyHandler) Update(c *gin.Context) {
	var patch models.FamilyPatch
	if !bindAndValidate(c, &patch) {
		return
	}

	member, err := h.svc.Update(requestContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// Delete removes a member.
func (h *FamilyHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id})
}
