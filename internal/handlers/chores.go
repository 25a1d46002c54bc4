package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/services"
	"github.com/hearthly/hearth/pkg/response"
)

// ChoreHandler exposes chore CRUD endpoints.
type ChoreHandler struct {
	svc *services.ChoreService
}

// NewChoreHandler constructs a chore handler.
func NewChoreHandler(svc *services.ChoreService) *ChoreHandler {
	return &ChoreHandler{svc: svc}
}

type chorePayload struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	AssignedTo  *string    `json:"assigned_to"`
	Points      int        `json:"points" validate:"gte=0"`
	Reward      int64      `json:"reward" validate:"gte=0"`
	DueDate     *time.Time `json:"due_date"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (p chorePayload) toInput() services.CreateChoreInput {
	return services.CreateChoreInput{
		Title:       p.Title,
		Description: p.Description,
		AssignedTo:  p.AssignedTo,
		Points:      p.Points,
		Reward:      p.Reward,
		DueDate:     p.DueDate,
		Completed:   p.Completed,
		CompletedAt: p.CompletedAt,
	}
}

// List returns chores, optionally filtered by assignee and completion.
func (h *ChoreHandler) List(c *gin.Context) {
	chores, err := h.svc.List(requestContext(c), services.ListChoresOptions{
		AssignedTo: strings.TrimSpace(c.Query("assigned_to")),
		Completed:  parseBoolQuery(c, "completed"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, chores)
}

// Get returns a single chore.
func (h *ChoreHandler) Get(c *gin.Context) {
	chore, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, chore)
}

// Create adds a chore.
func (h *ChoreHandler) Create(c *gin.Context) {
	var payload chorePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	chore, err := h.svc.Create(requestContext(c), payload.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, chore)
}

// Update applies a partial update.
func (h *ChoreHandler) Update(c *gin.Context) {
	var patch models.ChorePatch
	if !bindAndValidate(c, &patch) {
		return
	}

	chore, err := h.svc.Update(requestContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, chore)
}

// Delete removes a chore.
func (h *ChoreHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id})
}
