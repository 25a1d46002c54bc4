package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/services"
	"github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/response"
)

// AuthHandler issues member tokens in exchange for a PIN.
type AuthHandler struct {
	family    *services.FamilyService
	jwt       *iauth.JWTService
	household string
	ttl       time.Duration
}

// NewAuthHandler constructs an auth handler. A zero ttl uses the JWT service default.
func NewAuthHandler(family *services.FamilyService, jwt *iauth.JWTService, household string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{family: family, jwt: jwt, household: household, ttl: ttl}
}

type tokenRequest struct {
	MemberID string `json:"member_id" validate:"required"`
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=12"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in,omitempty"`
	MemberID  string `json:"member_id"`
	Role      string `json:"role"`
}

// Token verifies a member PIN and returns a bearer token carrying the member role.
func (h *AuthHandler) Token(c *gin.Context) {
	var payload tokenRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	member, err := h.family.VerifyPIN(requestContext(c), payload.MemberID, payload.PIN)
	if err != nil {
		// unknown members look like a wrong PIN
		if errors.IsNotFound(err) {
			err = services.ErrInvalidPIN
		}
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateToken(iauth.TokenInput{
		Household: h.household,
		MemberID:  member.ID,
		Role:      member.Role,
		TTL:       h.ttl,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresIn: int(h.ttl.Seconds()),
		MemberID:  member.ID,
		Role:      member.Role,
	})
}

// Me describes the caller's token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	data := gin.H{
		"household": claims.Household,
		"role":      claims.Role,
		"member_id": claims.MemberID,
	}
	if claims.ExpiresAt != nil {
		data["expires_at"] = claims.ExpiresAt.Time
	}
	response.Success(c, http.StatusOK, data)
}
