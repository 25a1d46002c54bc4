package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/hearthly/hearth/internal/auth"
)

func newJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return jwtSvc
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	token, err := jwtSvc.GenerateToken(iauth.TokenInput{
		Household: "home-1",
		MemberID:  "member-123",
		Role:      iauth.RoleChild,
	})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, "home-1"), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"member_id": c.GetString(CtxMemberIDKey),
			"role":      c.GetString(CtxRoleKey),
			"household": claims.Household,
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "member-123", payload["member_id"])
	require.Equal(t, iauth.RoleChild, payload["role"])
	require.Equal(t, "home-1", payload["household"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure?access_token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsForeignHousehold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	token, err := jwtSvc.GenerateToken(iauth.TokenInput{Household: "elsewhere"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, "home-1"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	r := gin.New()
	r.DELETE("/family/:id", Auth(jwtSvc, ""), RequireRole(iauth.RoleParent, iauth.RoleDevice), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(role string) int {
		token, err := jwtSvc.GenerateToken(iauth.TokenInput{Household: "home-1", Role: role})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/family/m1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusNoContent, call(iauth.RoleParent))
	require.Equal(t, http.StatusNoContent, call(iauth.RoleDevice))
	require.Equal(t, http.StatusForbidden, call(iauth.RoleChild))
}
