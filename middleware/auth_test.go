package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthMiddleware(ttl time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte("test-secret"),
		issuer: "backend-parc-test",
		ttl:    ttl,
	}
}

func newAuthTestRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
		principal := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"email": principal.Email, "name": principal.Name})
	})
	return r
}

func TestAuthMiddleware_TokenRoundTrip(t *testing.T) {
	am := newTestAuthMiddleware(time.Hour)

	token, err := am.IssueToken("marie.dupont@example.com", "Marie Dupont")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := am.validateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "marie.dupont@example.com", principal.Email)
	assert.Equal(t, "Marie Dupont", principal.Name)
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	am := newTestAuthMiddleware(time.Hour)
	r := newAuthTestRouter(am)

	token, err := am.IssueToken("it@example.com", "IT Support")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "it@example.com")
}

func TestAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	r := newAuthTestRouter(newTestAuthMiddleware(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsMalformedHeader(t *testing.T) {
	am := newTestAuthMiddleware(time.Hour)
	r := newAuthTestRouter(am)

	token, err := am.IssueToken("it@example.com", "IT Support")
	require.NoError(t, err)

	// Без префикса Bearer
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsExpiredToken(t *testing.T) {
	expired := newTestAuthMiddleware(-time.Minute)
	r := newAuthTestRouter(expired)

	token, err := expired.IssueToken("it@example.com", "IT Support")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	issuerA := newTestAuthMiddleware(time.Hour)
	issuerB := &AuthMiddleware{secret: []byte("other-secret"), issuer: "backend-parc-test", ttl: time.Hour}
	r := newAuthTestRouter(issuerA)

	token, err := issuerB.IssueToken("it@example.com", "IT Support")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPrincipal_MissingReturnsNil(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetPrincipal(c))
}
