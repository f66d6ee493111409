package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"backend_parc/config"
)

// Principal аутентифицированный пользователь из сессионного токена
type Principal struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SessionClaims клеймы локального сессионного токена
type SessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет локальные сессионные токены.
// Токены выпускаются после входа через корпоративный identity provider,
// сама OIDC-цепочка живет вне этого сервиса.
type AuthMiddleware struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAuthMiddleware создает middleware проверки сессий
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.JWT.Secret),
		issuer: cfg.JWT.Issuer,
		ttl:    cfg.JWT.ExpiresIn,
	}
}

// IssueToken выпускает сессионный токен для аутентифицированного пользователя
func (am *AuthMiddleware) IssueToken(email, name string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    am.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(am.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи сессионного токена: %w", err)
	}
	return signed, nil
}

// validateToken разбирает и проверяет сессионный токен
func (am *AuthMiddleware) validateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return am.secret, nil
	}, jwt.WithIssuer(am.issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("недействительный токен")
	}

	return &Principal{Email: claims.Subject, Name: claims.Name}, nil
}

// RequireAuth middleware для проверки аутентификации
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Authorization header is required",
			})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid authorization format",
			})
			c.Abort()
			return
		}

		principal, err := am.validateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid or expired token: " + err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("principal", principal)
		c.Next()
	}
}

// GetPrincipal возвращает текущего пользователя из контекста
func GetPrincipal(c *gin.Context) *Principal {
	if value, exists := c.Get("principal"); exists {
		if principal, ok := value.(*Principal); ok {
			return principal
		}
	}
	return nil
}
