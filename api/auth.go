package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_parc/middleware"
	"backend_parc/services"
)

// AuthAPI представляет API сессий. Аутентификация у внешнего провайдера
// выполняется фронтендом, бэкенд выдает локальный токен известному сотруднику.
type AuthAPI struct {
	Auth  *middleware.AuthMiddleware
	Users *services.UserService
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(auth *middleware.AuthMiddleware, users *services.UserService) *AuthAPI {
	return &AuthAPI{Auth: auth, Users: users}
}

// SessionRequest запрос на выдачу сессионного токена
type SessionRequest struct {
	Email string `json:"email"`
}

// CreateSession выдает сессионный токен активному сотруднику
func (api *AuthAPI) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Email обязателен"})
		return
	}

	user, err := api.Users.FindUserByEmail(req.Email)
	if err != nil {
		// Не раскрываем, существует ли сотрудник
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Доступ запрещен"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Доступ запрещен"})
		return
	}

	token, err := api.Auth.IssueToken(user.Email, user.GetDisplayName())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка выдачи токена"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// GetCurrentSession возвращает данные текущей сессии
func (api *AuthAPI) GetCurrentSession(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Сессия не найдена"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": principal})
}
