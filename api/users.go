package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_parc/services"
)

// UserAPI представляет API для работы с сотрудниками
type UserAPI struct {
	Users *services.UserService
}

// NewUserAPI создает новый экземпляр UserAPI
func NewUserAPI(users *services.UserService) *UserAPI {
	return &UserAPI{Users: users}
}

// GetUsers возвращает список сотрудников
func (api *UserAPI) GetUsers(c *gin.Context) {
	onlyActive := c.DefaultQuery("only_active", "true") == "true"

	users, err := api.Users.ListUsers(c.Query("search"), onlyActive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

// GetUser возвращает сотрудника по ID
func (api *UserAPI) GetUser(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	user, err := api.Users.GetUser(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// UpsertUser создает или обновляет сотрудника по данным каталога
func (api *UserAPI) UpsertUser(c *gin.Context) {
	var data services.DirectoryUserData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	user, err := api.Users.UpsertFromDirectory(&data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Сотрудник сохранен",
		"data":    user,
	})
}

// DeactivateUser помечает сотрудника неактивным
func (api *UserAPI) DeactivateUser(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := api.Users.DeactivateUser(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Сотрудник деактивирован"})
}
