package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_parc/middleware"
	"backend_parc/services"
)

// ReturnAPI представляет API для работы с возвратами оборудования
type ReturnAPI struct {
	Returns *services.ReturnService
}

// NewReturnAPI создает новый экземпляр ReturnAPI
func NewReturnAPI(returns *services.ReturnService) *ReturnAPI {
	return &ReturnAPI{Returns: returns}
}

// CreateReturn оформляет возврат оборудования по выдаче
func (api *ReturnAPI) CreateReturn(c *gin.Context) {
	var req services.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if req.CreatedBy == "" {
		if principal := middleware.GetPrincipal(c); principal != nil {
			req.CreatedBy = principal.Email
		}
	}

	ret, err := api.Returns.CreateReturn(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Возврат успешно оформлен",
		"data":    ret,
	})
}

// GetReturns возвращает список возвратов с фильтрами и пагинацией
func (api *ReturnAPI) GetReturns(c *gin.Context) {
	page, limit := parsePagination(c)

	filter := services.ReturnFilter{
		OnlyPending: c.Query("only_pending") == "true",
		Page:        page,
		Limit:       limit,
	}
	if allocationID := c.Query("allocation_id"); allocationID != "" {
		id, err := strconv.ParseUint(allocationID, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный allocation_id"})
			return
		}
		aid := uint(id)
		filter.AllocationID = &aid
	}
	if userID := c.Query("user_id"); userID != "" {
		id, err := strconv.ParseUint(userID, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный user_id"})
			return
		}
		uid := uint(id)
		filter.UserID = &uid
	}

	items, total, err := api.Returns.ListReturns(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": paginationBlock(page, limit, total),
	})
}

// GetReturn возвращает возврат с позициями по ID
func (api *ReturnAPI) GetReturn(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	ret, err := api.Returns.GetReturn(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ret})
}

// SignReturn фиксирует подпись роли на акте возврата
func (api *ReturnAPI) SignReturn(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req services.SignReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	ret, err := api.Returns.SignReturn(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Акт возврата подписан",
		"data":    ret,
	})
}

// ValidateReturn закрывает возврат HR-валидацией
func (api *ReturnAPI) ValidateReturn(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req services.ValidateByHRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}
	if req.ValidatedBy == "" {
		if principal := middleware.GetPrincipal(c); principal != nil {
			req.ValidatedBy = principal.Email
		}
	}

	ret, err := api.Returns.ValidateByHR(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Возврат провалидирован HR",
		"data":    ret,
	})
}

// GetReturnStats возвращает статистику по возвратам
func (api *ReturnAPI) GetReturnStats(c *gin.Context) {
	stats, err := api.Returns.GetReturnStats()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
