package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"backend_parc/middleware"
	"backend_parc/services"
)

// AllocationAPI представляет API для работы с выдачами оборудования
type AllocationAPI struct {
	Allocations *services.AllocationService
}

// NewAllocationAPI создает новый экземпляр AllocationAPI
func NewAllocationAPI(allocations *services.AllocationService) *AllocationAPI {
	return &AllocationAPI{Allocations: allocations}
}

// CreateAllocation оформляет выдачу оборудования сотруднику
func (api *AllocationAPI) CreateAllocation(c *gin.Context) {
	var req services.CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	// Автор операции берется из сессии, если не указан явно
	if req.CreatedBy == "" {
		if principal := middleware.GetPrincipal(c); principal != nil {
			req.CreatedBy = principal.Email
		}
	}

	allocation, err := api.Allocations.CreateAllocation(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Выдача успешно оформлена",
		"data":    allocation,
	})
}

// GetAllocations возвращает список выдач с фильтрами и пагинацией
func (api *AllocationAPI) GetAllocations(c *gin.Context) {
	page, limit := parsePagination(c)

	filter := services.AllocationFilter{
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      page,
		Limit:     limit,
		SortOrder: c.DefaultQuery("sort_order", "desc"),
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
	if dateFrom := c.Query("date_from"); dateFrom != "" {
		t, err := time.Parse("2006-01-02", dateFrom)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректная дата date_from, ожидается YYYY-MM-DD"})
			return
		}
		filter.DateFrom = &t
	}
	if dateTo := c.Query("date_to"); dateTo != "" {
		t, err := time.Parse("2006-01-02", dateTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректная дата date_to, ожидается YYYY-MM-DD"})
			return
		}
		filter.DateTo = &t
	}

	items, total, err := api.Allocations.ListAllocations(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": paginationBlock(page, limit, total),
	})
}

// GetAllocation возвращает выдачу с позициями по ID
func (api *AllocationAPI) GetAllocation(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	allocation, err := api.Allocations.GetAllocation(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": allocation})
}

// UpdateAllocation правит сопроводительные поля неподписанного акта
func (api *AllocationAPI) UpdateAllocation(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	allocation, err := api.Allocations.UpdateAllocation(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Выдача успешно обновлена",
		"data":    allocation,
	})
}

// SignAllocation фиксирует подпись сотрудника на акте выдачи
func (api *AllocationAPI) SignAllocation(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req services.SignAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	allocation, err := api.Allocations.SignAllocation(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Акт выдачи подписан",
		"data":    allocation,
	})
}

// GetAllocationStats возвращает статистику по выдачам
func (api *AllocationAPI) GetAllocationStats(c *gin.Context) {
	stats, err := api.Allocations.GetAllocationStats()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
