package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_parc/models"
	"backend_parc/services"
)

// EquipmentAPI представляет API для работы с парком оборудования
type EquipmentAPI struct {
	Equipment *services.EquipmentService
}

// NewEquipmentAPI создает новый экземпляр EquipmentAPI
func NewEquipmentAPI(equipment *services.EquipmentService) *EquipmentAPI {
	return &EquipmentAPI{Equipment: equipment}
}

// GetEquipmentList возвращает список оборудования с фильтрами и пагинацией
func (api *EquipmentAPI) GetEquipmentList(c *gin.Context) {
	page, limit := parsePagination(c)

	filter := services.EquipmentFilter{
		Status:       c.Query("status"),
		Type:         c.Query("type"),
		Search:       c.Query("search"),
		Page:         page,
		Limit:        limit,
		SortBy:       c.DefaultQuery("sort_by", "created_at"),
		SortOrder:    c.DefaultQuery("sort_order", "desc"),
		OnlyOrphaned: c.Query("only_orphaned") == "true",
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

	items, total, err := api.Equipment.ListEquipment(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"pagination": paginationBlock(page, limit, total),
	})
}

// GetEquipment возвращает карточку оборудования по ID
func (api *EquipmentAPI) GetEquipment(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	equipment, err := api.Equipment.GetEquipment(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": equipment})
}

// GetEquipmentBySerial возвращает карточку по серийному номеру
func (api *EquipmentAPI) GetEquipmentBySerial(c *gin.Context) {
	serial := c.Param("serial")
	if serial == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Серийный номер обязателен"})
		return
	}

	equipment, err := api.Equipment.GetEquipmentBySerial(serial)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": equipment})
}

// GetAvailableEquipment возвращает свободное оборудование, опционально по типу
func (api *EquipmentAPI) GetAvailableEquipment(c *gin.Context) {
	items, err := api.Equipment.FindAvailable(c.Query("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// CreateEquipment создает карточку оборудования вручную
func (api *EquipmentAPI) CreateEquipment(c *gin.Context) {
	var equipment models.Equipment
	if err := c.ShouldBindJSON(&equipment); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if err := api.Equipment.CreateEquipment(&equipment); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Оборудование успешно создано",
		"data":    equipment,
	})
}

// UpdateEquipment обновляет описательные поля карточки
func (api *EquipmentAPI) UpdateEquipment(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var updates models.Equipment
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	equipment, err := api.Equipment.UpdateEquipment(id, &updates)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Оборудование успешно обновлено",
		"data":    equipment,
	})
}

// DeleteEquipment удаляет карточку. Назначенное оборудование удалить нельзя.
func (api *EquipmentAPI) DeleteEquipment(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := api.Equipment.DeleteEquipment(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Оборудование успешно удалено"})
}

// GetEquipmentStats возвращает статистику по парку
func (api *EquipmentAPI) GetEquipmentStats(c *gin.Context) {
	stats, err := api.Equipment.GetEquipmentStats()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
