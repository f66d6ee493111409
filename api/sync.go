package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_parc/middleware"
	"backend_parc/models"
	"backend_parc/services"
)

// SyncAPI представляет API управления синхронизацией с внешней asset-системой
type SyncAPI struct {
	DB   *gorm.DB
	Sync *services.SyncService
}

// NewSyncAPI создает новый экземпляр SyncAPI
func NewSyncAPI(db *gorm.DB, sync *services.SyncService) *SyncAPI {
	return &SyncAPI{DB: db, Sync: sync}
}

// TriggerBulkImport запускает массовый импорт оборудования из внешней системы.
// Импорт выполняется в фоне, результат фиксируется в журнале и оповещениях.
func (api *SyncAPI) TriggerBulkImport(c *gin.Context) {
	go func() {
		report, err := api.Sync.SyncAllFromExternal(context.Background())
		if err != nil {
			api.Sync.Logger.Printf("❌ Массовый импорт завершился ошибкой: %v", err)
			return
		}
		api.Sync.Logger.Printf("✅ Массовый импорт завершен: batch %s, всего %d", report.BatchID, report.Total)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Массовый импорт запущен"})
}

// PullEquipment загружает один объект из внешней системы по внешнему ID
func (api *SyncAPI) PullEquipment(c *gin.Context) {
	externalID := c.Param("external_id")
	if externalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Внешний ID обязателен"})
		return
	}

	result, equipment, err := api.Sync.SyncEquipmentFromExternal(c.Request.Context(), externalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Объект синхронизирован",
		"result":  string(result),
		"data":    equipment,
	})
}

// PushEquipment выталкивает карточку оборудования во внешнюю систему
func (api *SyncAPI) PushEquipment(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := api.Sync.SyncEquipmentToExternal(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Оборудование выгружено во внешнюю систему"})
}

// GetAttributeMapping возвращает текущее сопоставление атрибутов внешней схемы,
// при необходимости запуская автоопределение по образцу объекта
func (api *SyncAPI) GetAttributeMapping(c *gin.Context) {
	attrMap, err := api.Sync.EnsureAttributeMap(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attrMap})
}

// GetJournalStats возвращает статистику журнала синхронизации
func (api *SyncAPI) GetJournalStats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("recent", "20"))

	stats, err := models.GetSyncJournalStats(api.DB, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения статистики журнала"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetJournalEntries возвращает записи журнала синхронизации
func (api *SyncAPI) GetJournalEntries(c *gin.Context) {
	page, limit := parsePagination(c)

	query := api.DB.Model(&models.SyncJournalEntry{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if operation := c.Query("operation"); operation != "" {
		query = query.Where("operation = ?", operation)
	}
	if batchID := c.Query("batch_id"); batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка подсчета записей журнала"})
		return
	}

	var entries []models.SyncJournalEntry
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения записей журнала"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       entries,
		"pagination": paginationBlock(page, limit, total),
	})
}

// ResolveJournalEntry вручную закрывает запись журнала без повторной попытки
func (api *SyncAPI) ResolveJournalEntry(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var entry models.SyncJournalEntry
	if err := api.DB.First(&entry, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Запись журнала не найдена"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения записи журнала"})
		}
		return
	}

	if entry.Status == models.SyncEntryStatusResolved {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Запись журнала уже закрыта"})
		return
	}

	resolvedBy := "operator"
	if principal := middleware.GetPrincipal(c); principal != nil {
		resolvedBy = principal.Email
	}
	entry.MarkAsResolved(resolvedBy)

	if err := api.DB.Save(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка сохранения записи журнала"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Запись журнала закрыта",
		"data":    entry,
	})
}

// RetryJournal запускает внеочередной проход по отложенным записям журнала
func (api *SyncAPI) RetryJournal(c *gin.Context) {
	go func() {
		if err := api.Sync.ProcessPendingJournal(context.Background()); err != nil {
			api.Sync.Logger.Printf("❌ Проход по журналу завершился ошибкой: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Проход по журналу запущен"})
}

// GetSyncHealth проверяет доступность внешней системы
func (api *SyncAPI) GetSyncHealth(c *gin.Context) {
	if err := api.Sync.Client.IsHealthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "Внешняя система недоступна: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
