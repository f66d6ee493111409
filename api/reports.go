package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"backend_parc/services"
)

// ReportAPI представляет API выгрузки отчетов в Excel
type ReportAPI struct {
	Reports *services.ReportService
}

// NewReportAPI создает новый экземпляр ReportAPI
func NewReportAPI(reports *services.ReportService) *ReportAPI {
	return &ReportAPI{Reports: reports}
}

// sendExcel отдает сформированный файл как вложение
func (api *ReportAPI) sendExcel(c *gin.Context, file *excelize.File, name string) {
	filename := fmt.Sprintf("%s_%s.xlsx", name, time.Now().Format("2006-01-02"))

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := file.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка записи отчета"})
	}
}

// parseReportPeriod извлекает период отчета из query, по умолчанию последний месяц
func parseReportPeriod(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now

	if v := c.Query("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("некорректная дата date_from, ожидается YYYY-MM-DD")
		}
		from = t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("некорректная дата date_to, ожидается YYYY-MM-DD")
		}
		// включительно до конца дня
		to = t.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

// DownloadEquipmentReport выгружает отчет по парку оборудования
func (api *ReportAPI) DownloadEquipmentReport(c *gin.Context) {
	file, err := api.Reports.GenerateEquipmentReport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования отчета"})
		return
	}

	api.sendExcel(c, file, "equipment")
}

// DownloadAllocationsReport выгружает отчет по выдачам за период
func (api *ReportAPI) DownloadAllocationsReport(c *gin.Context) {
	from, to, err := parseReportPeriod(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	file, err := api.Reports.GenerateAllocationsReport(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования отчета"})
		return
	}

	api.sendExcel(c, file, "allocations")
}

// DownloadReturnsReport выгружает отчет по возвратам за период
func (api *ReportAPI) DownloadReturnsReport(c *gin.Context) {
	from, to, err := parseReportPeriod(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	file, err := api.Reports.GenerateReturnsReport(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования отчета"})
		return
	}

	api.sendExcel(c, file, "returns")
}

// DownloadSyncJournalReport выгружает отчет по журналу синхронизации
func (api *ReportAPI) DownloadSyncJournalReport(c *gin.Context) {
	file, err := api.Reports.GenerateSyncJournalReport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования отчета"})
		return
	}

	api.sendExcel(c, file, "sync_journal")
}
