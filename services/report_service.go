package services

import (
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"backend_parc/models"
)

// ReportService выгрузка отчетов по парку оборудования в Excel
type ReportService struct {
	DB     *gorm.DB
	Logger *log.Logger
}

// NewReportService создает сервис отчетов
func NewReportService(db *gorm.DB, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.New(log.Writer(), "[REPORT] ", log.LstdFlags)
	}
	return &ReportService{DB: db, Logger: logger}
}

// reportData табличное представление отчета
type reportData struct {
	SheetName string
	Headers   []string
	Rows      [][]interface{}
}

// generateExcel собирает xlsx-файл из табличных данных
func (rs *ReportService) generateExcel(data *reportData) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", data.SheetName)

	// Заголовки
	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(data.SheetName, cell, header)
	}

	// Данные
	for rowIdx, row := range data.Rows {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(data.SheetName, cell, value)
		}
	}

	// Автофильтр по всей таблице
	endCell, _ := excelize.CoordinatesToCellName(len(data.Headers), len(data.Rows)+1)
	if err := f.AutoFilter(data.SheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		rs.Logger.Printf("Не удалось установить автофильтр: %v", err)
	}

	return f, nil
}

// GenerateEquipmentReport формирует отчет по всему парку оборудования
func (rs *ReportService) GenerateEquipmentReport() (*excelize.File, error) {
	var equipment []models.Equipment
	if err := rs.DB.Preload("CurrentUser").Order("internal_id").Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("ошибка выборки оборудования для отчета: %w", err)
	}

	data := &reportData{
		SheetName: "Парк оборудования",
		Headers: []string{
			"Инвентарный номер", "Серийный номер", "Тип", "Марка", "Модель",
			"Статус", "Сотрудник", "Локация", "Стоимость", "Последняя синхронизация",
		},
	}

	for _, e := range equipment {
		userName := ""
		if e.CurrentUser != nil {
			userName = e.CurrentUser.GetDisplayName()
		}
		lastSync := ""
		if e.LastSyncedAt != nil {
			lastSync = e.LastSyncedAt.Format("2006-01-02 15:04")
		}

		data.Rows = append(data.Rows, []interface{}{
			e.InternalID, e.SerialNumber, e.Type, e.Brand, e.Model,
			e.Status, userName, e.Location, e.PurchasePrice.String(), lastSync,
		})
	}

	rs.Logger.Printf("Сформирован отчет по парку: %d позиций", len(data.Rows))
	return rs.generateExcel(data)
}

// GenerateAllocationsReport формирует отчет по выдачам за период
func (rs *ReportService) GenerateAllocationsReport(from, to time.Time) (*excelize.File, error) {
	var allocations []models.Allocation
	err := rs.DB.Preload("Items").
		Where("delivery_date >= ? AND delivery_date <= ?", from, to).
		Order("delivery_date").Find(&allocations).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки выдач для отчета: %w", err)
	}

	data := &reportData{
		SheetName: "Выдачи",
		Headers: []string{
			"Номер", "Сотрудник", "Email", "Дата выдачи", "Статус",
			"Позиций", "Подписано", "Ответственный",
		},
	}

	for _, a := range allocations {
		signed := "нет"
		if a.IsSigned() {
			signed = "да"
		}
		data.Rows = append(data.Rows, []interface{}{
			a.ID, a.UserName, a.UserEmail, a.DeliveryDate.Format("2006-01-02"),
			a.Status, len(a.Items), signed, a.CreatedBy,
		})
	}

	rs.Logger.Printf("Сформирован отчет по выдачам: %d записей за период %s — %s",
		len(data.Rows), from.Format("2006-01-02"), to.Format("2006-01-02"))
	return rs.generateExcel(data)
}

// GenerateReturnsReport формирует отчет по возвратам за период
func (rs *ReportService) GenerateReturnsReport(from, to time.Time) (*excelize.File, error) {
	var returns []models.Return
	err := rs.DB.Preload("Items").
		Where("return_date >= ? AND return_date <= ?", from, to).
		Order("return_date").Find(&returns).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки возвратов для отчета: %w", err)
	}

	data := &reportData{
		SheetName: "Возвраты",
		Headers: []string{
			"Номер", "Выдача", "Сотрудник", "Дата возврата", "Позиций",
			"HR-валидация", "Обходной лист", "Ответственный",
		},
	}

	for _, r := range returns {
		validated := "нет"
		if r.HRValidation.IsValidated() {
			validated = "да"
		}
		settlement := "нет"
		if r.HRValidation.FullSettlement {
			settlement = "да"
		}
		data.Rows = append(data.Rows, []interface{}{
			r.ID, r.AllocationID, r.UserName, r.ReturnDate.Format("2006-01-02"),
			len(r.Items), validated, settlement, r.CreatedBy,
		})
	}

	rs.Logger.Printf("Сформирован отчет по возвратам: %d записей", len(data.Rows))
	return rs.generateExcel(data)
}

// GenerateSyncJournalReport формирует отчет по журналу синхронизации
func (rs *ReportService) GenerateSyncJournalReport() (*excelize.File, error) {
	var entries []models.SyncJournalEntry
	if err := rs.DB.Order("created_at desc").Limit(1000).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ошибка выборки журнала для отчета: %w", err)
	}

	data := &reportData{
		SheetName: "Журнал синхронизации",
		Headers: []string{
			"ID", "Операция", "Серийный номер", "Внешний ID", "Статус",
			"Попыток", "Ошибка", "Создано", "Закрыто",
		},
	}

	for _, e := range entries {
		resolved := ""
		if e.ResolvedAt != nil {
			resolved = e.ResolvedAt.Format("2006-01-02 15:04")
		}
		data.Rows = append(data.Rows, []interface{}{
			e.ID, e.Operation, e.SerialNumber, e.ExternalID, e.Status,
			e.RetryCount, e.ErrorMessage, e.CreatedAt.Format("2006-01-02 15:04"), resolved,
		})
	}

	return rs.generateExcel(data)
}
