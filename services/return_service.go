package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"backend_parc/errs"
	"backend_parc/models"

	"gorm.io/gorm"
)

// ReturnService сервис возврата оборудования
type ReturnService struct {
	DB          *gorm.DB
	Equipment   *EquipmentService
	Allocations *AllocationService
	Sync        ExternalSyncPort
	Logger      *log.Logger
}

// NewReturnService создает сервис возвратов
func NewReturnService(db *gorm.DB, equipment *EquipmentService, allocations *AllocationService,
	sync ExternalSyncPort, logger *log.Logger) *ReturnService {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETURN] ", log.LstdFlags)
	}
	if sync == nil {
		sync = NewNoopSyncPort()
	}
	return &ReturnService{
		DB:          db,
		Equipment:   equipment,
		Allocations: allocations,
		Sync:        sync,
		Logger:      logger,
	}
}

// ReturnItemRequest одна позиция возврата
type ReturnItemRequest struct {
	EquipmentID uint     `json:"equipment_id"`
	Condition   string   `json:"condition"`
	Notes       string   `json:"notes"`
	Photos      []string `json:"photos"`
}

// CreateReturnRequest запрос на оформление возврата по выдаче
type CreateReturnRequest struct {
	AllocationID    uint                `json:"allocation_id"`
	Items           []ReturnItemRequest `json:"items"`
	ReturnDate      *time.Time          `json:"return_date"`
	RemovedSoftware []string            `json:"removed_software"`
	CreatedBy       string              `json:"created_by"`
}

// ReturnFilter параметры поиска по возвратам
type ReturnFilter struct {
	AllocationID *uint
	UserID       *uint
	OnlyPending  bool // без HR-валидации
	Page         int
	Limit        int
}

// ReturnStats агрегированная статистика по возвратам
type ReturnStats struct {
	Total           int64            `json:"total"`
	PendingHR       int64            `json:"pending_hr"`
	Validated       int64            `json:"validated"`
	ByCondition     map[string]int64 `json:"by_condition"`
	FullSettlements int64            `json:"full_settlements"`
}

// CreateReturn оформляет возврат оборудования по выдаче.
// Каждая позиция обязана принадлежать выдаче: чужое оборудование отклоняет весь
// возврат с перечислением нарушителей. Возврат закрывает выдачу независимо от
// того, была ли она подписана: статус выдачи не проверяется, защита от повторного
// возврата работает на уровне позиций.
func (s *ReturnService) CreateReturn(ctx context.Context, req *CreateReturnRequest) (*models.Return, error) {
	allocation, err := s.Allocations.GetAllocation(req.AllocationID)
	if err != nil {
		return nil, err
	}

	if len(req.Items) == 0 {
		return nil, errs.NewValidation("список возвращаемого оборудования пуст")
	}
	if req.CreatedBy == "" {
		return nil, errs.NewValidation("необходимо указать ответственного за возврат (created_by)")
	}

	// Проверка принадлежности и состояний до транзакции, с перечислением всех нарушений
	var violations []string
	seen := make(map[uint]bool)
	for _, item := range req.Items {
		if !allocation.ContainsEquipment(item.EquipmentID) {
			violations = append(violations, fmt.Sprintf("оборудование %d не входит в выдачу #%d", item.EquipmentID, allocation.ID))
		}
		if seen[item.EquipmentID] {
			violations = append(violations, fmt.Sprintf("оборудование %d указано дважды", item.EquipmentID))
		}
		seen[item.EquipmentID] = true
		if !models.IsValidReturnCondition(item.Condition) {
			violations = append(violations, fmt.Sprintf("недопустимое состояние '%s' для оборудования %d", item.Condition, item.EquipmentID))
		}
	}

	// Уже возвращенные в рамках этой выдачи позиции возвращать повторно нельзя
	returnedIDs, err := s.returnedEquipmentIDs(s.DB, allocation.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if returnedIDs[item.EquipmentID] {
			violations = append(violations, fmt.Sprintf("оборудование %d уже возвращено по выдаче #%d", item.EquipmentID, allocation.ID))
		}
	}

	if len(violations) > 0 {
		return nil, errs.NewValidationDetails("возврат отклонен", violations)
	}

	returnDate := time.Now()
	if req.ReturnDate != nil {
		returnDate = *req.ReturnDate
	}

	ret := &models.Return{
		AllocationID:    allocation.ID,
		UserID:          allocation.UserID,
		UserName:        allocation.UserName,
		ReturnDate:      returnDate,
		RemovedSoftware: req.RemovedSoftware,
		CreatedBy:       req.CreatedBy,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Items {
			// Возвращенная позиция всегда переходит в 'returned' независимо от
			// зафиксированного состояния: состояние остается на позиции возврата
			if err := s.Equipment.TransitionToReleased(tx, item.EquipmentID, models.EquipmentStatusReturned); err != nil {
				return err
			}

			// Снимок идентификаторов позиции на момент возврата
			var snapshot models.AllocationItem
			if err := tx.Where("allocation_id = ? AND equipment_id = ?", allocation.ID, item.EquipmentID).
				First(&snapshot).Error; err != nil {
				return fmt.Errorf("ошибка чтения позиции выдачи для оборудования %d: %w", item.EquipmentID, err)
			}

			ret.Items = append(ret.Items, models.ReturnedItem{
				EquipmentID:  item.EquipmentID,
				InternalID:   snapshot.InternalID,
				SerialNumber: snapshot.SerialNumber,
				ReturnDate:   returnDate,
				Condition:    item.Condition,
				Notes:        item.Notes,
				Photos:       item.Photos,
			})
		}

		if err := tx.Create(ret).Error; err != nil {
			return fmt.Errorf("ошибка создания возврата: %w", err)
		}

		// Выдача завершается, когда возвращена последняя позиция
		remaining, err := s.remainingEquipmentCount(tx, allocation)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.Allocations.CompleteAllocation(tx, allocation.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Printf("Оформлен возврат #%d по выдаче #%d: %d позиций", ret.ID, allocation.ID, len(ret.Items))

	// Выталкиваем новые статусы во внешнюю систему после фиксации транзакции
	for _, item := range ret.Items {
		s.Sync.UpdateStatusOnly(ctx, item.EquipmentID)
	}

	return s.GetReturn(ret.ID)
}

// returnedEquipmentIDs возвращает ID оборудования, уже возвращенного по выдаче
func (s *ReturnService) returnedEquipmentIDs(db *gorm.DB, allocationID uint) (map[uint]bool, error) {
	var ids []uint
	err := db.Model(&models.ReturnedItem{}).
		Joins("JOIN returns ON returns.id = returned_items.return_id").
		Where("returns.allocation_id = ? AND returns.deleted_at IS NULL", allocationID).
		Pluck("returned_items.equipment_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки возвращенных позиций: %w", err)
	}

	result := make(map[uint]bool, len(ids))
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// remainingEquipmentCount считает невозвращенные позиции выдачи
func (s *ReturnService) remainingEquipmentCount(tx *gorm.DB, allocation *models.Allocation) (int, error) {
	returned, err := s.returnedEquipmentIDs(tx, allocation.ID)
	if err != nil {
		return 0, err
	}

	remaining := 0
	for _, id := range allocation.EquipmentIDs() {
		if !returned[id] {
			remaining++
		}
	}
	return remaining, nil
}

// GetReturn возвращает возврат с позициями
func (s *ReturnService) GetReturn(id uint) (*models.Return, error) {
	var ret models.Return
	if err := s.DB.Preload("Items").Preload("Allocation").First(&ret, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("возврат", id)
		}
		return nil, fmt.Errorf("ошибка получения возврата: %w", err)
	}
	return &ret, nil
}

// ListReturns возвращает страницу возвратов по фильтру и общее количество
func (s *ReturnService) ListReturns(filter ReturnFilter) ([]models.Return, int64, error) {
	query := s.DB.Model(&models.Return{}).Preload("Items")

	if filter.AllocationID != nil {
		query = query.Where("allocation_id = ?", *filter.AllocationID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.OnlyPending {
		query = query.Where("hr_validated_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета возвратов: %w", err)
	}

	query = query.Order("return_date desc")
	if filter.Limit > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.Limit
		}
		query = query.Offset(offset).Limit(filter.Limit)
	}

	var returns []models.Return
	if err := query.Find(&returns).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки возвратов: %w", err)
	}

	return returns, total, nil
}

// SignReturnRequest запрос на подпись акта возврата одной из ролей
type SignReturnRequest struct {
	Role           string `json:"role"` // employee, it, rh
	SignerName     string `json:"signer_name"`
	SignatureImage string `json:"signature_image"` // base64
}

// SignReturn фиксирует подпись роли на акте возврата.
// Каждая роль подписывает один раз: уже заполненный блок не перезаписывается.
func (s *ReturnService) SignReturn(id uint, req *SignReturnRequest) (*models.Return, error) {
	ret, err := s.GetReturn(id)
	if err != nil {
		return nil, err
	}

	if !models.IsValidSignerRole(req.Role) {
		return nil, errs.NewValidation("недопустимая роль подписанта '%s'", req.Role)
	}
	if req.SignerName == "" || req.SignatureImage == "" {
		return nil, errs.NewValidation("подпись должна содержать имя подписавшего и изображение")
	}

	block := ret.SignatureByRole(req.Role)
	if block.IsSigned() {
		return nil, errs.NewConflict("акт возврата #%d уже подписан ролью '%s'", id, req.Role)
	}

	now := time.Now()
	*block = models.SignatureBlock{
		SignerName:     req.SignerName,
		SignatureImage: req.SignatureImage,
		Timestamp:      &now,
	}
	ret.SignedAt = &now

	if err := s.DB.Save(ret).Error; err != nil {
		return nil, fmt.Errorf("ошибка сохранения подписи возврата: %w", err)
	}

	s.Logger.Printf("Акт возврата #%d подписан ролью %s: %s", id, req.Role, req.SignerName)
	return ret, nil
}

// ValidateByHRRequest запрос HR-валидации возврата
type ValidateByHRRequest struct {
	ValidatedBy    string `json:"validated_by"`
	FullSettlement bool   `json:"full_settlement"`
}

// ValidateByHR закрывает возврат HR-валидацией.
// Валидация возможна только после подписей сотрудника и IT.
func (s *ReturnService) ValidateByHR(id uint, req *ValidateByHRRequest) (*models.Return, error) {
	ret, err := s.GetReturn(id)
	if err != nil {
		return nil, err
	}

	if ret.HRValidation.IsValidated() {
		return nil, errs.NewConflict("возврат #%d уже провалидирован HR", id)
	}
	if req.ValidatedBy == "" {
		return nil, errs.NewValidation("необходимо указать валидирующего сотрудника HR")
	}

	var missing []string
	if !ret.SignatureEmployee.IsSigned() {
		missing = append(missing, "отсутствует подпись сотрудника")
	}
	if !ret.SignatureIT.IsSigned() {
		missing = append(missing, "отсутствует подпись IT")
	}
	if len(missing) > 0 {
		return nil, errs.NewValidationDetails("HR-валидация невозможна", missing)
	}

	now := time.Now()
	ret.HRValidation = models.HRValidation{
		ValidatedBy:    req.ValidatedBy,
		ValidatedAt:    &now,
		FullSettlement: req.FullSettlement,
	}
	ret.CompletedAt = &now

	if err := s.DB.Save(ret).Error; err != nil {
		return nil, fmt.Errorf("ошибка HR-валидации возврата: %w", err)
	}

	s.Logger.Printf("Возврат #%d провалидирован HR: %s (обходной лист: %t)", id, req.ValidatedBy, req.FullSettlement)
	return ret, nil
}

// GetReturnStats возвращает агрегированную статистику по возвратам
func (s *ReturnService) GetReturnStats() (*ReturnStats, error) {
	stats := &ReturnStats{ByCondition: make(map[string]int64)}

	if err := s.DB.Model(&models.Return{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета возвратов: %w", err)
	}

	if err := s.DB.Model(&models.Return{}).
		Where("hr_validated_at IS NULL").Count(&stats.PendingHR).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета возвратов без HR-валидации: %w", err)
	}
	stats.Validated = stats.Total - stats.PendingHR

	type countRow struct {
		Key   string
		Count int64
	}
	var rows []countRow
	if err := s.DB.Model(&models.ReturnedItem{}).
		Select("condition as key, count(*) as count").
		Group("condition").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ошибка статистики по состояниям: %w", err)
	}
	for _, row := range rows {
		stats.ByCondition[row.Key] = row.Count
	}

	if err := s.DB.Model(&models.Return{}).
		Where("hr_full_settlement = ?", true).Count(&stats.FullSettlements).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета обходных листов: %w", err)
	}

	return stats, nil
}
