package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"backend_parc/errs"
	"backend_parc/models"

	"gorm.io/gorm"
)

// DefaultStandardSoftware стандартный софт, устанавливаемый на каждую выдачу
var DefaultStandardSoftware = []string{"MS Office", "Antivirus"}

// AllocationService сервис выдачи оборудования сотрудникам
type AllocationService struct {
	DB        *gorm.DB
	Equipment *EquipmentService
	Resolver  *EquipmentResolver
	Users     *UserService
	Sync      ExternalSyncPort
	Logger    *log.Logger
}

// NewAllocationService создает сервис выдач
func NewAllocationService(db *gorm.DB, equipment *EquipmentService, resolver *EquipmentResolver,
	users *UserService, sync ExternalSyncPort, logger *log.Logger) *AllocationService {
	if logger == nil {
		logger = log.New(log.Writer(), "[ALLOCATION] ", log.LstdFlags)
	}
	if sync == nil {
		sync = NewNoopSyncPort()
	}
	return &AllocationService{
		DB:        db,
		Equipment: equipment,
		Resolver:  resolver,
		Users:     users,
		Sync:      sync,
		Logger:    logger,
	}
}

// CreateAllocationRequest запрос на выдачу оборудования
type CreateAllocationRequest struct {
	UserID             uint           `json:"user_id"`
	UserEmail          string         `json:"user_email"`
	Items              []EquipmentRef `json:"items"`
	DeliveryDate       *time.Time     `json:"delivery_date"`
	Accessories        []string       `json:"accessories"`
	AdditionalSoftware []string       `json:"additional_software"`
	StandardSoftware   []string       `json:"standard_software"`
	Services           []string       `json:"services"`
	Notes              string         `json:"notes"`
	CreatedBy          string         `json:"created_by"`
}

// AllocationFilter параметры поиска по выдачам
type AllocationFilter struct {
	UserID    *uint
	Status    string
	Search    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	Limit     int
	SortOrder string
}

// AllocationStats агрегированная статистика по выдачам
type AllocationStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	Unsigned   int64            `json:"unsigned"`
	ThisMonth  int64            `json:"this_month"`
	ItemsTotal int64            `json:"items_total"`
}

// CreateAllocation создает выдачу оборудования сотруднику.
// Все позиции списка переходят в 'assigned' в одной транзакции: если хотя бы одна
// недоступна, вся выдача отклоняется и ничего не меняется.
func (s *AllocationService) CreateAllocation(ctx context.Context, req *CreateAllocationRequest) (*models.Allocation, error) {
	// Определяем сотрудника: по ID или по email
	var user *models.User
	var err error
	switch {
	case req.UserID != 0:
		user, err = s.Users.GetUser(req.UserID)
	case req.UserEmail != "":
		user, err = s.Users.FindUserByEmail(req.UserEmail)
	default:
		return nil, errs.NewValidation("необходимо указать сотрудника (user_id или user_email)")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errs.NewValidation("сотрудник %s неактивен, выдача невозможна", user.Email)
	}

	if req.CreatedBy == "" {
		return nil, errs.NewValidation("необходимо указать ответственного за выдачу (created_by)")
	}

	// Разрешаем все ссылки на оборудование до начала транзакции
	resolved, err := s.Resolver.ResolveAll(req.Items)
	if err != nil {
		return nil, err
	}

	deliveryDate := time.Now()
	if req.DeliveryDate != nil {
		deliveryDate = *req.DeliveryDate
	}

	standardSoftware := req.StandardSoftware
	if len(standardSoftware) == 0 {
		standardSoftware = append([]string(nil), DefaultStandardSoftware...)
	}

	allocation := &models.Allocation{
		UserID:             user.ID,
		UserName:           user.GetDisplayName(),
		UserEmail:          user.Email,
		DeliveryDate:       deliveryDate,
		Status:             models.AllocationStatusInProgress,
		Accessories:        req.Accessories,
		AdditionalSoftware: req.AdditionalSoftware,
		StandardSoftware:   standardSoftware,
		Services:           req.Services,
		Notes:              req.Notes,
		CreatedBy:          req.CreatedBy,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Переводим каждую позицию в assigned условным обновлением.
		// Конфликт любой позиции откатывает всю выдачу.
		for _, item := range resolved {
			if err := s.Equipment.TransitionToAssigned(tx, item.Equipment.ID, user.ID); err != nil {
				return err
			}
		}

		// Снимки описательных полей: история выдачи не должна меняться
		// задним числом при редактировании карточки оборудования
		for _, item := range resolved {
			allocation.Items = append(allocation.Items, models.AllocationItem{
				EquipmentID:   item.Equipment.ID,
				InternalID:    item.Equipment.InternalID,
				Type:          item.Equipment.Type,
				SerialNumber:  item.Equipment.SerialNumber,
				DeliveredDate: deliveryDate,
				Condition:     models.DeliveryConditionGood,
			})
		}

		if err := tx.Create(allocation).Error; err != nil {
			return fmt.Errorf("ошибка создания выдачи: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Printf("Создана выдача #%d: %d позиций сотруднику %s", allocation.ID, len(allocation.Items), user.Email)

	// Выталкиваем новые статусы во внешнюю систему после фиксации транзакции.
	// Порт никогда не возвращает ошибку: выдача уже состоялась.
	for _, item := range resolved {
		s.Sync.UpdateStatusOnly(ctx, item.Equipment.ID)
	}

	return s.GetAllocation(allocation.ID)
}

// GetAllocation возвращает выдачу с позициями
func (s *AllocationService) GetAllocation(id uint) (*models.Allocation, error) {
	var allocation models.Allocation
	if err := s.DB.Preload("Items").Preload("User").First(&allocation, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("выдача", id)
		}
		return nil, fmt.Errorf("ошибка получения выдачи: %w", err)
	}
	return &allocation, nil
}

// ListAllocations возвращает страницу выдач по фильтру и общее количество
func (s *AllocationService) ListAllocations(filter AllocationFilter) ([]models.Allocation, int64, error) {
	query := s.DB.Model(&models.Allocation{}).Preload("Items")

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(user_name) LIKE ? OR LOWER(user_email) LIKE ?", pattern, pattern)
	}
	if filter.DateFrom != nil {
		query = query.Where("delivery_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("delivery_date <= ?", *filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета выдач: %w", err)
	}

	order := "delivery_date desc"
	if filter.SortOrder == "asc" {
		order = "delivery_date asc"
	}
	query = query.Order(order)

	if filter.Limit > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.Limit
		}
		query = query.Offset(offset).Limit(filter.Limit)
	}

	var allocations []models.Allocation
	if err := query.Find(&allocations).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки выдач: %w", err)
	}

	return allocations, total, nil
}

// GetActiveAllocationForEquipment возвращает незавершенную выдачу, содержащую оборудование
func (s *AllocationService) GetActiveAllocationForEquipment(equipmentID uint) (*models.Allocation, error) {
	var allocation models.Allocation
	err := s.DB.Preload("Items").
		Joins("JOIN allocation_items ON allocation_items.allocation_id = allocations.id").
		Where("allocation_items.equipment_id = ? AND allocations.status = ?",
			equipmentID, models.AllocationStatusInProgress).
		First(&allocation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("активная выдача для оборудования", equipmentID)
		}
		return nil, fmt.Errorf("ошибка поиска активной выдачи: %w", err)
	}
	return &allocation, nil
}

// SignAllocationRequest запрос на подпись акта выдачи сотрудником
type SignAllocationRequest struct {
	SignerName     string `json:"signer_name"`
	SignatureImage string `json:"signature_image"` // base64
}

// SignAllocation фиксирует подпись сотрудника на акте выдачи и переводит
// выдачу в 'completed'. Подписанный акт становится неизменяемым, повторная
// подпись отклоняется.
func (s *AllocationService) SignAllocation(id uint, req *SignAllocationRequest) (*models.Allocation, error) {
	allocation, err := s.GetAllocation(id)
	if err != nil {
		return nil, err
	}

	if allocation.IsSigned() {
		return nil, errs.NewConflict("выдача #%d уже подписана", id)
	}
	if req.SignerName == "" || req.SignatureImage == "" {
		return nil, errs.NewValidation("подпись должна содержать имя подписавшего и изображение")
	}

	now := time.Now()
	allocation.SignatureData = models.SignatureBlock{
		SignerName:     req.SignerName,
		SignatureImage: req.SignatureImage,
		Timestamp:      &now,
	}
	allocation.SignedAt = &now
	allocation.Status = models.AllocationStatusCompleted

	if err := s.DB.Save(allocation).Error; err != nil {
		return nil, fmt.Errorf("ошибка сохранения подписи: %w", err)
	}

	s.Logger.Printf("Выдача #%d подписана: %s", id, req.SignerName)
	return allocation, nil
}

// UpdateAllocationRequest запрос на правку акта до подписания
type UpdateAllocationRequest struct {
	Accessories        []string   `json:"accessories"`
	AdditionalSoftware []string   `json:"additional_software"`
	Services           []string   `json:"services"`
	Notes              *string    `json:"notes"`
	DeliveryDate       *time.Time `json:"delivery_date"`
}

// UpdateAllocation правит сопроводительные поля акта. Подписанный акт неизменяем.
func (s *AllocationService) UpdateAllocation(id uint, req *UpdateAllocationRequest) (*models.Allocation, error) {
	allocation, err := s.GetAllocation(id)
	if err != nil {
		return nil, err
	}

	if allocation.IsSigned() {
		return nil, errs.NewConflict("выдача #%d подписана и не может быть изменена", id)
	}

	if req.Accessories != nil {
		allocation.Accessories = req.Accessories
	}
	if req.AdditionalSoftware != nil {
		allocation.AdditionalSoftware = req.AdditionalSoftware
	}
	if req.Services != nil {
		allocation.Services = req.Services
	}
	if req.Notes != nil {
		allocation.Notes = *req.Notes
	}
	if req.DeliveryDate != nil {
		allocation.DeliveryDate = *req.DeliveryDate
	}

	if err := s.DB.Save(allocation).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления выдачи: %w", err)
	}
	return allocation, nil
}

// CompleteAllocation переводит выдачу в 'completed' после полного возврата.
// Вызывается сервисом возвратов в рамках его транзакции. Выдача, уже
// завершенная подписью, остается завершенной.
func (s *AllocationService) CompleteAllocation(tx *gorm.DB, id uint) error {
	result := tx.Model(&models.Allocation{}).
		Where("id = ?", id).
		Update("status", models.AllocationStatusCompleted)
	if result.Error != nil {
		return fmt.Errorf("ошибка завершения выдачи #%d: %w", id, result.Error)
	}
	return nil
}

// GetAllocationStats возвращает агрегированную статистику по выдачам
func (s *AllocationService) GetAllocationStats() (*AllocationStats, error) {
	stats := &AllocationStats{ByStatus: make(map[string]int64)}

	if err := s.DB.Model(&models.Allocation{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета выдач: %w", err)
	}

	type countRow struct {
		Key   string
		Count int64
	}
	var rows []countRow
	if err := s.DB.Model(&models.Allocation{}).
		Select("status as key, count(*) as count").
		Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ошибка статистики по статусам выдач: %w", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Key] = row.Count
	}

	if err := s.DB.Model(&models.Allocation{}).
		Where("signed_at IS NULL").Count(&stats.Unsigned).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета неподписанных выдач: %w", err)
	}

	monthStart := time.Now().AddDate(0, 0, -30)
	if err := s.DB.Model(&models.Allocation{}).
		Where("delivery_date >= ?", monthStart).Count(&stats.ThisMonth).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета выдач за месяц: %w", err)
	}

	if err := s.DB.Model(&models.AllocationItem{}).Count(&stats.ItemsTotal).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета позиций выдач: %w", err)
	}

	return stats, nil
}
