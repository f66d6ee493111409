package services

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"backend_parc/errs"
	"backend_parc/models"

	"gorm.io/gorm"
)

// EquipmentService сервис учета парка оборудования
type EquipmentService struct {
	DB     *gorm.DB
	Users  *UserService
	Logger *log.Logger
}

var (
	serialNumberPattern = regexp.MustCompile(`(?i)^[A-Z0-9]{4,20}$`)
	internalIDPattern   = regexp.MustCompile(`^PI-\d+$`)
)

// EquipmentFilter параметры фильтрации при выборке оборудования
type EquipmentFilter struct {
	Status       string
	Type         string
	UserID       *uint
	Search       string
	Page         int
	Limit        int
	SortBy       string
	SortOrder    string
	OnlyOrphaned bool // записи без внешнего ID
}

// EquipmentStats агрегированная статистика по парку
type EquipmentStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByType     map[string]int64 `json:"by_type"`
	Assigned   int64            `json:"assigned"`
	Available  int64            `json:"available"`
	NeverSync  int64            `json:"never_synced"`
	TotalValue string           `json:"total_value"`
}

// NewEquipmentService создает новый сервис учета оборудования
func NewEquipmentService(db *gorm.DB, logger *log.Logger) *EquipmentService {
	if logger == nil {
		logger = log.New(log.Writer(), "[EQUIPMENT] ", log.LstdFlags)
	}
	return &EquipmentService{DB: db, Users: NewUserService(db, logger), Logger: logger}
}

// ValidateEquipment проверяет поля оборудования перед сохранением
func (s *EquipmentService) ValidateEquipment(equipment *models.Equipment) error {
	var details []string

	if equipment.SerialNumber == "" {
		details = append(details, "серийный номер обязателен")
	} else if !serialNumberPattern.MatchString(equipment.SerialNumber) {
		details = append(details, fmt.Sprintf("серийный номер '%s' не соответствует формату (4-20 букв и цифр)", equipment.SerialNumber))
	}

	if equipment.InternalID != "" && !internalIDPattern.MatchString(equipment.InternalID) {
		details = append(details, fmt.Sprintf("внутренний номер '%s' не соответствует формату PI-<число>", equipment.InternalID))
	}

	if !models.IsValidEquipmentType(equipment.Type) {
		details = append(details, fmt.Sprintf("неизвестный тип оборудования '%s'", equipment.Type))
	}

	if equipment.Status != "" && !models.IsValidEquipmentStatus(equipment.Status) {
		details = append(details, fmt.Sprintf("неизвестный статус '%s'", equipment.Status))
	}

	if len(details) > 0 {
		return errs.NewValidationDetails("оборудование не прошло валидацию", details)
	}
	return nil
}

// CreateEquipment создает запись оборудования
func (s *EquipmentService) CreateEquipment(equipment *models.Equipment) error {
	equipment.SerialNumber = strings.ToUpper(strings.TrimSpace(equipment.SerialNumber))

	if err := s.ValidateEquipment(equipment); err != nil {
		return err
	}

	if equipment.Status == "" {
		equipment.Status = models.EquipmentStatusAvailable
	}

	// Новое оборудование не может сразу числиться за сотрудником
	if equipment.Status == models.EquipmentStatusAssigned {
		return errs.NewValidation("новое оборудование не может создаваться в статусе 'assigned'")
	}

	// Серийный номер уникален
	var existing models.Equipment
	if err := s.DB.Where("serial_number = ?", equipment.SerialNumber).First(&existing).Error; err == nil {
		return errs.NewConflict(fmt.Sprintf("оборудование с серийным номером %s уже существует", equipment.SerialNumber))
	}

	if err := s.DB.Create(equipment).Error; err != nil {
		return fmt.Errorf("ошибка создания оборудования: %w", err)
	}

	s.Logger.Printf("Создано оборудование: %s (serial: %s)", equipment.InternalID, equipment.SerialNumber)
	return nil
}

// GetEquipment возвращает оборудование по ID
func (s *EquipmentService) GetEquipment(id uint) (*models.Equipment, error) {
	var equipment models.Equipment
	if err := s.DB.Preload("CurrentUser").First(&equipment, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("оборудование", id)
		}
		return nil, fmt.Errorf("ошибка получения оборудования: %w", err)
	}
	return &equipment, nil
}

// GetEquipmentBySerial возвращает оборудование по серийному номеру
func (s *EquipmentService) GetEquipmentBySerial(serialNumber string) (*models.Equipment, error) {
	serialNumber = strings.ToUpper(strings.TrimSpace(serialNumber))

	var equipment models.Equipment
	if err := s.DB.Preload("CurrentUser").Where("serial_number = ?", serialNumber).First(&equipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("оборудование", serialNumber)
		}
		return nil, fmt.Errorf("ошибка получения оборудования: %w", err)
	}
	return &equipment, nil
}

// GetEquipmentByExternalID возвращает оборудование по ID во внешней системе
func (s *EquipmentService) GetEquipmentByExternalID(externalID string) (*models.Equipment, error) {
	var equipment models.Equipment
	if err := s.DB.Preload("CurrentUser").Where("external_asset_id = ?", externalID).First(&equipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("оборудование", externalID)
		}
		return nil, fmt.Errorf("ошибка получения оборудования: %w", err)
	}
	return &equipment, nil
}

// ListEquipment возвращает страницу оборудования по фильтру и общее количество
func (s *EquipmentService) ListEquipment(filter EquipmentFilter) ([]models.Equipment, int64, error) {
	query := s.DB.Model(&models.Equipment{}).Preload("CurrentUser")

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("equipment_type = ?", filter.Type)
	}
	if filter.UserID != nil {
		query = query.Where("current_user_id = ?", *filter.UserID)
	}
	if filter.OnlyOrphaned {
		query = query.Where("external_asset_id IS NULL")
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(serial_number) LIKE ? OR LOWER(internal_id) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(model) LIKE ?",
			search, search, search, search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета оборудования: %w", err)
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := filter.SortOrder
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	if filter.Limit > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.Limit
		}
		query = query.Offset(offset).Limit(filter.Limit)
	}

	var equipment []models.Equipment
	if err := query.Find(&equipment).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки оборудования: %w", err)
	}

	return equipment, total, nil
}

// FindAvailable возвращает оборудование, доступное для выдачи
func (s *EquipmentService) FindAvailable(equipmentType string) ([]models.Equipment, error) {
	query := s.DB.Where("status = ? AND current_user_id IS NULL", models.EquipmentStatusAvailable)
	if equipmentType != "" {
		query = query.Where("equipment_type = ?", equipmentType)
	}

	var equipment []models.Equipment
	if err := query.Order("internal_id").Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("ошибка выборки доступного оборудования: %w", err)
	}
	return equipment, nil
}

// UpdateEquipment обновляет описательные поля оборудования.
// Статус и привязка к сотруднику меняются только через переходы жизненного цикла.
func (s *EquipmentService) UpdateEquipment(id uint, updates *models.Equipment) (*models.Equipment, error) {
	equipment, err := s.GetEquipment(id)
	if err != nil {
		return nil, err
	}

	if updates.SerialNumber != "" {
		updates.SerialNumber = strings.ToUpper(strings.TrimSpace(updates.SerialNumber))
		if !serialNumberPattern.MatchString(updates.SerialNumber) {
			return nil, errs.NewValidation(fmt.Sprintf("серийный номер '%s' не соответствует формату", updates.SerialNumber))
		}
		equipment.SerialNumber = updates.SerialNumber
	}
	if updates.InternalID != "" {
		if !internalIDPattern.MatchString(updates.InternalID) {
			return nil, errs.NewValidation(fmt.Sprintf("внутренний номер '%s' не соответствует формату PI-<число>", updates.InternalID))
		}
		equipment.InternalID = updates.InternalID
	}
	if updates.Type != "" {
		if !models.IsValidEquipmentType(updates.Type) {
			return nil, errs.NewValidation(fmt.Sprintf("неизвестный тип оборудования '%s'", updates.Type))
		}
		equipment.Type = updates.Type
	}
	if updates.Brand != "" {
		equipment.Brand = updates.Brand
	}
	if updates.Model != "" {
		equipment.Model = updates.Model
	}
	if updates.Location != "" {
		equipment.Location = updates.Location
	}
	if updates.IMEI != "" {
		equipment.IMEI = updates.IMEI
	}
	if updates.PhoneLine != "" {
		equipment.PhoneLine = updates.PhoneLine
	}
	if updates.AdditionalSoftwares != nil {
		equipment.AdditionalSoftwares = updates.AdditionalSoftwares
	}
	if !updates.PurchasePrice.IsZero() {
		equipment.PurchasePrice = updates.PurchasePrice
	}

	if err := s.DB.Save(equipment).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления оборудования: %w", err)
	}
	return equipment, nil
}

// DeleteEquipment удаляет запись оборудования (мягкое удаление).
// Выданное сотруднику оборудование удалить нельзя.
func (s *EquipmentService) DeleteEquipment(id uint) error {
	equipment, err := s.GetEquipment(id)
	if err != nil {
		return err
	}

	if equipment.Status == models.EquipmentStatusAssigned {
		return errs.NewConflict(fmt.Sprintf("оборудование %s выдано сотруднику и не может быть удалено", equipment.SerialNumber))
	}

	if err := s.DB.Delete(equipment).Error; err != nil {
		return fmt.Errorf("ошибка удаления оборудования: %w", err)
	}
	return nil
}

// TransitionToAssigned атомарно переводит оборудование в статус 'assigned' за сотрудником.
// Условный UPDATE исключает гонку двух одновременных выдач: проигравший получает конфликт,
// а не перезаписывает чужую выдачу.
func (s *EquipmentService) TransitionToAssigned(tx *gorm.DB, equipmentID uint, userID uint) error {
	result := tx.Model(&models.Equipment{}).
		Where("id = ? AND status = ? AND current_user_id IS NULL", equipmentID, models.EquipmentStatusAvailable).
		Updates(map[string]interface{}{
			"status":          models.EquipmentStatusAssigned,
			"current_user_id": userID,
		})

	if result.Error != nil {
		return fmt.Errorf("ошибка перевода оборудования %d в статус assigned: %w", equipmentID, result.Error)
	}

	if result.RowsAffected == 0 {
		var equipment models.Equipment
		if err := tx.First(&equipment, equipmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.NewNotFound("оборудование", equipmentID)
			}
			return fmt.Errorf("ошибка проверки оборудования %d: %w", equipmentID, err)
		}
		return errs.NewConflict(fmt.Sprintf("оборудование %s недоступно для выдачи (статус: %s)",
			equipment.SerialNumber, equipment.Status))
	}

	return nil
}

// TransitionToReleased переводит оборудование из 'assigned' в итоговый статус возврата
// и снимает привязку к сотруднику. Повторный вызов для уже возвращенного оборудования
// не считается ошибкой.
func (s *EquipmentService) TransitionToReleased(tx *gorm.DB, equipmentID uint, targetStatus string) error {
	if !models.IsValidEquipmentStatus(targetStatus) || targetStatus == models.EquipmentStatusAssigned {
		return errs.NewValidation(fmt.Sprintf("недопустимый итоговый статус возврата '%s'", targetStatus))
	}

	result := tx.Model(&models.Equipment{}).
		Where("id = ? AND status = ?", equipmentID, models.EquipmentStatusAssigned).
		Updates(map[string]interface{}{
			"status":          targetStatus,
			"current_user_id": nil,
		})

	if result.Error != nil {
		return fmt.Errorf("ошибка перевода оборудования %d в статус %s: %w", equipmentID, targetStatus, result.Error)
	}

	if result.RowsAffected == 0 {
		var equipment models.Equipment
		if err := tx.First(&equipment, equipmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.NewNotFound("оборудование", equipmentID)
			}
			return fmt.Errorf("ошибка проверки оборудования %d: %w", equipmentID, err)
		}
		// Уже возвращено: идемпотентный повтор
		if equipment.Status != models.EquipmentStatusAssigned && equipment.CurrentUserID == nil {
			return nil
		}
		return errs.NewConflict(fmt.Sprintf("оборудование %s не может быть возвращено из статуса %s",
			equipment.SerialNumber, equipment.Status))
	}

	return nil
}

// ExternalEquipmentData данные оборудования, полученные из внешней системы
type ExternalEquipmentData struct {
	ExternalID        string
	SerialNumber      string
	InternalID        string
	Type              string
	Brand             string
	Model             string
	Status            string
	IMEI              string
	PhoneLine         string
	AssignedUserEmail string
}

// UpsertResult итог сопоставления внешней записи с локальной
type UpsertResult string

const (
	UpsertCreated UpsertResult = "created"
	UpsertUpdated UpsertResult = "updated"
	UpsertSkipped UpsertResult = "skipped"
)

// resolveExternalOwner ищет владельца из внешней записи в справочнике сотрудников
func (s *EquipmentService) resolveExternalOwner(data *ExternalEquipmentData) *models.User {
	email := strings.TrimSpace(data.AssignedUserEmail)
	if email == "" {
		return nil
	}

	user, err := s.Users.FindUserByEmail(email)
	if err != nil {
		s.Logger.Printf("⚠️ Владелец %s из внешней записи %s не найден в справочнике сотрудников", email, data.ExternalID)
		return nil
	}
	return user
}

// externalTargetStatus вычисляет целевой статус из внешней записи.
// Найденный владелец форсирует 'assigned', если явный статус не говорит иное.
// Пустая строка означает "статус внешней системой не задан".
func externalTargetStatus(data *ExternalEquipmentData, owner *models.User) string {
	status := ""
	if data.Status != "" {
		status = normalizeExternalStatus(data.Status)
	}
	if owner != nil && (status == "" || status == models.EquipmentStatusAvailable) {
		status = models.EquipmentStatusAssigned
	}
	return status
}

// applyExternalState применяет статус и владельца из внешней записи, сохраняя
// инвариант "assigned ⇔ владелец задан". 'assigned' без владельца (ни во внешней
// записи, ни локально) невозможен: запись остается свободной.
func applyExternalState(equipment *models.Equipment, targetStatus string, owner *models.User) bool {
	if targetStatus == "" {
		return false
	}

	userID := equipment.CurrentUserID
	if owner != nil {
		userID = &owner.ID
	}
	if targetStatus == models.EquipmentStatusAssigned && userID == nil {
		targetStatus = models.EquipmentStatusAvailable
	}
	if targetStatus != models.EquipmentStatusAssigned {
		userID = nil
	}

	changed := false
	if equipment.Status != targetStatus {
		equipment.Status = targetStatus
		changed = true
	}
	if !uintPtrEqual(equipment.CurrentUserID, userID) {
		equipment.CurrentUserID = userID
		equipment.CurrentUser = nil
		changed = true
	}
	return changed
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpsertFromExternal сопоставляет запись внешней системы с локальной и создает либо обновляет ее.
// Сопоставление: сначала по внешнему ID, затем по серийному номеру. Запись без серийного
// номера отклоняется: серийный номер — единственный надежный якорь сверки. Все поля,
// присланные внешней системой, включая статус и владельца, накладываются поверх локальных.
func (s *EquipmentService) UpsertFromExternal(data *ExternalEquipmentData) (UpsertResult, *models.Equipment, error) {
	serialNumber := strings.ToUpper(strings.TrimSpace(data.SerialNumber))
	if serialNumber == "" {
		return UpsertSkipped, nil, errs.NewValidation(
			fmt.Sprintf("внешняя запись %s не содержит серийного номера", data.ExternalID))
	}

	now := time.Now()
	owner := s.resolveExternalOwner(data)
	targetStatus := externalTargetStatus(data, owner)

	var equipment models.Equipment
	err := s.DB.Where("external_asset_id = ?", data.ExternalID).First(&equipment).Error
	if err == gorm.ErrRecordNotFound {
		err = s.DB.Where("serial_number = ?", serialNumber).First(&equipment).Error
	}

	if err == gorm.ErrRecordNotFound {
		// Новая запись из внешней системы
		equipment = models.Equipment{
			SerialNumber:    serialNumber,
			ExternalAssetID: &data.ExternalID,
			InternalID:      data.InternalID,
			Type:            normalizeExternalType(data.Type),
			Brand:           data.Brand,
			Model:           data.Model,
			Status:          models.EquipmentStatusAvailable,
			IMEI:            data.IMEI,
			PhoneLine:       data.PhoneLine,
			LastSyncedAt:    &now,
		}
		applyExternalState(&equipment, targetStatus, owner)
		if err := s.DB.Create(&equipment).Error; err != nil {
			return UpsertSkipped, nil, fmt.Errorf("ошибка создания оборудования из внешней записи %s: %w", data.ExternalID, err)
		}
		return UpsertCreated, &equipment, nil
	}
	if err != nil {
		return UpsertSkipped, nil, fmt.Errorf("ошибка поиска оборудования для внешней записи %s: %w", data.ExternalID, err)
	}

	// Существующая запись: внешняя система перекрывает все поля, кроме идентичности
	changed := false
	if equipment.ExternalAssetID == nil || *equipment.ExternalAssetID != data.ExternalID {
		equipment.ExternalAssetID = &data.ExternalID
		changed = true
	}
	if data.InternalID != "" && equipment.InternalID != data.InternalID {
		equipment.InternalID = data.InternalID
		changed = true
	}
	if data.Type != "" {
		if normalized := normalizeExternalType(data.Type); equipment.Type != normalized {
			equipment.Type = normalized
			changed = true
		}
	}
	if data.Brand != "" && equipment.Brand != data.Brand {
		equipment.Brand = data.Brand
		changed = true
	}
	if data.Model != "" && equipment.Model != data.Model {
		equipment.Model = data.Model
		changed = true
	}
	if data.IMEI != "" && equipment.IMEI != data.IMEI {
		equipment.IMEI = data.IMEI
		changed = true
	}
	if data.PhoneLine != "" && equipment.PhoneLine != data.PhoneLine {
		equipment.PhoneLine = data.PhoneLine
		changed = true
	}
	if applyExternalState(&equipment, targetStatus, owner) {
		changed = true
	}

	equipment.LastSyncedAt = &now
	if err := s.DB.Save(&equipment).Error; err != nil {
		return UpsertSkipped, nil, fmt.Errorf("ошибка обновления оборудования %s: %w", equipment.SerialNumber, err)
	}

	if changed {
		return UpsertUpdated, &equipment, nil
	}
	return UpsertSkipped, &equipment, nil
}

// GetEquipmentStats возвращает агрегированную статистику по парку
func (s *EquipmentService) GetEquipmentStats() (*EquipmentStats, error) {
	stats := &EquipmentStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	if err := s.DB.Model(&models.Equipment{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета оборудования: %w", err)
	}

	type countRow struct {
		Key   string
		Count int64
	}

	var statusRows []countRow
	if err := s.DB.Model(&models.Equipment{}).
		Select("status as key, count(*) as count").
		Group("status").Scan(&statusRows).Error; err != nil {
		return nil, fmt.Errorf("ошибка статистики по статусам: %w", err)
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Key] = row.Count
	}

	var typeRows []countRow
	if err := s.DB.Model(&models.Equipment{}).
		Select("equipment_type as key, count(*) as count").
		Group("equipment_type").Scan(&typeRows).Error; err != nil {
		return nil, fmt.Errorf("ошибка статистики по типам: %w", err)
	}
	for _, row := range typeRows {
		stats.ByType[row.Key] = row.Count
	}

	stats.Assigned = stats.ByStatus[models.EquipmentStatusAssigned]
	stats.Available = stats.ByStatus[models.EquipmentStatusAvailable]

	if err := s.DB.Model(&models.Equipment{}).
		Where("last_synced_at IS NULL").Count(&stats.NeverSync).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета несинхронизированного оборудования: %w", err)
	}

	var totalValue *string
	if err := s.DB.Model(&models.Equipment{}).
		Select("COALESCE(SUM(purchase_price), 0)").Scan(&totalValue).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета стоимости парка: %w", err)
	}
	if totalValue != nil {
		stats.TotalValue = *totalValue
	}

	return stats, nil
}

// normalizeExternalType приводит тип из внешней системы к локальному словарю
func normalizeExternalType(external string) string {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "laptop", "notebook", "ordinateur portable":
		return models.EquipmentTypeLaptop
	case "desktop", "workstation", "poste fixe":
		return models.EquipmentTypeDesktop
	case "mobile", "smartphone", "telephone", "téléphone":
		return models.EquipmentTypeMobile
	case "ip phone", "ip_phone", "telephone ip", "téléphone ip":
		return models.EquipmentTypeIPPhone
	case "monitor", "screen", "ecran", "écran":
		return models.EquipmentTypeMonitor
	case "tablet", "tablette":
		return models.EquipmentTypeTablet
	default:
		return models.EquipmentTypeOther
	}
}

// normalizeExternalStatus приводит статус из внешней системы к локальному словарю.
// Внешняя система исторически хранит статусы на французском.
func normalizeExternalStatus(external string) string {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "disponible", "available", "in stock":
		return models.EquipmentStatusAvailable
	case "affecte", "affecté", "assigned", "in use":
		return models.EquipmentStatusAssigned
	case "en reparation", "en réparation", "in repair", "repair":
		return models.EquipmentStatusInRepair
	case "restitue", "restitué", "returned":
		return models.EquipmentStatusReturned
	case "perdu", "lost":
		return models.EquipmentStatusLost
	case "detruit", "détruit", "destroyed", "retired":
		return models.EquipmentStatusDestroyed
	default:
		return models.EquipmentStatusAvailable
	}
}

// ExternalStatusFor возвращает статус внешней системы для локального статуса
func ExternalStatusFor(localStatus string) string {
	switch localStatus {
	case models.EquipmentStatusAvailable:
		return "Disponible"
	case models.EquipmentStatusAssigned:
		return "Affecté"
	case models.EquipmentStatusInRepair:
		return "En réparation"
	case models.EquipmentStatusReturned:
		return "Restitué"
	case models.EquipmentStatusLost:
		return "Perdu"
	case models.EquipmentStatusDestroyed:
		return "Détruit"
	default:
		return "Disponible"
	}
}
