package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"backend_parc/config"
	"backend_parc/errs"
	"backend_parc/models"
)

// SyncService двусторонняя синхронизация парка оборудования с внешней asset-системой.
// Реализует ExternalSyncPort: операции жизненного цикла выталкивают статусы через него.
type SyncService struct {
	DB        *gorm.DB
	Client    *InsightClient
	Equipment *EquipmentService
	Notifier  *NotificationService
	Logger    *log.Logger

	ObjectType   string
	ObjectTypeID string
	BatchSize    int
	BulkTimeout  time.Duration

	mu      sync.Mutex
	attrMap *AttributeMap
}

// bulkQueryCap верхняя граница объема одного массового импорта: защищает от
// бесконечной пагинации при некорректном ответе внешней системы
const bulkQueryCap = 10000

// BulkSyncReport итоги массового импорта из внешней системы
type BulkSyncReport struct {
	BatchID string   `json:"batch_id"`
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// NewSyncService создает сервис синхронизации
func NewSyncService(db *gorm.DB, client *InsightClient, equipment *EquipmentService,
	notifier *NotificationService, cfg *config.Config, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.New(log.Writer(), "[SYNC] ", log.LstdFlags)
	}
	return &SyncService{
		DB:           db,
		Client:       client,
		Equipment:    equipment,
		Notifier:     notifier,
		Logger:       logger,
		ObjectType:   cfg.Sync.DefaultObjectType,
		ObjectTypeID: cfg.Sync.ObjectTypeID,
		BatchSize:    cfg.Sync.BatchSize,
		BulkTimeout:  cfg.Sync.BulkTimeout,
	}
}

// SetAttributeMap задает сопоставление атрибутов вручную (используется в тестах
// и в инсталляциях с фиксированной схемой)
func (s *SyncService) SetAttributeMap(m *AttributeMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrMap = m
}

// EnsureAttributeMap возвращает сопоставление атрибутов, при необходимости
// определяя его по значениям одного образца объекта внешней системы
func (s *SyncService) EnsureAttributeMap(ctx context.Context) (*AttributeMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attrMap != nil {
		return s.attrMap, nil
	}

	iql := fmt.Sprintf(`objectType = "%s"`, s.ObjectType)
	objects, err := s.Client.QueryObjects(ctx, iql, 1)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения образца объекта для автоопределения атрибутов: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("во внешней системе нет ни одного объекта типа '%s': автоопределение атрибутов невозможно", s.ObjectType)
	}

	detected, detections := DetectAttributes(&objects[0])
	for _, d := range detections {
		s.Logger.Printf("Атрибут %s -> %s по значению '%s' (уверенность %.1f, %s)",
			d.AttributeID, d.Field, d.MatchedValue, d.Confidence, d.Explanation)
	}

	if !detected.HasSerial() {
		return nil, fmt.Errorf("автоопределение атрибутов: не найден атрибут серийного номера, сверка записей невозможна")
	}
	if detected.Status == "" {
		s.Logger.Printf("⚠️ Атрибут статуса не определен: выталкивание статусов будет откладываться в журнал")
	}

	s.attrMap = detected
	return s.attrMap, nil
}

// mapObjectToData извлекает поля оборудования из объекта внешней системы
func mapObjectToData(obj *InsightObject, m *AttributeMap) *ExternalEquipmentData {
	return &ExternalEquipmentData{
		ExternalID:        obj.ID,
		SerialNumber:      obj.FirstValue(m.SerialNumber),
		InternalID:        obj.FirstValue(m.InternalID),
		Type:              obj.FirstValue(m.Type),
		Brand:             obj.FirstValue(m.Brand),
		Model:             obj.FirstValue(m.Model),
		Status:            obj.FirstValue(m.Status),
		IMEI:              obj.FirstValue(m.IMEI),
		PhoneLine:         obj.FirstValue(m.PhoneLine),
		AssignedUserEmail: obj.FirstValue(m.AssignedUser),
	}
}

// attributeValue собирает атрибут с одним значением
func attributeValue(typeAttributeID, value string) InsightAttribute {
	return InsightAttribute{
		ObjectTypeAttributeID: typeAttributeID,
		ObjectAttributeValues: []InsightAttributeValue{{Value: value}},
	}
}

// SyncEquipmentFromExternal загружает один объект из внешней системы и
// сопоставляет его с локальной записью
func (s *SyncService) SyncEquipmentFromExternal(ctx context.Context, externalID string) (UpsertResult, *models.Equipment, error) {
	attrMap, err := s.EnsureAttributeMap(ctx)
	if err != nil {
		return UpsertSkipped, nil, err
	}

	obj, err := s.Client.GetObject(ctx, externalID)
	if err != nil {
		return UpsertSkipped, nil, &errs.SyncError{
			Operation:  models.SyncOperationPull,
			ExternalID: externalID,
			Message:    "не удалось получить объект из внешней системы",
			Err:        err,
		}
	}

	return s.Equipment.UpsertFromExternal(mapObjectToData(obj, attrMap))
}

// SyncEquipmentToExternal выталкивает полную карточку оборудования во внешнюю
// систему: создает объект при отсутствии связи, иначе обновляет существующий
func (s *SyncService) SyncEquipmentToExternal(ctx context.Context, equipmentID uint) error {
	attrMap, err := s.EnsureAttributeMap(ctx)
	if err != nil {
		return err
	}

	equipment, err := s.Equipment.GetEquipment(equipmentID)
	if err != nil {
		return err
	}

	attributes := s.buildFullAttributes(equipment, attrMap)

	if equipment.ExternalAssetID == nil || *equipment.ExternalAssetID == "" {
		created, err := s.Client.CreateObject(ctx, &InsightObjectPayload{
			ObjectTypeID: s.ObjectTypeID,
			Attributes:   attributes,
		})
		if err != nil {
			return &errs.SyncError{
				Operation:    models.SyncOperationPush,
				SerialNumber: equipment.SerialNumber,
				Message:      "не удалось создать объект во внешней системе",
				Err:          err,
			}
		}

		now := time.Now()
		equipment.ExternalAssetID = &created.ID
		equipment.LastSyncedAt = &now
		if err := s.DB.Save(equipment).Error; err != nil {
			return fmt.Errorf("ошибка сохранения внешнего ID для %s: %w", equipment.SerialNumber, err)
		}
		return nil
	}

	if err := s.Client.UpdateObject(ctx, *equipment.ExternalAssetID, attributes); err != nil {
		return &errs.SyncError{
			Operation:    models.SyncOperationPush,
			SerialNumber: equipment.SerialNumber,
			ExternalID:   *equipment.ExternalAssetID,
			Message:      "не удалось обновить объект во внешней системе",
			Err:          err,
		}
	}

	now := time.Now()
	equipment.LastSyncedAt = &now
	if err := s.DB.Save(equipment).Error; err != nil {
		return fmt.Errorf("ошибка обновления отметки синхронизации для %s: %w", equipment.SerialNumber, err)
	}
	return nil
}

// buildFullAttributes собирает полный набор атрибутов карточки оборудования
func (s *SyncService) buildFullAttributes(equipment *models.Equipment, m *AttributeMap) []InsightAttribute {
	attributes := []InsightAttribute{
		attributeValue(m.SerialNumber, equipment.SerialNumber),
	}
	if m.Status != "" {
		attributes = append(attributes, attributeValue(m.Status, ExternalStatusFor(equipment.Status)))
	}
	if m.InternalID != "" && equipment.InternalID != "" {
		attributes = append(attributes, attributeValue(m.InternalID, equipment.InternalID))
	}
	if m.Brand != "" && equipment.Brand != "" {
		attributes = append(attributes, attributeValue(m.Brand, equipment.Brand))
	}
	if m.Model != "" && equipment.Model != "" {
		attributes = append(attributes, attributeValue(m.Model, equipment.Model))
	}
	if m.IMEI != "" && equipment.IMEI != "" {
		attributes = append(attributes, attributeValue(m.IMEI, equipment.IMEI))
	}
	if m.PhoneLine != "" && equipment.PhoneLine != "" {
		attributes = append(attributes, attributeValue(m.PhoneLine, equipment.PhoneLine))
	}
	if m.AssignedUser != "" {
		attributes = append(attributes, attributeValue(m.AssignedUser, s.assignedUserLabel(equipment)))
	}
	return attributes
}

// assignedUserLabel возвращает подпись владельца для внешней системы
func (s *SyncService) assignedUserLabel(equipment *models.Equipment) string {
	if equipment.CurrentUserID == nil {
		return ""
	}
	if equipment.CurrentUser != nil {
		return equipment.CurrentUser.Email
	}

	var user models.User
	if err := s.DB.First(&user, *equipment.CurrentUserID).Error; err != nil {
		return ""
	}
	return user.Email
}

// UpdateStatusOnly выталкивает статус и владельца оборудования во внешнюю систему.
// Никогда не возвращает ошибку: сбой или отсутствие связи фиксируются в журнале
// синхронизации и разбираются фоновым проходом. Реализация ExternalSyncPort.
func (s *SyncService) UpdateStatusOnly(ctx context.Context, equipmentID uint) {
	if err := s.pushStatus(ctx, equipmentID); err != nil {
		s.Logger.Printf("Отложено обновление статуса оборудования %d: %v", equipmentID, err)
		s.journalFailure(models.SyncOperationStatusOnly, equipmentID, err)
	}
}

// pushStatus выполняет редуцированное обновление статус+владелец
func (s *SyncService) pushStatus(ctx context.Context, equipmentID uint) error {
	attrMap, err := s.EnsureAttributeMap(ctx)
	if err != nil {
		return err
	}

	equipment, err := s.Equipment.GetEquipment(equipmentID)
	if err != nil {
		return err
	}

	if attrMap.Status == "" {
		return &errs.SyncError{
			Operation:    models.SyncOperationStatusOnly,
			SerialNumber: equipment.SerialNumber,
			Message:      "атрибут статуса во внешней системе не определен",
		}
	}

	if equipment.ExternalAssetID == nil || *equipment.ExternalAssetID == "" {
		return &errs.SyncError{
			Operation:    models.SyncOperationStatusOnly,
			SerialNumber: equipment.SerialNumber,
			Message:      "оборудование не связано с внешней системой",
		}
	}

	attributes := []InsightAttribute{
		attributeValue(attrMap.Status, ExternalStatusFor(equipment.Status)),
	}
	if attrMap.AssignedUser != "" {
		attributes = append(attributes, attributeValue(attrMap.AssignedUser, s.assignedUserLabel(equipment)))
	}

	if err := s.Client.UpdateObject(ctx, *equipment.ExternalAssetID, attributes); err != nil {
		return &errs.SyncError{
			Operation:    models.SyncOperationStatusOnly,
			SerialNumber: equipment.SerialNumber,
			ExternalID:   *equipment.ExternalAssetID,
			Message:      "не удалось обновить статус во внешней системе",
			Err:          err,
		}
	}

	now := time.Now()
	if err := s.DB.Model(&models.Equipment{}).Where("id = ?", equipmentID).
		Update("last_synced_at", now).Error; err != nil {
		s.Logger.Printf("Не удалось обновить отметку синхронизации для %d: %v", equipmentID, err)
	}
	return nil
}

// journalFailure фиксирует сбой синхронизации в журнале для фонового повтора
func (s *SyncService) journalFailure(operation string, equipmentID uint, cause error) {
	entry := models.SyncJournalEntry{
		Operation:    operation,
		EquipmentID:  equipmentID,
		ErrorMessage: cause.Error(),
		Retryable:    true,
		MaxRetries:   3,
		Status:       models.SyncEntryStatusPending,
	}

	var equipment models.Equipment
	if err := s.DB.First(&equipment, equipmentID).Error; err == nil {
		entry.SerialNumber = equipment.SerialNumber
		if equipment.ExternalAssetID != nil {
			entry.ExternalID = *equipment.ExternalAssetID
		}
	}

	// Несвязанное оборудование повторами не чинится
	if strings.Contains(cause.Error(), "не связано с внешней системой") {
		entry.Retryable = false
		entry.Status = models.SyncEntryStatusFailed
	}

	if err := s.DB.Create(&entry).Error; err != nil {
		s.Logger.Printf("КРИТИЧНО: не удалось записать сбой синхронизации в журнал: %v", err)
	}
}

// SyncAllFromExternal выполняет массовый импорт всех объектов заданного типа.
// Объекты обрабатываются пакетами параллельно, отчет содержит счетчики и
// перечень ошибок по отдельным объектам: сбой одного объекта не прерывает прогон.
func (s *SyncService) SyncAllFromExternal(ctx context.Context) (*BulkSyncReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.BulkTimeout)
	defer cancel()

	attrMap, err := s.EnsureAttributeMap(ctx)
	if err != nil {
		return nil, err
	}

	report := &BulkSyncReport{BatchID: uuid.New().String()}

	iql := fmt.Sprintf(`objectType = "%s"`, s.ObjectType)
	objects, err := s.Client.QueryObjects(ctx, iql, bulkQueryCap)
	if err != nil {
		return nil, &errs.SyncError{
			Operation: models.SyncOperationBulkPull,
			Message:   "не удалось получить список объектов внешней системы",
			Err:       err,
		}
	}
	report.Total = len(objects)

	s.Logger.Printf("Массовый импорт %s: %d объектов, пакет %d", report.BatchID, len(objects), s.BatchSize)

	var mu sync.Mutex
	for start := 0; start < len(objects); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(objects) {
			end = len(objects)
		}

		if ctx.Err() != nil {
			mu.Lock()
			report.Errors = append(report.Errors, fmt.Sprintf("прогон прерван: %v", ctx.Err()))
			mu.Unlock()
			break
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			obj := objects[i]
			wg.Add(1)
			go func() {
				defer wg.Done()

				result, _, err := s.Equipment.UpsertFromExternal(mapObjectToData(&obj, attrMap))

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("объект %s: %v", obj.ID, err))
					s.journalBulkFailure(report.BatchID, &obj, err)
					return
				}
				switch result {
				case UpsertCreated:
					report.Created++
				case UpsertUpdated:
					report.Updated++
				default:
					report.Skipped++
				}
			}()
		}
		wg.Wait()
	}

	s.Logger.Printf("Массовый импорт %s завершен: создано %d, обновлено %d, пропущено %d, ошибок %d",
		report.BatchID, report.Created, report.Updated, report.Skipped, len(report.Errors))

	if s.Notifier != nil {
		s.Notifier.NotifyBulkSyncCompleted(report)
	}

	return report, nil
}

// journalBulkFailure фиксирует сбой отдельного объекта массового прогона
func (s *SyncService) journalBulkFailure(batchID string, obj *InsightObject, cause error) {
	// Ошибки валидации (например, пустой серийный номер) повторами не чинятся
	retryable := !errs.IsValidation(cause)

	entry := models.SyncJournalEntry{
		Operation:    models.SyncOperationBulkPull,
		ExternalID:   obj.ID,
		BatchID:      batchID,
		ErrorMessage: cause.Error(),
		Retryable:    retryable,
		MaxRetries:   3,
		Status:       models.SyncEntryStatusPending,
	}
	if !retryable {
		entry.Status = models.SyncEntryStatusFailed
	}

	if err := s.DB.Create(&entry).Error; err != nil {
		s.Logger.Printf("КРИТИЧНО: не удалось записать сбой импорта в журнал: %v", err)
	}
}

// ProcessPendingJournal фоновый проход по журналу синхронизации: повторяет
// отложенные операции, исчерпавшие попытки записи помечает проваленными
// и оповещает дежурных
func (s *SyncService) ProcessPendingJournal(ctx context.Context) error {
	var entries []models.SyncJournalEntry
	now := time.Now()

	err := s.DB.Where("status = ? AND retryable = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
		models.SyncEntryStatusPending, true, now).
		Order("created_at").Limit(100).Find(&entries).Error
	if err != nil {
		return fmt.Errorf("ошибка выборки журнала синхронизации: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	s.Logger.Printf("Фоновый проход журнала: %d записей", len(entries))

	for i := range entries {
		entry := &entries[i]
		entry.MarkAsProcessing()
		if err := s.DB.Save(entry).Error; err != nil {
			s.Logger.Printf("Ошибка блокировки записи журнала %d: %v", entry.ID, err)
			continue
		}

		retryErr := s.retryEntry(ctx, entry)
		if retryErr == nil {
			entry.MarkAsResolved("system")
			if err := s.DB.Save(entry).Error; err != nil {
				s.Logger.Printf("Ошибка закрытия записи журнала %d: %v", entry.ID, err)
			}
			continue
		}

		entry.ErrorMessage = retryErr.Error()
		entry.IncrementRetryCount(entry.GetRetryDelay())
		entry.Status = models.SyncEntryStatusPending

		if entry.RetryCount >= entry.MaxRetries {
			entry.MarkAsFailed()
			if s.Notifier != nil {
				s.Notifier.NotifySyncFailure(entry)
			}
		}

		if err := s.DB.Save(entry).Error; err != nil {
			s.Logger.Printf("Ошибка обновления записи журнала %d: %v", entry.ID, err)
		}
	}

	return nil
}

// retryEntry повторяет операцию, зафиксированную в записи журнала
func (s *SyncService) retryEntry(ctx context.Context, entry *models.SyncJournalEntry) error {
	switch entry.Operation {
	case models.SyncOperationStatusOnly:
		return s.pushStatus(ctx, entry.EquipmentID)
	case models.SyncOperationPush:
		return s.SyncEquipmentToExternal(ctx, entry.EquipmentID)
	case models.SyncOperationPull, models.SyncOperationBulkPull:
		_, _, err := s.SyncEquipmentFromExternal(ctx, entry.ExternalID)
		return err
	default:
		return fmt.Errorf("неизвестная операция журнала: %s", entry.Operation)
	}
}
