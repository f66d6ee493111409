package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы записей журнала синхронизации
const (
	SyncEntryStatusPending    = "pending"
	SyncEntryStatusProcessing = "processing"
	SyncEntryStatusResolved   = "resolved"
	SyncEntryStatusFailed     = "failed"
)

// Операции синхронизации с внешней asset-системой
const (
	SyncOperationPush       = "push"        // Полная выгрузка оборудования наружу
	SyncOperationPull       = "pull"        // Загрузка оборудования извне
	SyncOperationStatusOnly = "status_only" // Редуцированное обновление статус+владелец
	SyncOperationBulkPull   = "bulk_pull"   // Массовый импорт по типу объекта
)

// SyncJournalEntry запись журнала синхронизации (outbox). Неудачная
// попытка best-effort синхронизации не теряется в логах, а фиксируется
// здесь для повторной обработки оператором или фоновым проходом.
type SyncJournalEntry struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Контекст операции: что и куда не удалось синхронизировать
	Operation    string `json:"operation" gorm:"not null;type:varchar(30)"`
	EquipmentID  uint   `json:"equipment_id" gorm:"index"`
	SerialNumber string `json:"serial_number" gorm:"type:varchar(100)"`
	ExternalID   string `json:"external_id" gorm:"type:varchar(100);index"`
	BatchID      string `json:"batch_id" gorm:"type:varchar(40);index"` // UUID массового прогона

	// Идентификаторы атрибутов, с которыми выполнялась попытка
	StatusAttrID       string `json:"status_attr_id" gorm:"type:varchar(40)"`
	AssignedUserAttrID string `json:"assigned_user_attr_id" gorm:"type:varchar(40)"`

	// Детали ошибки
	ErrorMessage string `json:"error_message" gorm:"type:text"`
	Retryable    bool   `json:"retryable" gorm:"default:true"`

	// Учет повторных попыток
	RetryCount  int        `json:"retry_count" gorm:"default:0"`
	MaxRetries  int        `json:"max_retries" gorm:"default:3"`
	NextRetryAt *time.Time `json:"next_retry_at"`
	LastRetryAt *time.Time `json:"last_retry_at"`

	// Статус обработки
	Status     string     `json:"status" gorm:"default:'pending';type:varchar(20);index"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy string     `json:"resolved_by" gorm:"type:varchar(150)"` // оператор или system
}

// TableName задает имя таблицы для модели SyncJournalEntry
func (SyncJournalEntry) TableName() string {
	return "sync_journal"
}

// CanRetry проверяет, можно ли повторить операцию
func (e *SyncJournalEntry) CanRetry() bool {
	if !e.Retryable {
		return false
	}
	if e.RetryCount >= e.MaxRetries {
		return false
	}
	if e.Status == SyncEntryStatusResolved || e.Status == SyncEntryStatusFailed {
		return false
	}
	if e.NextRetryAt != nil && time.Now().Before(*e.NextRetryAt) {
		return false
	}
	return true
}

// MarkAsProcessing отмечает запись как обрабатываемую
func (e *SyncJournalEntry) MarkAsProcessing() {
	e.Status = SyncEntryStatusProcessing
	e.UpdatedAt = time.Now()
}

// MarkAsResolved отмечает запись как успешно повторенную
func (e *SyncJournalEntry) MarkAsResolved(resolvedBy string) {
	now := time.Now()
	e.Status = SyncEntryStatusResolved
	e.ResolvedAt = &now
	e.ResolvedBy = resolvedBy
	e.UpdatedAt = now
}

// MarkAsFailed отмечает запись как исчерпавшую попытки
func (e *SyncJournalEntry) MarkAsFailed() {
	e.Status = SyncEntryStatusFailed
	e.UpdatedAt = time.Now()
}

// IncrementRetryCount увеличивает счетчик попыток и назначает следующую
func (e *SyncJournalEntry) IncrementRetryCount(nextRetryDelay time.Duration) {
	e.RetryCount++
	now := time.Now()
	e.LastRetryAt = &now
	if nextRetryDelay > 0 {
		nextRetry := now.Add(nextRetryDelay)
		e.NextRetryAt = &nextRetry
	}
	e.UpdatedAt = now
}

// GetRetryDelay вычисляет задержку следующей попытки с экспоненциальным backoff
func (e *SyncJournalEntry) GetRetryDelay() time.Duration {
	baseDelay := 1 * time.Minute

	// 1m, 2m, 4m, 8m, ...
	delay := baseDelay * time.Duration(1<<uint(e.RetryCount))

	maxDelay := 1 * time.Hour
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// SyncJournalStats статистика журнала синхронизации
type SyncJournalStats struct {
	TotalEntries    int64              `json:"total_entries"`
	PendingEntries  int64              `json:"pending_entries"`
	ResolvedEntries int64              `json:"resolved_entries"`
	FailedEntries   int64              `json:"failed_entries"`
	EntriesByOp     map[string]int64   `json:"entries_by_operation"`
	RecentEntries   []SyncJournalEntry `json:"recent_entries"`
}

// GetSyncJournalStats возвращает статистику журнала синхронизации
func GetSyncJournalStats(db *gorm.DB, limit int) (*SyncJournalStats, error) {
	stats := &SyncJournalStats{
		EntriesByOp: make(map[string]int64),
	}

	base := db.Model(&SyncJournalEntry{})

	if err := base.Count(&stats.TotalEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&SyncJournalEntry{}).Where("status = ?", SyncEntryStatusPending).Count(&stats.PendingEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&SyncJournalEntry{}).Where("status = ?", SyncEntryStatusResolved).Count(&stats.ResolvedEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&SyncJournalEntry{}).Where("status = ?", SyncEntryStatusFailed).Count(&stats.FailedEntries).Error; err != nil {
		return nil, err
	}

	var opStats []struct {
		Operation string
		Count     int64
	}
	if err := db.Model(&SyncJournalEntry{}).Select("operation, COUNT(*) as count").Group("operation").Scan(&opStats).Error; err != nil {
		return nil, err
	}
	for _, stat := range opStats {
		stats.EntriesByOp[stat.Operation] = stat.Count
	}

	if limit > 0 {
		if err := db.Model(&SyncJournalEntry{}).Order("created_at DESC").Limit(limit).Find(&stats.RecentEntries).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}
