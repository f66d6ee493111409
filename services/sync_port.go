package services

import "context"

// ExternalSyncPort односторонний порт выталкивания изменений во внешнюю asset-систему.
// Жизненный цикл оборудования зависит от порта только в эту сторону: операции выдачи
// и возврата вызывают его после фиксации транзакции и не зависят от его результата.
type ExternalSyncPort interface {
	// UpdateStatusOnly выталкивает статус и владельца оборудования во внешнюю
	// систему. Никогда не возвращает ошибку: сбой фиксируется в журнале
	// синхронизации и разбирается фоновым проходом.
	UpdateStatusOnly(ctx context.Context, equipmentID uint)
}

// noopSyncPort порт-заглушка для конфигураций без внешней системы
type noopSyncPort struct{}

func (noopSyncPort) UpdateStatusOnly(ctx context.Context, equipmentID uint) {}

// NewNoopSyncPort возвращает порт, игнорирующий все вызовы
func NewNoopSyncPort() ExternalSyncPort {
	return noopSyncPort{}
}
