package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, gin
}

// PerformanceIndexes индексы для оптимизации производительности
var PerformanceIndexes = []DatabaseIndex{
	// Индексы для таблицы equipment
	{
		Name:    "idx_equipment_status",
		Table:   "equipment",
		Columns: []string{"status"},
		Type:    "btree",
	},
	{
		Name:    "idx_equipment_status_user",
		Table:   "equipment",
		Columns: []string{"status", "current_user_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_equipment_type_status",
		Table:   "equipment",
		Columns: []string{"equipment_type", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_equipment_last_synced",
		Table:   "equipment",
		Columns: []string{"last_synced_at"},
		Type:    "btree",
	},

	// Индексы для таблицы allocations
	{
		Name:    "idx_allocations_user_status",
		Table:   "allocations",
		Columns: []string{"user_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_allocations_delivery_date",
		Table:   "allocations",
		Columns: []string{"delivery_date"},
		Type:    "btree",
	},
	{
		Name:    "idx_allocation_items_equipment",
		Table:   "allocation_items",
		Columns: []string{"equipment_id"},
		Type:    "btree",
	},

	// Индексы для таблицы returns
	{
		Name:    "idx_returns_allocation",
		Table:   "returns",
		Columns: []string{"allocation_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_returned_items_equipment",
		Table:   "returned_items",
		Columns: []string{"equipment_id"},
		Type:    "btree",
	},

	// Индексы для журнала синхронизации
	{
		Name:    "idx_sync_journal_status_retry",
		Table:   "sync_journal",
		Columns: []string{"status", "next_retry_at"},
		Type:    "btree",
	},
	{
		Name:    "idx_sync_journal_batch",
		Table:   "sync_journal",
		Columns: []string{"batch_id"},
		Type:    "btree",
	},

	// Индексы для таблицы users
	{
		Name:    "idx_users_email",
		Table:   "users",
		Columns: []string{"email"},
		Unique:  true,
		Type:    "btree",
	},
	{
		Name:    "idx_users_directory_id",
		Table:   "users",
		Columns: []string{"directory_id"},
		Unique:  true,
		Type:    "btree",
	},

	// Индексы для полнотекстового поиска (GIN)
	{
		Name:    "idx_equipment_fulltext",
		Table:   "equipment",
		Columns: []string{"brand", "model"},
		Type:    "gin",
	},
}

// CreatePerformanceIndexes создает индексы для оптимизации производительности
func CreatePerformanceIndexes(db *gorm.DB) error {
	log.Printf("Creating performance indexes...")

	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("Failed to create index %s: %v", index.Name, err)
			// Продолжаем создание других индексов даже если один упал
			continue
		}
	}

	log.Printf("Performance indexes creation completed")
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	var sql string

	switch index.Type {
	case "gin":
		// Для полнотекстового поиска
		if len(index.Columns) == 2 {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('simple', COALESCE(%s, '') || ' ' || COALESCE(%s, '')))",
				index.Name, index.Table, index.Columns[0], index.Columns[1],
			)
		} else {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('simple', %s))",
				index.Name, index.Table, index.Columns[0],
			)
		}
	default:
		// Обычные B-tree индексы
		uniqueStr := ""
		if index.Unique {
			uniqueStr = "UNIQUE "
		}

		sql = fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
		)
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}
