package testutils

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backend_parc/database"
	"backend_parc/models"
)

// SetupTestDB создает тестовую базу данных SQLite в памяти.
// Эта функция должна использоваться во всех тестах для обеспечения консистентности.
func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Отключаем логи в тестах
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB закрывает тестовую базу данных
func CleanupTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// CreateTestUser создает тестового сотрудника
func CreateTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	user := &models.User{
		DirectoryID: "dir-" + email,
		Email:       email,
		DisplayName: "Test User",
		GivenName:   "Test",
		Surname:     "User",
		Department:  "IT",
		IsActive:    true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateTestEquipment создает тестовую единицу оборудования со статусом available
func CreateTestEquipment(t *testing.T, db *gorm.DB, serial string) *models.Equipment {
	equipment := &models.Equipment{
		SerialNumber: serial,
		InternalID:   fmt.Sprintf("PI-%d", time.Now().UnixNano()%100000),
		Type:         models.EquipmentTypeLaptop,
		Brand:        "Dell",
		Model:        "Latitude 5440",
		Status:       models.EquipmentStatusAvailable,
	}
	if err := db.Create(equipment).Error; err != nil {
		t.Fatalf("Failed to create test equipment: %v", err)
	}
	return equipment
}

// CreateTestAllocation создает тестовую выдачу с одной позицией.
// Оборудование переводится в assigned, как это делает боевой код.
func CreateTestAllocation(t *testing.T, db *gorm.DB, user *models.User, equipment *models.Equipment) *models.Allocation {
	if err := db.Model(&models.Equipment{}).Where("id = ?", equipment.ID).Updates(map[string]interface{}{
		"status":          models.EquipmentStatusAssigned,
		"current_user_id": user.ID,
	}).Error; err != nil {
		t.Fatalf("Failed to assign test equipment: %v", err)
	}

	allocation := &models.Allocation{
		UserID:       user.ID,
		UserName:     user.GetDisplayName(),
		UserEmail:    user.Email,
		DeliveryDate: time.Now(),
		Status:       models.AllocationStatusInProgress,
		CreatedBy:    "it@example.com",
		Items: []models.AllocationItem{
			{
				EquipmentID:   equipment.ID,
				InternalID:    equipment.InternalID,
				Type:          equipment.Type,
				SerialNumber:  equipment.SerialNumber,
				DeliveredDate: time.Now(),
				Condition:     models.DeliveryConditionGood,
			},
		},
	}
	if err := db.Create(allocation).Error; err != nil {
		t.Fatalf("Failed to create test allocation: %v", err)
	}
	return allocation
}
