package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Типы оборудования
const (
	EquipmentTypeLaptop  = "laptop"
	EquipmentTypeDesktop = "desktop"
	EquipmentTypeMobile  = "mobile"
	EquipmentTypeIPPhone = "ip_phone"
	EquipmentTypeMonitor = "monitor"
	EquipmentTypeTablet  = "tablet"
	EquipmentTypeOther   = "other"
)

// Статусы оборудования
const (
	EquipmentStatusAvailable = "available"
	EquipmentStatusAssigned  = "assigned"
	EquipmentStatusInRepair  = "in_repair"
	EquipmentStatusReturned  = "returned"
	EquipmentStatusLost      = "lost"
	EquipmentStatusDestroyed = "destroyed"
)

// Equipment представляет единицу оборудования парка (ноутбук, телефон, монитор и т.д.)
type Equipment struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Идентификаторы. Серийный номер — стабильный бизнес-ключ,
	// ExternalAssetID — ID зеркальной записи во внешней asset-системе.
	SerialNumber    string  `json:"serial_number" gorm:"uniqueIndex;not null;type:varchar(100)"`
	ExternalAssetID *string `json:"external_asset_id" gorm:"uniqueIndex;type:varchar(100)"`
	InternalID      string  `json:"internal_id" gorm:"index;type:varchar(50)"` // Инвентарный номер (PI-xxxx)

	// Описательные характеристики
	Type  string `json:"type" gorm:"column:equipment_type;not null;type:varchar(30)"`
	Brand string `json:"brand" gorm:"not null;type:varchar(100)"`
	Model string `json:"model" gorm:"not null;type:varchar(100)"`

	// Для мобильных устройств
	IMEI      string `json:"imei" gorm:"type:varchar(20)"`
	PhoneLine string `json:"phone_line" gorm:"type:varchar(20)"`

	// Состояние. Инвариант: CurrentUserID != nil <=> Status == assigned.
	Status        string `json:"status" gorm:"default:'available';type:varchar(20);index"`
	CurrentUserID *uint  `json:"current_user_id" gorm:"index"`
	CurrentUser   *User  `json:"current_user,omitempty" gorm:"foreignKey:CurrentUserID"`

	// Дополнительная информация
	Location            string          `json:"location" gorm:"type:varchar(150)"`
	AdditionalSoftwares []string        `json:"additional_softwares" gorm:"serializer:json"`
	PurchasePrice       decimal.Decimal `json:"purchase_price" gorm:"type:decimal(10,2)"`
	PurchaseDate        *time.Time      `json:"purchase_date"`
	Notes               string          `json:"notes" gorm:"type:text"`

	// Время последней синхронизации с внешней asset-системой
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// TableName задает имя таблицы для модели Equipment
func (Equipment) TableName() string {
	return "equipment"
}

// IsAvailable проверяет, доступно ли оборудование для выдачи
func (e *Equipment) IsAvailable() bool {
	return e.Status == EquipmentStatusAvailable && e.CurrentUserID == nil
}

// IsConsistent проверяет инвариант "assigned <=> есть пользователь"
func (e *Equipment) IsConsistent() bool {
	if e.Status == EquipmentStatusAssigned {
		return e.CurrentUserID != nil
	}
	return e.CurrentUserID == nil
}

// IsValidEquipmentType проверяет, входит ли тип в допустимый перечень
func IsValidEquipmentType(t string) bool {
	switch t {
	case EquipmentTypeLaptop, EquipmentTypeDesktop, EquipmentTypeMobile,
		EquipmentTypeIPPhone, EquipmentTypeMonitor, EquipmentTypeTablet,
		EquipmentTypeOther:
		return true
	}
	return false
}

// IsValidEquipmentStatus проверяет, входит ли статус в допустимый перечень
func IsValidEquipmentStatus(s string) bool {
	switch s {
	case EquipmentStatusAvailable, EquipmentStatusAssigned, EquipmentStatusInRepair,
		EquipmentStatusReturned, EquipmentStatusLost, EquipmentStatusDestroyed:
		return true
	}
	return false
}
