package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы дотации (выдачи оборудования)
const (
	AllocationStatusInProgress = "in_progress"
	AllocationStatusCompleted  = "completed"
	AllocationStatusOverdue    = "overdue"
	AllocationStatusCancelled  = "cancelled"
)

// Состояния оборудования при выдаче
const (
	DeliveryConditionNew    = "new"
	DeliveryConditionGood   = "good"
	DeliveryConditionNormal = "normal_wear"
)

// SignatureBlock блок подписи: кто подписал, изображение подписи и момент времени
type SignatureBlock struct {
	SignerName     string     `json:"signer_name" gorm:"type:varchar(150)"`
	SignatureImage string     `json:"signature_image" gorm:"type:text"` // base64
	Timestamp      *time.Time `json:"timestamp"`
}

// IsSigned проверяет, заполнен ли блок подписи
func (sb *SignatureBlock) IsSigned() bool {
	return sb != nil && sb.SignerName != "" && sb.Timestamp != nil
}

// AllocationItem строка дотации: одна единица оборудования со снимком
// ее реквизитов на момент выдачи
type AllocationItem struct {
	ID           uint `json:"id" gorm:"primarykey"`
	AllocationID uint `json:"allocation_id" gorm:"not null;index"`

	EquipmentID uint       `json:"equipment_id" gorm:"not null;index"`
	Equipment   *Equipment `json:"equipment,omitempty" gorm:"foreignKey:EquipmentID"`

	// Снимок реквизитов оборудования на момент выдачи
	InternalID   string `json:"internal_id" gorm:"type:varchar(50)"`
	Type         string `json:"type" gorm:"type:varchar(30)"`
	SerialNumber string `json:"serial_number" gorm:"type:varchar(100)"`

	DeliveredDate time.Time `json:"delivered_date"`
	Condition     string    `json:"condition" gorm:"default:'good';type:varchar(30)"`
}

// TableName задает имя таблицы для модели AllocationItem
func (AllocationItem) TableName() string {
	return "allocation_items"
}

// Allocation представляет дотацию: выдачу набора оборудования сотруднику.
// Имя и почта сотрудника денормализованы намеренно: документ должен
// отражать данные сотрудника на момент выдачи.
type Allocation struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	UserID    uint   `json:"user_id" gorm:"not null;index"`
	User      *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	UserName  string `json:"user_name" gorm:"not null;type:varchar(150)"`
	UserEmail string `json:"user_email" gorm:"not null;type:varchar(100)"`

	Items []AllocationItem `json:"items" gorm:"foreignKey:AllocationID"`

	DeliveryDate time.Time `json:"delivery_date" gorm:"not null;index"`
	Status       string    `json:"status" gorm:"default:'in_progress';type:varchar(20);index"`

	// Подпись сотрудника. После подписания дотация неизменяема.
	SignatureData SignatureBlock `json:"signature_data" gorm:"embedded;embeddedPrefix:signature_"`
	SignedAt      *time.Time     `json:"signed_at"`

	// Сопутствующие позиции
	Accessories        []string `json:"accessories" gorm:"serializer:json"`
	AdditionalSoftware []string `json:"additional_software" gorm:"serializer:json"`
	StandardSoftware   []string `json:"standard_software" gorm:"serializer:json"`
	Services           []string `json:"services" gorm:"serializer:json"`

	Notes     string `json:"notes" gorm:"type:text"`
	CreatedBy string `json:"created_by" gorm:"not null;type:varchar(150)"` // Ответственный IT
}

// TableName задает имя таблицы для модели Allocation
func (Allocation) TableName() string {
	return "allocations"
}

// IsSigned проверяет, подписана ли дотация
func (a *Allocation) IsSigned() bool {
	return a.SignatureData.IsSigned()
}

// EquipmentIDs возвращает идентификаторы оборудования дотации
func (a *Allocation) EquipmentIDs() []uint {
	ids := make([]uint, 0, len(a.Items))
	for _, item := range a.Items {
		ids = append(ids, item.EquipmentID)
	}
	return ids
}

// ContainsEquipment проверяет принадлежность оборудования этой дотации
func (a *Allocation) ContainsEquipment(equipmentID uint) bool {
	for _, item := range a.Items {
		if item.EquipmentID == equipmentID {
			return true
		}
	}
	return false
}
