package models

import (
	"time"

	"gorm.io/gorm"
)

// Состояния оборудования при возврате
const (
	ReturnConditionGood      = "good"
	ReturnConditionDegraded  = "degraded"
	ReturnConditionDamaged   = "damaged"
	ReturnConditionMissing   = "missing"
	ReturnConditionDestroyed = "destroyed"
)

// Роли подписантов акта возврата
const (
	SignerRoleEmployee = "employee"
	SignerRoleIT       = "it"
	SignerRoleHR       = "rh"
)

// ReturnedItem строка акта возврата: одна единица оборудования с ее
// состоянием на момент сдачи
type ReturnedItem struct {
	ID       uint `json:"id" gorm:"primarykey"`
	ReturnID uint `json:"return_id" gorm:"not null;index"`

	EquipmentID uint       `json:"equipment_id" gorm:"not null;index"`
	Equipment   *Equipment `json:"equipment,omitempty" gorm:"foreignKey:EquipmentID"`

	// Снимок реквизитов оборудования
	InternalID   string `json:"internal_id" gorm:"type:varchar(50)"`
	SerialNumber string `json:"serial_number" gorm:"type:varchar(100)"`

	ReturnDate time.Time `json:"return_date" gorm:"not null"`
	Condition  string    `json:"condition" gorm:"not null;type:varchar(30)"`
	Notes      string    `json:"notes" gorm:"type:text"`
	Photos     []string  `json:"photos" gorm:"serializer:json"`
}

// TableName задает имя таблицы для модели ReturnedItem
func (ReturnedItem) TableName() string {
	return "returned_items"
}

// HRValidation блок финальной валидации возврата службой HR
type HRValidation struct {
	ValidatedBy    string     `json:"validated_by" gorm:"type:varchar(150)"`
	ValidatedAt    *time.Time `json:"validated_at"`
	FullSettlement bool       `json:"full_settlement"` // "solde de tout compte"
}

// IsValidated проверяет, выполнена ли HR-валидация
func (v *HRValidation) IsValidated() bool {
	return v != nil && v.ValidatedAt != nil
}

// Return представляет реституцию: возврат оборудования по ранее
// оформленной дотации. Акт подписывается тремя сторонами (сотрудник,
// IT, HR), финальный шаг — валидация HR.
type Return struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	AllocationID uint        `json:"allocation_id" gorm:"not null;index"`
	Allocation   *Allocation `json:"allocation,omitempty" gorm:"foreignKey:AllocationID"`

	UserID   uint   `json:"user_id" gorm:"not null;index"`
	User     *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	UserName string `json:"user_name" gorm:"not null;type:varchar(150)"`

	Items []ReturnedItem `json:"items" gorm:"foreignKey:ReturnID"`

	ReturnDate time.Time `json:"return_date" gorm:"not null;index"`

	// Три независимых блока подписей, каждый заполняется ровно один раз
	SignatureEmployee SignatureBlock `json:"signature_employee" gorm:"embedded;embeddedPrefix:sig_employee_"`
	SignatureIT       SignatureBlock `json:"signature_it" gorm:"embedded;embeddedPrefix:sig_it_"`
	SignatureHR       SignatureBlock `json:"signature_hr" gorm:"embedded;embeddedPrefix:sig_hr_"`
	SignedAt          *time.Time     `json:"signed_at"`

	RemovedSoftware []string `json:"removed_software" gorm:"serializer:json"`
	CreatedBy       string   `json:"created_by" gorm:"not null;type:varchar(150)"`

	// Финальная валидация HR; после нее возврат считается закрытым
	HRValidation HRValidation `json:"hr_validation" gorm:"embedded;embeddedPrefix:hr_"`
	CompletedAt  *time.Time   `json:"completed_at"`
}

// TableName задает имя таблицы для модели Return
func (Return) TableName() string {
	return "returns"
}

// SignatureByRole возвращает блок подписи для указанной роли
func (r *Return) SignatureByRole(role string) *SignatureBlock {
	switch role {
	case SignerRoleEmployee:
		return &r.SignatureEmployee
	case SignerRoleIT:
		return &r.SignatureIT
	case SignerRoleHR:
		return &r.SignatureHR
	}
	return nil
}

// EquipmentIDs возвращает идентификаторы возвращенного оборудования
func (r *Return) EquipmentIDs() []uint {
	ids := make([]uint, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.EquipmentID)
	}
	return ids
}

// IsValidSignerRole проверяет, входит ли роль в допустимый перечень
func IsValidSignerRole(role string) bool {
	return role == SignerRoleEmployee || role == SignerRoleIT || role == SignerRoleHR
}

// IsValidReturnCondition проверяет состояние возврата по перечню
func IsValidReturnCondition(c string) bool {
	switch c {
	case ReturnConditionGood, ReturnConditionDegraded, ReturnConditionDamaged,
		ReturnConditionMissing, ReturnConditionDestroyed:
		return true
	}
	return false
}

