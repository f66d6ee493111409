package models

import (
	"time"

	"gorm.io/gorm"
)

// User представляет профиль сотрудника, импортированный из каталога компании
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Идентификаторы в каталоге (UPN и почта)
	DirectoryID string `json:"directory_id" gorm:"uniqueIndex;not null;type:varchar(100)"`
	Email       string `json:"email" gorm:"uniqueIndex;not null;type:varchar(100)"`

	// Отображаемые данные
	DisplayName    string `json:"display_name" gorm:"not null;type:varchar(150)"`
	GivenName      string `json:"given_name" gorm:"type:varchar(100)"`
	Surname        string `json:"surname" gorm:"type:varchar(100)"`
	JobTitle       string `json:"job_title" gorm:"type:varchar(150)"`
	Department     string `json:"department" gorm:"type:varchar(150)"`
	OfficeLocation string `json:"office_location" gorm:"type:varchar(150)"`
	MobilePhone    string `json:"mobile_phone" gorm:"type:varchar(30)"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	// Время последнего импорта профиля из каталога
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// GetDisplayName возвращает отображаемое имя сотрудника
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.GivenName + " " + u.Surname
}
