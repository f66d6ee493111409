package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"backend_parc/errs"
	"backend_parc/models"

	"gorm.io/gorm"
)

// UserService сервис справочника сотрудников.
// Сотрудники приходят из корпоративного каталога и локально не редактируются,
// кроме признака активности.
type UserService struct {
	DB     *gorm.DB
	Logger *log.Logger
}

// NewUserService создает сервис справочника сотрудников
func NewUserService(db *gorm.DB, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.New(log.Writer(), "[USERS] ", log.LstdFlags)
	}
	return &UserService{DB: db, Logger: logger}
}

// GetUser возвращает сотрудника по ID
func (s *UserService) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("сотрудник", id)
		}
		return nil, fmt.Errorf("ошибка получения сотрудника: %w", err)
	}
	return &user, nil
}

// FindUserByEmail ищет сотрудника по email (без учета регистра)
func (s *UserService) FindUserByEmail(email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errs.NewValidation("email сотрудника обязателен")
	}

	var user models.User
	if err := s.DB.Where("LOWER(email) = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NewNotFound("сотрудник", email)
		}
		return nil, fmt.Errorf("ошибка поиска сотрудника по email: %w", err)
	}
	return &user, nil
}

// ListUsers возвращает сотрудников с опциональным поиском по имени и email
func (s *UserService) ListUsers(search string, onlyActive bool) ([]models.User, error) {
	query := s.DB.Model(&models.User{})
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(display_name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var users []models.User
	if err := query.Order("display_name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("ошибка выборки сотрудников: %w", err)
	}
	return users, nil
}

// DirectoryUserData данные сотрудника из корпоративного каталога
type DirectoryUserData struct {
	DirectoryID    string
	Email          string
	DisplayName    string
	GivenName      string
	Surname        string
	JobTitle       string
	Department     string
	OfficeLocation string
	MobilePhone    string
}

// UpsertFromDirectory создает или обновляет сотрудника по данным каталога.
// Сопоставление по DirectoryID (UPN), затем по email.
func (s *UserService) UpsertFromDirectory(data *DirectoryUserData) (*models.User, error) {
	if data.DirectoryID == "" || data.Email == "" {
		return nil, errs.NewValidation("запись каталога должна содержать directory_id и email")
	}

	now := time.Now()

	var user models.User
	err := s.DB.Where("directory_id = ?", data.DirectoryID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		err = s.DB.Where("LOWER(email) = ?", strings.ToLower(data.Email)).First(&user).Error
	}

	if err == gorm.ErrRecordNotFound {
		user = models.User{
			DirectoryID:    data.DirectoryID,
			Email:          data.Email,
			DisplayName:    data.DisplayName,
			GivenName:      data.GivenName,
			Surname:        data.Surname,
			JobTitle:       data.JobTitle,
			Department:     data.Department,
			OfficeLocation: data.OfficeLocation,
			MobilePhone:    data.MobilePhone,
			IsActive:       true,
			LastSyncedAt:   &now,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("ошибка создания сотрудника из каталога: %w", err)
		}
		s.Logger.Printf("Создан сотрудник из каталога: %s", user.Email)
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска сотрудника в справочнике: %w", err)
	}

	user.DirectoryID = data.DirectoryID
	user.Email = data.Email
	user.DisplayName = data.DisplayName
	user.GivenName = data.GivenName
	user.Surname = data.Surname
	user.JobTitle = data.JobTitle
	user.Department = data.Department
	user.OfficeLocation = data.OfficeLocation
	user.MobilePhone = data.MobilePhone
	user.LastSyncedAt = &now

	if err := s.DB.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления сотрудника из каталога: %w", err)
	}
	return &user, nil
}

// DeactivateUser помечает сотрудника неактивным (ушел из компании).
// Запись не удаляется: на нее ссылаются исторические выдачи.
func (s *UserService) DeactivateUser(id uint) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}

	user.IsActive = false
	if err := s.DB.Save(user).Error; err != nil {
		return fmt.Errorf("ошибка деактивации сотрудника: %w", err)
	}
	return nil
}
