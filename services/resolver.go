package services

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"backend_parc/errs"
	"backend_parc/models"

	"gorm.io/gorm"
)

// EquipmentRef ссылка на оборудование из входящего запроса. Клиенты исторически
// присылают идентификаторы под разными ключами, поэтому разбор терпим к алиасам.
type EquipmentRef struct {
	LocalID         *uint
	ExternalAssetID string
	SerialNumber    string

	// Raw сохраняет исходный фрагмент для диагностики
	Raw string
}

// refAliases алиасы ключей во входящем JSON
var (
	localIDAliases  = []string{"equipmentId", "equipment_id", "id"}
	externalAliases = []string{"externalAssetId", "external_asset_id", "jiraAssetId", "jira_asset_id"}
	serialAliases   = []string{"serialNumber", "serial_number"}
)

// UnmarshalJSON разбирает ссылку, принимая как объект с алиасами ключей,
// так и голое число (локальный ID)
func (r *EquipmentRef) UnmarshalJSON(data []byte) error {
	r.Raw = string(data)

	// Голое число считается локальным ID
	var bareID uint
	if err := json.Unmarshal(data, &bareID); err == nil {
		r.LocalID = &bareID
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ссылка на оборудование должна быть числом или объектом: %w", err)
	}

	for _, key := range localIDAliases {
		if v, ok := raw[key]; ok {
			var id uint
			if err := json.Unmarshal(v, &id); err == nil && id > 0 {
				r.LocalID = &id
				break
			}
			// ID может прийти строкой
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				var parsed uint
				if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil && parsed > 0 {
					r.LocalID = &parsed
					break
				}
			}
		}
	}

	for _, key := range externalAliases {
		if v, ok := raw[key]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil && s != "" {
				r.ExternalAssetID = s
				break
			}
		}
	}

	for _, key := range serialAliases {
		if v, ok := raw[key]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil && s != "" {
				r.SerialNumber = strings.ToUpper(strings.TrimSpace(s))
				break
			}
		}
	}

	return nil
}

// IsEmpty сообщает, что ссылка не содержит ни одного идентификатора
func (r *EquipmentRef) IsEmpty() bool {
	return r.LocalID == nil && r.ExternalAssetID == "" && r.SerialNumber == ""
}

// Describe возвращает человекочитаемое описание ссылки для сообщений об ошибках
func (r *EquipmentRef) Describe() string {
	switch {
	case r.LocalID != nil:
		return fmt.Sprintf("id=%d", *r.LocalID)
	case r.ExternalAssetID != "":
		return fmt.Sprintf("externalAssetId=%s", r.ExternalAssetID)
	case r.SerialNumber != "":
		return fmt.Sprintf("serialNumber=%s", r.SerialNumber)
	default:
		return "пустая ссылка"
	}
}

// ResolvedEquipment результат разрешения ссылки с указанием сработавшего идентификатора
type ResolvedEquipment struct {
	Equipment *models.Equipment
	// ResolvedBy какой идентификатор сработал: local_id, external_asset_id или serial_number
	ResolvedBy string
}

// EquipmentResolver разрешает входящие ссылки на оборудование в локальные записи
type EquipmentResolver struct {
	DB     *gorm.DB
	Logger *log.Logger
}

// NewEquipmentResolver создает резолвер ссылок на оборудование
func NewEquipmentResolver(db *gorm.DB, logger *log.Logger) *EquipmentResolver {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags)
	}
	return &EquipmentResolver{DB: db, Logger: logger}
}

// Resolve разрешает одну ссылку. Порядок: локальный ID, затем внешний ID, затем серийный номер.
func (r *EquipmentResolver) Resolve(ref *EquipmentRef) (*ResolvedEquipment, error) {
	if ref.IsEmpty() {
		return nil, errs.NewValidation("ссылка на оборудование не содержит идентификатора")
	}

	var equipment models.Equipment

	if ref.LocalID != nil {
		err := r.DB.First(&equipment, *ref.LocalID).Error
		if err == nil {
			return &ResolvedEquipment{Equipment: &equipment, ResolvedBy: "local_id"}, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("ошибка поиска оборудования по ID %d: %w", *ref.LocalID, err)
		}
	}

	if ref.ExternalAssetID != "" {
		err := r.DB.Where("external_asset_id = ?", ref.ExternalAssetID).First(&equipment).Error
		if err == nil {
			return &ResolvedEquipment{Equipment: &equipment, ResolvedBy: "external_asset_id"}, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("ошибка поиска оборудования по внешнему ID %s: %w", ref.ExternalAssetID, err)
		}
	}

	if ref.SerialNumber != "" {
		err := r.DB.Where("serial_number = ?", ref.SerialNumber).First(&equipment).Error
		if err == nil {
			return &ResolvedEquipment{Equipment: &equipment, ResolvedBy: "serial_number"}, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("ошибка поиска оборудования по серийному номеру %s: %w", ref.SerialNumber, err)
		}
	}

	return nil, errs.NewNotFound("оборудование", ref.Describe())
}

// ResolveAll разрешает весь список ссылок целиком. Если хотя бы одна ссылка не
// разрешилась, операция отклоняется с перечислением всех проблемных ссылок:
// частично собранная выдача хуже, чем отклоненная.
func (r *EquipmentResolver) ResolveAll(refs []EquipmentRef) ([]ResolvedEquipment, error) {
	if len(refs) == 0 {
		return nil, errs.NewValidation("список оборудования пуст")
	}

	resolved := make([]ResolvedEquipment, 0, len(refs))
	var failures []string
	seen := make(map[uint]string)

	for i := range refs {
		result, err := r.Resolve(&refs[i])
		if err != nil {
			if errs.IsNotFound(err) || errs.IsValidation(err) {
				failures = append(failures, refs[i].Describe())
				continue
			}
			return nil, err
		}

		// Дубликат в одном запросе — тоже отказ
		if prev, ok := seen[result.Equipment.ID]; ok {
			failures = append(failures, fmt.Sprintf("%s дублирует %s", refs[i].Describe(), prev))
			continue
		}
		seen[result.Equipment.ID] = refs[i].Describe()
		resolved = append(resolved, *result)
	}

	if len(failures) > 0 {
		return nil, errs.NewValidationDetails("не все ссылки на оборудование удалось разрешить", failures)
	}

	return resolved, nil
}
