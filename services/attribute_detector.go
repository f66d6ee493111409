package services

import (
	"fmt"
	"regexp"
	"strings"
)

// AttributeMap сопоставление полей оборудования с ID типов атрибутов внешней системы
type AttributeMap struct {
	SerialNumber string `json:"serial_number"`
	InternalID   string `json:"internal_id"`
	Type         string `json:"type"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	AssignedUser string `json:"assigned_user"`
	IMEI         string `json:"imei"`
	PhoneLine    string `json:"phone_line"`
}

// HasSerial проверяет, определен ли атрибут серийного номера — единственный,
// без которого сверка записей невозможна
func (m *AttributeMap) HasSerial() bool {
	return m.SerialNumber != ""
}

// AttributeDetection результат определения одного поля
type AttributeDetection struct {
	Field        string  `json:"field"`
	AttributeID  string  `json:"attribute_id"`
	MatchedValue string  `json:"matched_value"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation"`
}

// Эвристики по значениям атрибутов одного образца объекта
var (
	serialValuePattern     = regexp.MustCompile(`(?i)^[A-Z0-9]{4,20}$`)
	internalIDValuePattern = regexp.MustCompile(`(?i)^PI-\d+$`)
	modelFamilyPattern     = regexp.MustCompile(`(?i)^(Precision|Latitude|OptiPlex|ThinkPad|IdeaPad|MacBook|iMac|Surface|EliteBook|ProBook|Pavilion|iPhone|Galaxy|Pixel)`)
)

// Имена типов объектов, на которые ссылаются атрибуты производителя и сотрудника
// (внешняя система исторически смешивает английский и французский)
var (
	brandRefTypeNames = []string{"constructeur", "brand", "manufacturer", "fabricant"}
	userRefTypeNames  = []string{"user", "utilisateur", "employee", "employe"}
)

func referencedTypeContains(value *InsightAttributeValue, names []string) bool {
	if value.ReferencedObject == nil {
		return false
	}
	typeName := strings.ToLower(value.ReferencedObject.ObjectType.Name)
	for _, name := range names {
		if strings.Contains(typeName, name) {
			return true
		}
	}
	return false
}

// DetectAttributes классифицирует атрибуты одного образца объекта внешней системы
// по эвристикам над их первыми значениями. Чистая функция: каждое поле получает
// не более одного атрибута, каждый атрибут обслуживает не более одного поля,
// первое совпадение побеждает. Несопоставленные поля остаются пустыми: вызывающий
// код обязан переживать частичную карту.
func DetectAttributes(sample *InsightObject) (*AttributeMap, []AttributeDetection) {
	result := &AttributeMap{}
	var detections []AttributeDetection

	if sample == nil {
		return result, detections
	}

	record := func(field, attributeID, matched string, confidence float64, explanation string) {
		detections = append(detections, AttributeDetection{
			Field:        field,
			AttributeID:  attributeID,
			MatchedValue: matched,
			Confidence:   confidence,
			Explanation:  explanation,
		})
	}

	for _, attr := range sample.Attributes {
		if len(attr.ObjectAttributeValues) == 0 {
			continue
		}
		value := attr.ObjectAttributeValues[0]

		// Серийный номер: строка из 4-20 букв и цифр
		if result.SerialNumber == "" && value.Value != "" && serialValuePattern.MatchString(value.Value) {
			result.SerialNumber = attr.ObjectTypeAttributeID
			record("serial_number", attr.ObjectTypeAttributeID, value.Value, 0.8,
				fmt.Sprintf("значение '%s' похоже на серийный номер", value.Value))
			continue
		}

		// Производитель: ссылка на объект типа "Constructeurs"/"Brand"
		if result.Brand == "" && referencedTypeContains(&value, brandRefTypeNames) {
			result.Brand = attr.ObjectTypeAttributeID
			record("brand", attr.ObjectTypeAttributeID, value.ReferencedObject.Label, 1.0,
				fmt.Sprintf("ссылка на объект типа '%s'", value.ReferencedObject.ObjectType.Name))
			continue
		}

		// Модель: известное семейство моделей в начале строки
		if result.Model == "" && len(value.Value) > 2 && modelFamilyPattern.MatchString(value.Value) {
			result.Model = attr.ObjectTypeAttributeID
			record("model", attr.ObjectTypeAttributeID, value.Value, 0.7,
				fmt.Sprintf("значение '%s' начинается с известного семейства моделей", value.Value))
			continue
		}

		// Статус: значение статусной формы
		if result.Status == "" && value.Status != nil {
			result.Status = attr.ObjectTypeAttributeID
			record("status", attr.ObjectTypeAttributeID, value.Status.Name, 1.0,
				"значение имеет статусную форму")
			continue
		}

		// Внутренний инвентарный номер: формат PI-XXXX
		if result.InternalID == "" && internalIDValuePattern.MatchString(value.Value) {
			result.InternalID = attr.ObjectTypeAttributeID
			record("internal_id", attr.ObjectTypeAttributeID, value.Value, 1.0,
				fmt.Sprintf("значение '%s' соответствует формату внутреннего номера", value.Value))
			continue
		}

		// Владелец: ссылка на объект типа "User"/"Utilisateurs"
		if result.AssignedUser == "" && referencedTypeContains(&value, userRefTypeNames) {
			result.AssignedUser = attr.ObjectTypeAttributeID
			record("assigned_user", attr.ObjectTypeAttributeID, value.Display(), 1.0,
				fmt.Sprintf("ссылка на объект типа '%s'", value.ReferencedObject.ObjectType.Name))
			continue
		}
	}

	return result, detections
}
