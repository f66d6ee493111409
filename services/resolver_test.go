package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_parc/errs"
	"backend_parc/testutils"
)

func setupResolverTest(t *testing.T) (*gorm.DB, *EquipmentResolver) {
	db := testutils.SetupTestDB(t)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })
	return db, NewEquipmentResolver(db, nil)
}

func TestEquipmentRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		localID  *uint
		external string
		serial   string
	}{
		{name: "голое число", payload: `42`, localID: uintPtr(42)},
		{name: "equipmentId", payload: `{"equipmentId": 7}`, localID: uintPtr(7)},
		{name: "equipment_id", payload: `{"equipment_id": 7}`, localID: uintPtr(7)},
		{name: "id строкой", payload: `{"id": "15"}`, localID: uintPtr(15)},
		{name: "externalAssetId", payload: `{"externalAssetId": "ext-9"}`, external: "ext-9"},
		{name: "jira_asset_id", payload: `{"jira_asset_id": "ext-9"}`, external: "ext-9"},
		{name: "серийный номер нормализуется", payload: `{"serialNumber": " dl7x9k2a "}`, serial: "DL7X9K2A"},
		{name: "snake_case серийный", payload: `{"serial_number": "AB12CD34"}`, serial: "AB12CD34"},
		{
			name:     "смешанные ключи",
			payload:  `{"id": 3, "external_asset_id": "ext-1", "serial_number": "sn01"}`,
			localID:  uintPtr(3),
			external: "ext-1",
			serial:   "SN01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref EquipmentRef
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &ref))

			if tt.localID != nil {
				require.NotNil(t, ref.LocalID)
				assert.Equal(t, *tt.localID, *ref.LocalID)
			} else {
				assert.Nil(t, ref.LocalID)
			}
			assert.Equal(t, tt.external, ref.ExternalAssetID)
			assert.Equal(t, tt.serial, ref.SerialNumber)
		})
	}
}

func TestEquipmentRef_UnmarshalJSON_Invalid(t *testing.T) {
	var ref EquipmentRef
	assert.Error(t, json.Unmarshal([]byte(`"just a string"`), &ref))

	// Пустой объект разбирается, но остается пустой ссылкой
	require.NoError(t, json.Unmarshal([]byte(`{}`), &ref))
	assert.True(t, ref.IsEmpty())
}

func TestEquipmentResolver_Resolve_Order(t *testing.T) {
	db, resolver := setupResolverTest(t)

	equipment := testutils.CreateTestEquipment(t, db, "SN5500DD")
	externalID := "ext-55"
	require.NoError(t, db.Model(equipment).Update("external_asset_id", externalID).Error)

	byID, err := resolver.Resolve(&EquipmentRef{LocalID: &equipment.ID})
	require.NoError(t, err)
	assert.Equal(t, "local_id", byID.ResolvedBy)

	byExternal, err := resolver.Resolve(&EquipmentRef{ExternalAssetID: externalID})
	require.NoError(t, err)
	assert.Equal(t, "external_asset_id", byExternal.ResolvedBy)
	assert.Equal(t, equipment.ID, byExternal.Equipment.ID)

	bySerial, err := resolver.Resolve(&EquipmentRef{SerialNumber: "SN5500DD"})
	require.NoError(t, err)
	assert.Equal(t, "serial_number", bySerial.ResolvedBy)

	// Несуществующий локальный ID с валидным серийным: срабатывает запасной идентификатор
	missingID := uint(9999)
	fallback, err := resolver.Resolve(&EquipmentRef{LocalID: &missingID, SerialNumber: "SN5500DD"})
	require.NoError(t, err)
	assert.Equal(t, "serial_number", fallback.ResolvedBy)
}

func TestEquipmentResolver_Resolve_NotFound(t *testing.T) {
	_, resolver := setupResolverTest(t)

	missingID := uint(123)
	_, err := resolver.Resolve(&EquipmentRef{LocalID: &missingID})
	assert.True(t, errs.IsNotFound(err))

	_, err = resolver.Resolve(&EquipmentRef{})
	assert.True(t, errs.IsValidation(err))
}

func TestEquipmentResolver_ResolveAll_FailClosed(t *testing.T) {
	db, resolver := setupResolverTest(t)

	first := testutils.CreateTestEquipment(t, db, "SN6600EE")
	second := testutils.CreateTestEquipment(t, db, "SN6601EE")

	// Одна нерабочая ссылка валит весь список, обе проблемы перечислены
	missingID := uint(777)
	refs := []EquipmentRef{
		{LocalID: &first.ID},
		{LocalID: &missingID},
		{SerialNumber: "NOPE0000"},
		{LocalID: &second.ID},
	}

	_, err := resolver.ResolveAll(refs)
	require.Error(t, err)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Details, 2)
}

func TestEquipmentResolver_ResolveAll_Duplicates(t *testing.T) {
	db, resolver := setupResolverTest(t)

	equipment := testutils.CreateTestEquipment(t, db, "SN8800FF")

	// Одно и то же оборудование под разными идентификаторами — отказ
	refs := []EquipmentRef{
		{LocalID: &equipment.ID},
		{SerialNumber: "SN8800FF"},
	}

	_, err := resolver.ResolveAll(refs)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestEquipmentResolver_ResolveAll_Empty(t *testing.T) {
	_, resolver := setupResolverTest(t)

	_, err := resolver.ResolveAll(nil)
	assert.True(t, errs.IsValidation(err))
}

func uintPtr(v uint) *uint { return &v }
