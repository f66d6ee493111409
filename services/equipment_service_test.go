package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_parc/errs"
	"backend_parc/models"
	"backend_parc/testutils"
)

func setupEquipmentServiceTest(t *testing.T) (*gorm.DB, *EquipmentService) {
	db := testutils.SetupTestDB(t)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })
	return db, NewEquipmentService(db, nil)
}

func TestEquipmentService_CreateEquipment(t *testing.T) {
	_, es := setupEquipmentServiceTest(t)

	equipment := &models.Equipment{
		SerialNumber: "dl7x9k2a", // нижний регистр нормализуется
		InternalID:   "PI-1042",
		Type:         models.EquipmentTypeLaptop,
		Brand:        "Dell",
		Model:        "Latitude 5440",
	}
	err := es.CreateEquipment(equipment)
	require.NoError(t, err)

	assert.Equal(t, "DL7X9K2A", equipment.SerialNumber)
	assert.Equal(t, models.EquipmentStatusAvailable, equipment.Status)

	// Дубликат серийного номера отклоняется
	dup := &models.Equipment{
		SerialNumber: "DL7X9K2A",
		Type:         models.EquipmentTypeLaptop,
		Brand:        "Dell",
		Model:        "Latitude 5440",
	}
	err = es.CreateEquipment(dup)
	assert.True(t, errs.IsConflict(err))
}

func TestEquipmentService_CreateEquipment_Validation(t *testing.T) {
	_, es := setupEquipmentServiceTest(t)

	// Все нарушения собираются в одну ошибку
	equipment := &models.Equipment{
		SerialNumber: "x!",
		InternalID:   "INV-17",
		Type:         "printer",
	}
	err := es.CreateEquipment(equipment)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Details, 3)
}

func TestEquipmentService_CreateEquipment_RejectsAssigned(t *testing.T) {
	_, es := setupEquipmentServiceTest(t)

	equipment := &models.Equipment{
		SerialNumber: "AB12CD34",
		Type:         models.EquipmentTypeLaptop,
		Brand:        "Dell",
		Model:        "Latitude 5440",
		Status:       models.EquipmentStatusAssigned,
	}
	err := es.CreateEquipment(equipment)
	assert.True(t, errs.IsValidation(err))
}

func TestEquipmentService_TransitionToAssigned(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "user@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SN0001AA")

	err := es.TransitionToAssigned(db, equipment.ID, user.ID)
	require.NoError(t, err)

	var reloaded models.Equipment
	require.NoError(t, db.First(&reloaded, equipment.ID).Error)
	assert.Equal(t, models.EquipmentStatusAssigned, reloaded.Status)
	require.NotNil(t, reloaded.CurrentUserID)
	assert.Equal(t, user.ID, *reloaded.CurrentUserID)

	// Повторная выдача того же оборудования: конфликт, состояние не меняется
	other := testutils.CreateTestUser(t, db, "other@example.com")
	err = es.TransitionToAssigned(db, equipment.ID, other.ID)
	assert.True(t, errs.IsConflict(err))

	require.NoError(t, db.First(&reloaded, equipment.ID).Error)
	assert.Equal(t, user.ID, *reloaded.CurrentUserID)
}

func TestEquipmentService_TransitionToAssigned_NotFound(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "user@example.com")

	err := es.TransitionToAssigned(db, 9999, user.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestEquipmentService_TransitionToReleased(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "user@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SN0002AA")
	require.NoError(t, es.TransitionToAssigned(db, equipment.ID, user.ID))

	err := es.TransitionToReleased(db, equipment.ID, models.EquipmentStatusInRepair)
	require.NoError(t, err)

	var reloaded models.Equipment
	require.NoError(t, db.First(&reloaded, equipment.ID).Error)
	assert.Equal(t, models.EquipmentStatusInRepair, reloaded.Status)
	assert.Nil(t, reloaded.CurrentUserID)

	// Повторный возврат уже возвращенного: идемпотентно, без ошибки
	err = es.TransitionToReleased(db, equipment.ID, models.EquipmentStatusReturned)
	assert.NoError(t, err)

	// Но статус при этом не перезаписывается
	require.NoError(t, db.First(&reloaded, equipment.ID).Error)
	assert.Equal(t, models.EquipmentStatusInRepair, reloaded.Status)
}

func TestEquipmentService_TransitionToReleased_InvalidTarget(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	equipment := testutils.CreateTestEquipment(t, db, "SN0003AA")

	err := es.TransitionToReleased(db, equipment.ID, models.EquipmentStatusAssigned)
	assert.True(t, errs.IsValidation(err))

	err = es.TransitionToReleased(db, equipment.ID, "broken")
	assert.True(t, errs.IsValidation(err))
}

func TestEquipmentService_DeleteEquipment_BlockedWhenAssigned(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "user@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SN0004AA")
	require.NoError(t, es.TransitionToAssigned(db, equipment.ID, user.ID))

	err := es.DeleteEquipment(equipment.ID)
	assert.True(t, errs.IsConflict(err))

	require.NoError(t, es.TransitionToReleased(db, equipment.ID, models.EquipmentStatusReturned))
	assert.NoError(t, es.DeleteEquipment(equipment.ID))
}

func TestEquipmentService_UpsertFromExternal(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)

	data := &ExternalEquipmentData{
		ExternalID:   "ext-100",
		SerialNumber: "sn9900bb",
		InternalID:   "PI-2001",
		Type:         "Ordinateur portable",
		Brand:        "Lenovo",
		Model:        "ThinkPad T14",
		Status:       "Disponible",
	}

	result, equipment, err := es.UpsertFromExternal(data)
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, result)
	assert.Equal(t, "SN9900BB", equipment.SerialNumber)
	assert.Equal(t, models.EquipmentTypeLaptop, equipment.Type)
	assert.Equal(t, models.EquipmentStatusAvailable, equipment.Status)
	assert.NotNil(t, equipment.LastSyncedAt)

	// Повтор без изменений: skipped
	result, _, err = es.UpsertFromExternal(data)
	require.NoError(t, err)
	assert.Equal(t, UpsertSkipped, result)

	// Обновление описательного поля: updated
	data.Model = "ThinkPad T14 Gen 4"
	result, equipment, err = es.UpsertFromExternal(data)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)
	assert.Equal(t, "ThinkPad T14 Gen 4", equipment.Model)

	// Внешняя система — источник истины по статусу: возврат, зафиксированный
	// только там, снимает локальную выдачу
	user := testutils.CreateTestUser(t, db, "user@example.com")
	require.NoError(t, es.TransitionToAssigned(db, equipment.ID, user.ID))

	data.Status = "Disponible"
	result, equipment, err = es.UpsertFromExternal(data)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)
	assert.Equal(t, models.EquipmentStatusAvailable, equipment.Status)
	assert.Nil(t, equipment.CurrentUserID)
}

func TestEquipmentService_UpsertFromExternal_IngestsOwnerByEmail(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "marc.petit@example.com")

	result, equipment, err := es.UpsertFromExternal(&ExternalEquipmentData{
		ExternalID:        "ext-400",
		SerialNumber:      "SN4400DD",
		Status:            "Affecté",
		AssignedUserEmail: "Marc.Petit@Example.com", // регистр почты не важен
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, result)
	assert.Equal(t, models.EquipmentStatusAssigned, equipment.Status)
	require.NotNil(t, equipment.CurrentUserID)
	assert.Equal(t, user.ID, *equipment.CurrentUserID)
}

func TestEquipmentService_UpsertFromExternal_OwnerForcesAssigned(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "sofia.girard@example.com")

	// Внешний статус "Disponible" противоречит заполненному владельцу:
	// владелец побеждает
	_, equipment, err := es.UpsertFromExternal(&ExternalEquipmentData{
		ExternalID:        "ext-401",
		SerialNumber:      "SN4401DD",
		Status:            "Disponible",
		AssignedUserEmail: "sofia.girard@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentStatusAssigned, equipment.Status)
	require.NotNil(t, equipment.CurrentUserID)
	assert.Equal(t, user.ID, *equipment.CurrentUserID)
}

func TestEquipmentService_UpsertFromExternal_UnknownOwnerDemotesToAvailable(t *testing.T) {
	_, es := setupEquipmentServiceTest(t)

	// Статус "Affecté" без владельца, которого можно найти в справочнике,
	// нарушал бы инвариант выдачи: запись приводится к available
	_, equipment, err := es.UpsertFromExternal(&ExternalEquipmentData{
		ExternalID:        "ext-402",
		SerialNumber:      "SN4402DD",
		Status:            "Affecté",
		AssignedUserEmail: "nobody@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentStatusAvailable, equipment.Status)
	assert.Nil(t, equipment.CurrentUserID)
}

func TestEquipmentService_UpsertFromExternal_MergesStatusAndTypeOnUpdate(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	local := testutils.CreateTestEquipment(t, db, "SN4403DD")
	require.NoError(t, db.Model(local).Update("status", models.EquipmentStatusInRepair).Error)

	result, equipment, err := es.UpsertFromExternal(&ExternalEquipmentData{
		ExternalID:   "ext-403",
		SerialNumber: "SN4403DD",
		Type:         "Téléphone",
		Status:       "Disponible",
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)
	assert.Equal(t, models.EquipmentTypeMobile, equipment.Type)
	assert.Equal(t, models.EquipmentStatusAvailable, equipment.Status)
}

func TestEquipmentService_UpsertFromExternal_MatchesBySerial(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	local := testutils.CreateTestEquipment(t, db, "SN7700CC")

	// Внешняя запись без известного внешнего ID связывается по серийному номеру
	result, equipment, err := es.UpsertFromExternal(&ExternalEquipmentData{
		ExternalID:   "ext-200",
		SerialNumber: "SN7700CC",
		Status:       "Disponible",
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)
	assert.Equal(t, local.ID, equipment.ID)
	require.NotNil(t, equipment.ExternalAssetID)
	assert.Equal(t, "ext-200", *equipment.ExternalAssetID)
}

func TestEquipmentService_UpsertFromExternal_RequiresSerial(t *testing.T) {
	_, es := setupEquipmentServiceTest(t)

	_, _, err := es.UpsertFromExternal(&ExternalEquipmentData{ExternalID: "ext-300"})
	assert.True(t, errs.IsValidation(err))
}

func TestEquipmentService_ListEquipment_Filters(t *testing.T) {
	db, es := setupEquipmentServiceTest(t)
	user := testutils.CreateTestUser(t, db, "user@example.com")

	laptop := testutils.CreateTestEquipment(t, db, "SN1111AA")
	testutils.CreateTestEquipment(t, db, "SN2222BB")
	phone := &models.Equipment{
		SerialNumber: "SN3333CC",
		Type:         models.EquipmentTypeMobile,
		Brand:        "Apple",
		Model:        "iPhone 15",
		Status:       models.EquipmentStatusAvailable,
	}
	require.NoError(t, db.Create(phone).Error)
	require.NoError(t, es.TransitionToAssigned(db, laptop.ID, user.ID))

	items, total, err := es.ListEquipment(EquipmentFilter{Status: models.EquipmentStatusAssigned})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, laptop.ID, items[0].ID)

	_, total, err = es.ListEquipment(EquipmentFilter{Type: models.EquipmentTypeMobile})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// Поиск без учета регистра
	items, total, err = es.ListEquipment(EquipmentFilter{Search: "iphone"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, phone.SerialNumber, items[0].SerialNumber)
}

func TestNormalizeExternalStatus(t *testing.T) {
	assert.Equal(t, models.EquipmentStatusAvailable, normalizeExternalStatus("Disponible"))
	assert.Equal(t, models.EquipmentStatusAssigned, normalizeExternalStatus("Affecté"))
	assert.Equal(t, models.EquipmentStatusInRepair, normalizeExternalStatus("En réparation"))
	assert.Equal(t, models.EquipmentStatusReturned, normalizeExternalStatus("restitué"))
	assert.Equal(t, models.EquipmentStatusLost, normalizeExternalStatus("Perdu"))
	assert.Equal(t, models.EquipmentStatusDestroyed, normalizeExternalStatus("Détruit"))
	// Неизвестный статус приводится к available
	assert.Equal(t, models.EquipmentStatusAvailable, normalizeExternalStatus("bizarre"))
}

func TestExternalStatusFor_RoundTrip(t *testing.T) {
	for _, status := range []string{
		models.EquipmentStatusAvailable,
		models.EquipmentStatusAssigned,
		models.EquipmentStatusInRepair,
		models.EquipmentStatusReturned,
		models.EquipmentStatusLost,
		models.EquipmentStatusDestroyed,
	} {
		assert.Equal(t, status, normalizeExternalStatus(ExternalStatusFor(status)))
	}
}
