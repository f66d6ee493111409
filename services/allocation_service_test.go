package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_parc/errs"
	"backend_parc/models"
	"backend_parc/testutils"
)

// recordingSyncPort фиксирует вызовы выталкивания статусов
type recordingSyncPort struct {
	mu    sync.Mutex
	calls []uint
}

func (p *recordingSyncPort) UpdateStatusOnly(_ context.Context, equipmentID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, equipmentID)
}

func (p *recordingSyncPort) Calls() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.calls...)
}

func setupAllocationServiceTest(t *testing.T) (*gorm.DB, *AllocationService, *recordingSyncPort) {
	db := testutils.SetupTestDB(t)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })

	port := &recordingSyncPort{}
	equipment := NewEquipmentService(db, nil)
	resolver := NewEquipmentResolver(db, nil)
	users := NewUserService(db, nil)
	allocations := NewAllocationService(db, equipment, resolver, users, port, nil)
	return db, allocations, port
}

func TestAllocationService_CreateAllocation(t *testing.T) {
	db, as, port := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	laptop := testutils.CreateTestEquipment(t, db, "SNA001AA")
	phone := testutils.CreateTestEquipment(t, db, "SNA002BB")

	allocation, err := as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserID:      user.ID,
		Items:       []EquipmentRef{{LocalID: &laptop.ID}, {SerialNumber: "SNA002BB"}},
		Accessories: []string{"Sacoche", "Chargeur"},
		CreatedBy:   "it@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.AllocationStatusInProgress, allocation.Status)
	assert.Equal(t, user.Email, allocation.UserEmail)
	assert.Len(t, allocation.Items, 2)

	// Снимок реквизитов в позициях выдачи
	assert.Equal(t, "SNA001AA", allocation.Items[0].SerialNumber)
	assert.Equal(t, laptop.InternalID, allocation.Items[0].InternalID)

	// Стандартное ПО подставляется по умолчанию
	assert.Equal(t, DefaultStandardSoftware, allocation.StandardSoftware)

	// Оборудование переведено в assigned
	var reloaded models.Equipment
	require.NoError(t, db.First(&reloaded, laptop.ID).Error)
	assert.Equal(t, models.EquipmentStatusAssigned, reloaded.Status)

	// Статусы вытолкнуты во внешнюю систему после фиксации
	assert.ElementsMatch(t, []uint{laptop.ID, phone.ID}, port.Calls())
}

func TestAllocationService_CreateAllocation_AllOrNothing(t *testing.T) {
	db, as, port := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	other := testutils.CreateTestUser(t, db, "other@example.com")
	free := testutils.CreateTestEquipment(t, db, "SNB001AA")
	taken := testutils.CreateTestEquipment(t, db, "SNB002BB")

	// Вторая позиция уже выдана другому сотруднику
	require.NoError(t, as.Equipment.TransitionToAssigned(db, taken.ID, other.ID))

	_, err := as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserID:    user.ID,
		Items:     []EquipmentRef{{LocalID: &free.ID}, {LocalID: &taken.ID}},
		CreatedBy: "it@example.com",
	})
	assert.True(t, errs.IsConflict(err))

	// Первая позиция осталась нетронутой: транзакция откатилась целиком
	var reloaded models.Equipment
	require.NoError(t, db.First(&reloaded, free.ID).Error)
	assert.Equal(t, models.EquipmentStatusAvailable, reloaded.Status)
	assert.Nil(t, reloaded.CurrentUserID)

	// И ничего не выталкивалось наружу
	assert.Empty(t, port.Calls())

	var count int64
	db.Model(&models.Allocation{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestAllocationService_CreateAllocation_Validation(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SNC001AA")

	// Без сотрудника
	_, err := as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		Items:     []EquipmentRef{{LocalID: &equipment.ID}},
		CreatedBy: "it@example.com",
	})
	assert.True(t, errs.IsValidation(err))

	// Без ответственного
	_, err = as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserID: user.ID,
		Items:  []EquipmentRef{{LocalID: &equipment.ID}},
	})
	assert.True(t, errs.IsValidation(err))

	// Пустой список оборудования
	_, err = as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserID:    user.ID,
		CreatedBy: "it@example.com",
	})
	assert.True(t, errs.IsValidation(err))

	// Неактивный сотрудник
	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, err = as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserID:    user.ID,
		Items:     []EquipmentRef{{LocalID: &equipment.ID}},
		CreatedBy: "it@example.com",
	})
	assert.True(t, errs.IsValidation(err))
}

func TestAllocationService_CreateAllocation_ByEmail(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SND001AA")

	allocation, err := as.CreateAllocation(context.Background(), &CreateAllocationRequest{
		UserEmail: "Employee@Example.com",
		Items:     []EquipmentRef{{LocalID: &equipment.ID}},
		CreatedBy: "it@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, allocation.UserID)
}

func TestAllocationService_SignAllocation(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	allocation := testutils.CreateTestAllocation(t, db, user, testutils.CreateTestEquipment(t, db, "SNE001AA"))

	signed, err := as.SignAllocation(allocation.ID, &SignAllocationRequest{
		SignerName:     "Test User",
		SignatureImage: "data:image/png;base64,iVBORw0KGgo=",
	})
	require.NoError(t, err)
	assert.True(t, signed.IsSigned())
	assert.NotNil(t, signed.SignedAt)
	// Подпись сотрудника закрывает акт
	assert.Equal(t, models.AllocationStatusCompleted, signed.Status)

	var stored models.Allocation
	require.NoError(t, db.First(&stored, allocation.ID).Error)
	assert.Equal(t, models.AllocationStatusCompleted, stored.Status)

	// Повторная подпись отклоняется
	_, err = as.SignAllocation(allocation.ID, &SignAllocationRequest{
		SignerName:     "Someone Else",
		SignatureImage: "data:image/png;base64,AAAA",
	})
	assert.True(t, errs.IsConflict(err))

	// Подписанный акт неизменяем
	notes := "правка задним числом"
	_, err = as.UpdateAllocation(allocation.ID, &UpdateAllocationRequest{Notes: &notes})
	assert.True(t, errs.IsConflict(err))
}

func TestAllocationService_SignAllocation_RequiresNameAndImage(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	allocation := testutils.CreateTestAllocation(t, db, user, testutils.CreateTestEquipment(t, db, "SNF001AA"))

	_, err := as.SignAllocation(allocation.ID, &SignAllocationRequest{SignerName: "Test User"})
	assert.True(t, errs.IsValidation(err))
}

func TestAllocationService_UpdateAllocation(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	allocation := testutils.CreateTestAllocation(t, db, user, testutils.CreateTestEquipment(t, db, "SNG001AA"))

	notes := "выдан с переходником USB-C"
	updated, err := as.UpdateAllocation(allocation.ID, &UpdateAllocationRequest{
		Accessories: []string{"Adaptateur USB-C"},
		Notes:       &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Adaptateur USB-C"}, updated.Accessories)
	assert.Equal(t, notes, updated.Notes)
}

func TestAllocationService_GetActiveAllocationForEquipment(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "employee@example.com")
	equipment := testutils.CreateTestEquipment(t, db, "SNH001AA")
	allocation := testutils.CreateTestAllocation(t, db, user, equipment)

	found, err := as.GetActiveAllocationForEquipment(equipment.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.ID, found.ID)

	// Завершенная выдача больше не считается активной
	require.NoError(t, as.CompleteAllocation(db, allocation.ID))
	_, err = as.GetActiveAllocationForEquipment(equipment.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestAllocationService_ListAllocations_Search(t *testing.T) {
	db, as, _ := setupAllocationServiceTest(t)
	user := testutils.CreateTestUser(t, db, "jean.dupont@example.com")
	testutils.CreateTestAllocation(t, db, user, testutils.CreateTestEquipment(t, db, "SNI001AA"))

	_, total, err := as.ListAllocations(AllocationFilter{Search: "DUPONT"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = as.ListAllocations(AllocationFilter{Search: "nobody"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}
