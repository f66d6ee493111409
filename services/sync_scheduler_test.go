package services

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_parc/models"
	"backend_parc/testutils"
)

func TestSyncScheduler_BulkImportSkipsWhileRunning(t *testing.T) {
	db := testutils.SetupTestDB(t)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"values":[],"startAt":0,"isLast":true}`))
	}))
	defer server.Close()

	scheduler := &SyncScheduler{
		sync:   newTestSyncService(t, db, server),
		Logger: log.New(io.Discard, "", 0),
	}

	// Пока предыдущий импорт держит блокировку, очередной запуск пропускается
	scheduler.importMu.Lock()
	scheduler.runBulkImport()
	assert.EqualValues(t, 0, calls.Load())

	scheduler.importMu.Unlock()
	scheduler.runBulkImport()
	assert.EqualValues(t, 1, calls.Load())
}

func TestSyncScheduler_JournalSweepSkipsWhileRunning(t *testing.T) {
	db := testutils.SetupTestDB(t)
	t.Cleanup(func() { testutils.CleanupTestDB(db) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	service := newTestSyncService(t, db, server)
	scheduler := &SyncScheduler{
		sync:   service,
		Logger: log.New(io.Discard, "", 0),
	}

	equipment := testutils.CreateTestEquipment(t, db, "SCHSN01A")
	linkEquipment(t, db, equipment, "ext-sch-1")
	entry := models.SyncJournalEntry{
		Operation:   models.SyncOperationStatusOnly,
		EquipmentID: equipment.ID,
		Retryable:   true,
		MaxRetries:  3,
		Status:      models.SyncEntryStatusPending,
	}
	require.NoError(t, db.Create(&entry).Error)

	scheduler.journalMu.Lock()
	scheduler.runJournalSweep()

	var untouched models.SyncJournalEntry
	require.NoError(t, db.First(&untouched, entry.ID).Error)
	assert.Equal(t, models.SyncEntryStatusPending, untouched.Status)
	assert.Equal(t, 0, untouched.RetryCount)

	scheduler.journalMu.Unlock()
	scheduler.runJournalSweep()

	var resolved models.SyncJournalEntry
	require.NoError(t, db.First(&resolved, entry.ID).Error)
	assert.Equal(t, models.SyncEntryStatusResolved, resolved.Status)
}
