package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"backend_parc/config"
)

// SyncScheduler фоновый планировщик синхронизации: периодический проход по
// журналу отложенных операций и опциональный ночной массовый импорт
type SyncScheduler struct {
	cron   *cron.Cron
	sync   *SyncService
	Logger *log.Logger

	retrySchedule  string
	importSchedule string

	journalMu sync.Mutex
	importMu  sync.Mutex
}

// NewSyncScheduler создает планировщик синхронизации
func NewSyncScheduler(sync *SyncService, cfg *config.Config, logger *log.Logger) *SyncScheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags)
	}
	return &SyncScheduler{
		cron:           cron.New(),
		sync:           sync,
		Logger:         logger,
		retrySchedule:  cfg.Sync.RetrySchedule,
		importSchedule: cfg.Sync.ImportSchedule,
	}
}

// Start регистрирует задачи и запускает планировщик
func (s *SyncScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.retrySchedule, s.runJournalSweep); err != nil {
		return fmt.Errorf("ошибка регистрации прохода по журналу: %w", err)
	}

	if s.importSchedule != "" {
		if _, err := s.cron.AddFunc(s.importSchedule, s.runBulkImport); err != nil {
			return fmt.Errorf("ошибка регистрации массового импорта: %w", err)
		}
	}

	s.cron.Start()
	s.Logger.Printf("Планировщик синхронизации запущен (журнал: %q, импорт: %q)",
		s.retrySchedule, s.importSchedule)
	return nil
}

// Stop останавливает планировщик, дожидаясь завершения текущих задач
func (s *SyncScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.Logger.Println("Планировщик синхронизации остановлен")
}

// runJournalSweep выполняет один проход по журналу отложенных операций.
// Затянувшийся предыдущий проход не дублируется: очередной запуск пропускается.
func (s *SyncScheduler) runJournalSweep() {
	if !s.journalMu.TryLock() {
		s.Logger.Println("⚠️ Предыдущий проход по журналу еще выполняется, запуск пропущен")
		return
	}
	defer s.journalMu.Unlock()

	if err := s.sync.ProcessPendingJournal(context.Background()); err != nil {
		s.Logger.Printf("Ошибка прохода по журналу синхронизации: %v", err)
	}
}

// runBulkImport выполняет плановый массовый импорт из внешней системы.
// Параллельные прогоны не допускаются: пока идет предыдущий, очередной
// запуск пропускается.
func (s *SyncScheduler) runBulkImport() {
	if !s.importMu.TryLock() {
		s.Logger.Println("⚠️ Предыдущий массовый импорт еще выполняется, запуск пропущен")
		return
	}
	defer s.importMu.Unlock()

	report, err := s.sync.SyncAllFromExternal(context.Background())
	if err != nil {
		s.Logger.Printf("Ошибка планового массового импорта: %v", err)
		return
	}
	s.Logger.Printf("Плановый импорт %s: создано %d, обновлено %d, пропущено %d, ошибок %d",
		report.BatchID, report.Created, report.Updated, report.Skipped, len(report.Errors))
}
