package services

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"backend_parc/config"
	"backend_parc/models"
)

// NotificationService отправляет служебные оповещения в Telegram.
// Без настроенного бота все вызовы тихо игнорируются: оповещения
// вспомогательны и не должны ломать основные операции.
type NotificationService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	Logger *log.Logger
}

// NewNotificationService создает сервис оповещений.
// Пустой токен не является ошибкой: сервис работает вхолостую.
func NewNotificationService(cfg *config.Config, logger *log.Logger) *NotificationService {
	if logger == nil {
		logger = log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags)
	}

	svc := &NotificationService{chatID: cfg.Telegram.ChatID, Logger: logger}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == 0 {
		logger.Println("Telegram не настроен, оповещения отключены")
		return svc
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Printf("Ошибка создания Telegram бота, оповещения отключены: %v", err)
		return svc
	}
	bot.Debug = false
	svc.bot = bot

	logger.Printf("✅ Telegram бот авторизован: %s", bot.Self.UserName)
	return svc
}

// send отправляет HTML-сообщение в служебный чат
func (s *NotificationService) send(message string) {
	if s.bot == nil {
		return
	}

	msg := tgbotapi.NewMessage(s.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := s.bot.Send(msg); err != nil {
		s.Logger.Printf("Ошибка отправки оповещения: %v", err)
	}
}

// NotifySyncFailure сообщает об исчерпании повторов записи журнала синхронизации
func (s *NotificationService) NotifySyncFailure(entry *models.SyncJournalEntry) {
	message := fmt.Sprintf(
		"⚠️ <b>Синхронизация не удалась</b>\n"+
			"Операция: %s\n"+
			"Оборудование: %s (s/n %s)\n"+
			"Попыток: %d\n"+
			"Ошибка: %s",
		entry.Operation, entry.ExternalID, entry.SerialNumber,
		entry.RetryCount, entry.ErrorMessage)
	s.send(message)
}

// NotifyBulkSyncCompleted сообщает итоги массового импорта из внешней системы
func (s *NotificationService) NotifyBulkSyncCompleted(report *BulkSyncReport) {
	var status string
	if len(report.Errors) == 0 {
		status = "✅"
	} else {
		status = "⚠️"
	}

	message := fmt.Sprintf(
		"%s <b>Массовый импорт завершен</b>\n"+
			"Создано: %d\n"+
			"Обновлено: %d\n"+
			"Пропущено: %d\n"+
			"Ошибок: %d",
		status, report.Created, report.Updated, report.Skipped, len(report.Errors))
	s.send(message)
}
