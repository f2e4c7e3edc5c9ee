package alert

import (
	"context"
	"errors"
	"fmt"

	"rezerva/internal/config"
	"rezerva/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the subset of the Telegram bot API the alerter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter pushes a message to the managers chat when a delivery
// job parks as failed. Everything here is best-effort: an alerting error
// is logged and swallowed, never escalated to the pipeline.
type TelegramAlerter struct {
	bot    Sender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramAlerter(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram alerter: bot token is required")
	}
	if cfg.ManagersChatID == 0 {
		return nil, errors.New("telegram alerter: managers chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram alerter: init bot: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatID: cfg.ManagersChatID, logger: logger}, nil
}

// NewTelegramAlerterWithSender wires an existing sender, used in tests.
func NewTelegramAlerterWithSender(sender Sender, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	return &TelegramAlerter{bot: sender, chatID: chatID, logger: logger}
}

// JobParked notifies operators that a job exhausted its retries and needs
// manual remediation.
func (a *TelegramAlerter) JobParked(ctx context.Context, job *models.DeliveryJob, reason string) {
	text := fmt.Sprintf(
		"Delivery job #%d parked after %d attempts.\nReservation: %s\nTransaction: %s\nLast error: %s",
		job.ID, job.AttemptCount, job.ReservationNumber, job.TransactionID, reason,
	)

	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Error().Err(err).Int64("job_id", job.ID).Msg("telegram alert failed")
	}
}
