package bot

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"snaplink/internal/config"
	"snaplink/internal/domain"
	"snaplink/internal/resolver"
	"snaplink/internal/scraper"
	"snaplink/internal/service"
)

// LinkService is the subset of service.Service the bot calls.
type LinkService interface {
	CreateLink(ctx context.Context, destination, requestedCode string, validityMinutes int, owner domain.Owner) (domain.LinkRecord, error)
	DeleteLink(ctx context.Context, code string) error
	ListLinks(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error)
	GetLinkDetail(ctx context.Context, code string) (domain.LinkRecord, error)
	LinkStats(ctx context.Context, code string, now time.Time) (service.Stats, error)
	SimulateClick(ctx context.Context, code string, now time.Time) (resolver.Outcome, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot       *tgbot.Bot
	cfg       config.Config
	svc       LinkService
	previewer scraper.Previewer
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewHandler creates a new bot handler instance. previewer may be nil.
func NewHandler(cfg config.Config, svc LinkService, previewer scraper.Previewer, logger logrus.FieldLogger) (*Handler, error) {
	h := newHandler(cfg, svc, previewer, logger)

	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b
	h.registerHandlers()

	h.log.Info("Telegram bot handler initialized")
	return h, nil
}

func newHandler(cfg config.Config, svc LinkService, previewer scraper.Previewer, logger logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:       cfg,
		svc:       svc,
		previewer: previewer,
		now:       time.Now,
		log:       logger.WithField("component", "bot_handler"),
	}
}

// registerHandlers sets up the command handlers.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/", tgbot.MatchTypePrefix, h.commandHandler)
	h.log.Info("Registered command handler")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) commandHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userID := update.Message.From.ID
	log := h.log.WithFields(logrus.Fields{
		"user_id": userID,
		"text":    update.Message.Text,
	})
	log.Info("Received command")

	reply := h.handleCommand(ctx, userID, update.Message.Text)
	h.send(ctx, b, update.Message.Chat.ID, reply, log)
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.log.WithField("text", update.Message.Text).Debug("Received unhandled message (default handler)")
	h.send(ctx, b, update.Message.Chat.ID, helpText, h.log)
}

func (h *Handler) send(ctx context.Context, b *tgbot.Bot, chatID int64, text string, log logrus.FieldLogger) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}
