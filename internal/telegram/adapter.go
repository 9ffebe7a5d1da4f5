package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/sentinelops/internal/types"
)

const maxTelegramMessage = 4096

// pollTimeout is the getUpdates long-poll wait in seconds.
const pollTimeout = 30

// DefaultTimeout bounds one Bot API request when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// TargetPrefix is the delivery target prefix routed to Telegram, as in
// "telegram:<chat_id>".
const TargetPrefix = "telegram:"

// ErrBadTarget is returned for a target that carries no chat id.
var ErrBadTarget = errors.New("invalid telegram target")

// Sender is the subset of the bot API the adapter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter sends notices to Telegram chats and answers a few read-only
// commands about open anomalies.
type Adapter struct {
	bot       *tgbotapi.BotAPI
	sender    Sender
	anomalies types.AnomalyStore
	logger    *slog.Logger
}

// Options configures an adapter backed by the Bot API.
type Options struct {
	// Endpoint is the Bot API URL format. Empty means tgbotapi.APIEndpoint.
	Endpoint string
	// Timeout bounds each request except long polling.
	Timeout time.Duration
	Logger  *slog.Logger
}

// New creates a Telegram adapter. It calls getMe once, bounded by
// opts.Timeout. anomalies may be nil when commands are not served.
func New(token string, anomalies types.AnomalyStore, opts Options) (*Adapter, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, &http.Client{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := NewWithSender(bot, anomalies, opts.Logger)
	a.bot = bot
	return a, nil
}

// NewWithSender creates an adapter around an existing sender.
func NewWithSender(sender Sender, anomalies types.AnomalyStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{sender: sender, anomalies: anomalies, logger: logger}
}

// Notify sends text to chatID, split into Telegram-sized parts. It returns
// the sent message ids joined by commas.
func (a *Adapter) Notify(ctx context.Context, chatID int64, text string) (string, error) {
	var ids []string
	for _, part := range splitMessage(text) {
		if err := ctx.Err(); err != nil {
			return strings.Join(ids, ","), err
		}
		sent, err := a.sendContext(ctx, chatID, part)
		if err != nil {
			return strings.Join(ids, ","), fmt.Errorf("telegram send: %w", err)
		}
		ids = append(ids, strconv.Itoa(sent.MessageID))
	}
	return strings.Join(ids, ","), nil
}

// Handler returns a delivery handler for "telegram:<chat_id>" targets.
func (a *Adapter) Handler() func(ctx context.Context, target, message string) (string, error) {
	return func(ctx context.Context, target, message string) (string, error) {
		chatID, err := ParseTarget(target)
		if err != nil {
			return "", err
		}
		return a.Notify(ctx, chatID, message)
	}
}

// ParseTarget extracts the chat id from "telegram:<chat_id>".
func ParseTarget(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, TargetPrefix)
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadTarget, target)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTarget, target)
	}
	return id, nil
}

// Start begins long-polling for Telegram commands. It returns when ctx is
// cancelled. Only adapters built with New can poll.
func (a *Adapter) Start(ctx context.Context) {
	if a.bot == nil {
		return
	}
	// Polling gets its own client: getUpdates holds the request open for
	// pollTimeout seconds, longer than a send may take.
	poller := *a.bot
	poller.Client = &http.Client{Timeout: (pollTimeout + 10) * time.Second}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := poller.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			a.handleCommand(ctx, update.Message.Chat.ID, update.Message.Command())
		case <-ctx.Done():
			poller.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleCommand(ctx context.Context, chatID int64, command string) {
	switch command {
	case "start":
		a.reply(chatID, fmt.Sprintf("SentinelOps notices for this chat use target %s%d.", TargetPrefix, chatID))

	case "status", "open":
		if a.anomalies == nil {
			a.reply(chatID, "Anomaly queries are not enabled.")
			return
		}
		a.reply(chatID, a.openSummary(ctx, command == "open"))

	default:
		a.reply(chatID, "Unknown command. Available: /start, /status, /open")
	}
}

func (a *Adapter) openSummary(ctx context.Context, list bool) string {
	open, err := a.anomalies.List(ctx, types.AnomalyQuery{
		OnlyOpen: true,
		Sort:     types.SortSeverityDesc,
		Limit:    200,
	})
	if err != nil {
		a.logger.Error("telegram status query failed", "error", err)
		return "Error fetching status."
	}
	if len(open) == 0 {
		return "No open anomalies."
	}
	lines := []string{fmt.Sprintf("Open anomalies: %d", len(open))}
	if !list {
		return lines[0]
	}
	for i, an := range open {
		if i == 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("#%d %s [%s] %s", an.ID, an.RuleCode, an.Severity, an.Title))
	}
	return strings.Join(lines, "\n")
}

func (a *Adapter) reply(chatID int64, text string) {
	if _, err := a.Notify(context.Background(), chatID, text); err != nil {
		a.logger.Error("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

// sendContext returns when the send finishes or ctx is done, whichever is
// first. The bot API takes no context, so an abandoned send runs on until
// the client timeout.
func (a *Adapter) sendContext(ctx context.Context, chatID int64, text string) (tgbotapi.Message, error) {
	type result struct {
		msg tgbotapi.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := a.send(ctx, chatID, text)
		done <- result{msg, err}
	}()
	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	}
}

// send posts one part as Markdown, retrying as plain text when Telegram
// rejects the markup.
func (a *Adapter) send(ctx context.Context, chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := a.sender.Send(msg)
	if err == nil || !isMarkupError(err) || ctx.Err() != nil {
		return sent, err
	}
	a.logger.Debug("markdown send failed, retrying plain", "chat_id", chatID, "error", err)
	msg.ParseMode = ""
	return a.sender.Send(msg)
}

// isMarkupError reports whether Telegram answered 400, which is how it
// rejects malformed Markdown. Transport errors are not retried.
func isMarkupError(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}

// splitMessage cuts text into parts of at most maxTelegramMessage runes.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		end := maxTelegramMessage
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}
