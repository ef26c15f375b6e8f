// Package telegram connects the router to the Telegram Bot API through
// long polling or a webhook.
package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/opsbot/internal/bot"
	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/frame"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 60

// SecretHeader carries the webhook secret on every update Telegram pushes.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// API is the subset of *tgbotapi.BotAPI the transport uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Dispatcher handles one inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bot.Message)
}

// Transport implements bot.Sender and feeds updates to a Dispatcher.
type Transport struct {
	api    API
	logger *slog.Logger
	lanes  *lanes

	mu         sync.RWMutex
	dispatcher Dispatcher
	baseCtx    context.Context
	secret     string
}

// Connect authenticates with the Bot API and returns the client and the
// bot's username.
func Connect(token string) (*tgbotapi.BotAPI, string, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, "", fmt.Errorf("connect to telegram: %w", err)
	}
	return api, api.Self.UserName, nil
}

// New creates a transport over api.
func New(api API, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{api: api, logger: logger, baseCtx: context.Background()}
	t.lanes = newLanes(t.dispatch)
	return t
}

// Attach sets the dispatcher that receives inbound messages.
func (t *Transport) Attach(d Dispatcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatcher = d
}

func (t *Transport) dispatch(ctx context.Context, msg bot.Message) {
	t.mu.RLock()
	d := t.dispatcher
	t.mu.RUnlock()
	if d == nil {
		t.logger.Warn("Dropping message, no dispatcher attached", "chat_id", msg.ChatID)
		return
	}
	d.Dispatch(ctx, msg)
}

// Send implements bot.Sender.
func (t *Transport) Send(ctx context.Context, chatID int64, f frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, f.Text)
	msg.ParseMode = f.ParseMode
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// RegisterCommands publishes the command menu shown by Telegram clients.
func (t *Transport) RegisterCommands(infos []bot.CommandInfo) error {
	cmds := make([]tgbotapi.BotCommand, 0, len(infos))
	for _, info := range infos {
		cmds = append(cmds, tgbotapi.BotCommand{Command: info.Name, Description: info.Description})
	}
	if _, err := t.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// Poll receives updates by long polling until ctx is done, then waits for
// in-flight messages.
func (t *Transport) Poll(ctx context.Context) error {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(cfg)
	t.logger.Info("Telegram polling started")

	defer t.lanes.wait()
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info("Telegram polling stopped", "reason", ctx.Err())
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.accept(ctx, update)
		}
	}
}

// ServeWebhook registers url and secret with Telegram and keeps the webhook
// handler live until ctx is done. Telegram echoes secret in SecretHeader.
func (t *Transport) ServeWebhook(ctx context.Context, url, secret string) error {
	if secret == "" {
		return fmt.Errorf("set webhook: empty secret")
	}
	params := tgbotapi.Params{"url": url, "secret_token": secret}
	resp, err := t.api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if resp != nil && !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	t.mu.Lock()
	t.baseCtx = ctx
	t.secret = secret
	t.mu.Unlock()
	t.logger.Info("Telegram webhook registered", "url", url)

	<-ctx.Done()
	t.lanes.wait()
	return nil
}

// WebhookHandler accepts updates pushed by Telegram. Until ServeWebhook has
// registered a secret every request is rejected.
func (t *Transport) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.mu.RLock()
		ctx, secret := t.baseCtx, t.secret
		t.mu.RUnlock()

		presented := r.Header.Get(SecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			t.logger.Warn("Rejected webhook request without valid secret", "ip", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		update, err := t.api.HandleUpdate(r)
		if err != nil {
			t.logger.Warn("Rejected webhook update", "error", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		t.accept(ctx, *update)
		w.WriteHeader(http.StatusOK)
	})
}

func (t *Transport) accept(ctx context.Context, update tgbotapi.Update) {
	msg, ok := toMessage(update)
	if !ok {
		return
	}
	t.lanes.submit(ctx, msg)
}

// toMessage extracts the text message of an update.
func toMessage(update tgbotapi.Update) (bot.Message, bool) {
	m := update.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return bot.Message{}, false
	}
	msg := bot.Message{ChatID: m.Chat.ID, Text: m.Text}
	if m.From != nil {
		msg.User = domain.User{
			ID:        m.From.ID,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
			Username:  m.From.UserName,
		}
	} else {
		msg.User = domain.User{ID: m.Chat.ID}
	}
	return msg, true
}
