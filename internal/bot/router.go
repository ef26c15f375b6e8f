package bot

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/opsbot/internal/conversation"
	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/frame"
	"github.com/ashureev/opsbot/internal/remote"
	"github.com/google/uuid"
)

const (
	remoteFaultNotice = "Не удалось выполнить команду на удалённом хосте"
	storeFaultNotice  = "Не удалось получить данные из базы данных"
	rateLimitNotice   = "Слишком много запросов, попробуйте позже"
	emptyNotice       = "Нет данных"
)

// Executor runs catalog commands on the remote host.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) remote.Result
}

// RecordLister reads persisted records.
type RecordLister interface {
	SelectAll(ctx context.Context, kind domain.Kind) ([]domain.Record, error)
}

// Options configures a Router.
type Options struct {
	// BotName filters "/cmd@name" commands addressed to other bots.
	BotName string
	// AllowedUserIDs restricts the bot to these users when non-empty.
	AllowedUserIDs []int64
	MaxLen         int
	FrameDelay     time.Duration
	Limiter        *RateLimiter
	Logger         *slog.Logger
}

// Router dispatches messages to single-shot commands and conversation
// flows. It is safe for concurrent use; ordering within a chat is the
// transport's job.
type Router struct {
	executor Executor
	machine  *conversation.Machine
	records  RecordLister
	delivery *Delivery
	limiter  *RateLimiter
	allowed  map[int64]struct{}
	botName  string
	maxLen   int
	logger   *slog.Logger
}

// NewRouter wires the router's collaborators.
func NewRouter(executor Executor, machine *conversation.Machine, records RecordLister, sender Sender, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = frame.MaxLen
	}
	var allowed map[int64]struct{}
	if len(opts.AllowedUserIDs) > 0 {
		allowed = make(map[int64]struct{}, len(opts.AllowedUserIDs))
		for _, id := range opts.AllowedUserIDs {
			allowed[id] = struct{}{}
		}
	}
	return &Router{
		executor: executor,
		machine:  machine,
		records:  records,
		delivery: NewDelivery(sender, opts.FrameDelay),
		limiter:  opts.Limiter,
		allowed:  allowed,
		botName:  opts.BotName,
		maxLen:   maxLen,
		logger:   logger,
	}
}

// SetBotName sets the name used to filter addressed commands.
func (r *Router) SetBotName(name string) {
	r.botName = name
}

// Dispatch handles one inbound message, replying through the sender.
func (r *Router) Dispatch(ctx context.Context, msg Message) {
	log := r.logger.With("op_id", uuid.NewString(), "user_id", msg.User.ID, "chat_id", msg.ChatID)

	if r.allowed != nil && !msg.Trusted {
		if _, ok := r.allowed[msg.User.ID]; !ok {
			log.Warn("Ignoring message from user not on the allowlist")
			return
		}
	}

	name, args, isCommand := ParseCommand(msg.Text, r.botName)
	if !isCommand {
		replies, ok := r.machine.Handle(ctx, msg.User.ID, msg.Text)
		if !ok {
			log.Debug("Ignoring text outside a conversation")
			return
		}
		r.sendTexts(ctx, log, msg.ChatID, replies)
		return
	}

	if conversation.IsEntry(name) {
		prompt, err := r.machine.Enter(msg.User.ID, domain.Flow(name))
		if err != nil {
			log.Error("Failed to start conversation", "op", name, "error", err)
			return
		}
		r.sendTexts(ctx, log, msg.ChatID, []string{prompt})
		return
	}

	cmd, ok := commands[name]
	if !ok {
		log.Debug("Ignoring unknown command", "command", name)
		return
	}
	if cmd.remote && r.limiter != nil && !r.limiter.Allow(msg.User.ID) {
		log.Warn("Rate limit exceeded", "op", name)
		r.sendTexts(ctx, log, msg.ChatID, []string{rateLimitNotice})
		return
	}

	start := time.Now()
	log.Info("Command started", "op", name)
	replies, err := cmd.handle(ctx, r, msg, args)
	if err != nil {
		log.Error("Command failed", "op", name, "outcome", "fault", "duration", time.Since(start), "error", err)
		r.sendTexts(ctx, log, msg.ChatID, []string{notice(err)})
		return
	}
	for _, rep := range replies {
		r.send(ctx, log, msg.ChatID, rep)
	}
	log.Info("Command finished", "op", name, "outcome", "ok", "duration", time.Since(start))
}

func notice(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "Использование" + strings.TrimPrefix(err.Error(), errUsage.Error())
	case errors.Is(err, errRemote):
		return remoteFaultNotice
	default:
		return storeFaultNotice
	}
}

func (r *Router) sendTexts(ctx context.Context, log *slog.Logger, chatID int64, texts []string) {
	for _, text := range texts {
		r.send(ctx, log, chatID, reply{text: text})
	}
}

func (r *Router) send(ctx context.Context, log *slog.Logger, chatID int64, rep reply) {
	text := rep.text
	if strings.TrimSpace(text) == "" && rep.title == "" {
		text = emptyNotice
	}
	frames := frame.Split(text, frame.Options{Envelope: rep.envelope, Title: rep.title, MaxLen: r.maxLen})
	if err := r.delivery.Deliver(ctx, chatID, frames); err != nil {
		log.Error("Failed to deliver reply", "frames", len(frames), "error", err)
	}
}

// CommandInfo describes a command for the chat client's menu.
type CommandInfo struct {
	Name        string
	Description string
}

// Commands lists the single-shot commands and conversation entry points.
func Commands() []CommandInfo {
	infos := []CommandInfo{
		{Name: string(domain.FlowFindPhone), Description: "Поиск телефонных номеров в тексте"},
		{Name: string(domain.FlowFindEmail), Description: "Поиск email-адресов в тексте"},
		{Name: string(domain.FlowVerifyPassword), Description: "Проверка сложности пароля"},
	}
	for name, cmd := range commands {
		infos = append(infos, CommandInfo{Name: name, Description: cmd.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
