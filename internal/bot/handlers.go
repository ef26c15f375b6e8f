package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/frame"
)

var (
	// errUsage marks a command invoked with the wrong arguments.
	errUsage = errors.New("usage")
	// errRemote marks a failed remote command.
	errRemote = errors.New("remote execution fault")
)

// reply is one logical answer; the router frames it.
type reply struct {
	text     string
	envelope frame.Envelope
	title    string
}

type handlerFunc func(ctx context.Context, r *Router, msg Message, args []string) ([]reply, error)

// command is a single-shot handler. Remote commands count against the
// per-user rate limit.
type command struct {
	handle      handlerFunc
	remote      bool
	description string
}

var commands = map[string]command{
	"start":             {handle: handleStart, description: "Приветствие"},
	"get_release":       {handle: plainCommand("release"), remote: true, description: "Релиз ядра"},
	"get_uname":         {handle: handleUname, remote: true, description: "Процессор, имя хоста и версия ядра"},
	"get_uptime":        {handle: handleUptime, remote: true, description: "Время работы"},
	"get_df":            {handle: codeCommand("df", "Состояние файловой системы:"), remote: true, description: "Состояние файловой системы"},
	"get_free":          {handle: codeCommand("free", "Состояние оперативной памяти (в мегабайтах):"), remote: true, description: "Состояние оперативной памяти"},
	"get_mpstat":        {handle: codeCommand("mpstat", "Производительность системы:"), remote: true, description: "Производительность системы"},
	"get_w":             {handle: codeCommand("who", "Пользователи:"), remote: true, description: "Работающие пользователи"},
	"get_auths":         {handle: handleAuths, remote: true, description: "Последние 10 входов"},
	"get_critical":      {handle: plainCommand("critical"), remote: true, description: "Последние 5 критических событий"},
	"get_ps":            {handle: codeCommand("ps", "Запущенные процессы:"), remote: true, description: "Запущенные процессы"},
	"get_ss":            {handle: codeCommand("ss", "Используемые порты:"), remote: true, description: "Используемые порты"},
	"get_apt_list":      {handle: handleAptList, remote: true, description: "Установленные пакеты или сведения о пакете"},
	"get_services":      {handle: handleServices, remote: true, description: "Запущенные сервисы"},
	"get_repl_logs":     {handle: handleReplLogs, remote: true, description: "Логи репликации"},
	"get_emails":        {handle: listRecords(domain.KindEmail), description: "Сохранённые email-адреса"},
	"get_phone_numbers": {handle: listRecords(domain.KindPhone), description: "Сохранённые номера телефонов"},
}

func handleStart(_ context.Context, _ *Router, msg Message, _ []string) ([]reply, error) {
	return []reply{{text: "Привет, " + msg.User.FullName() + "!"}}, nil
}

// run executes a catalog command and turns a fault into an error.
func (r *Router) run(ctx context.Context, name string, args ...string) (string, error) {
	res := r.executor.Execute(ctx, name, args...)
	if res.Fault != nil {
		return "", fmt.Errorf("%w: %w", errRemote, res.Fault)
	}
	return res.Text, nil
}

func plainCommand(name string) handlerFunc {
	return func(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
		out, err := r.run(ctx, name)
		if err != nil {
			return nil, err
		}
		return []reply{{text: out}}, nil
	}
}

func codeCommand(name, title string) handlerFunc {
	return func(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
		out, err := r.run(ctx, name)
		if err != nil {
			return nil, err
		}
		return []reply{{text: out, envelope: frame.Code, title: title}}, nil
	}
}

func handleUname(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
	parts := []struct{ name, label string }{
		{"processor", "Тип процессора: "},
		{"hostname", "Имя хоста: "},
		{"kernel", "Версия ядра: "},
	}
	var b strings.Builder
	for _, p := range parts {
		out, err := r.run(ctx, p.name)
		if err != nil {
			return nil, err
		}
		b.WriteString(p.label + out)
	}
	return []reply{{text: b.String()}}, nil
}

func handleUptime(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
	out, err := r.run(ctx, "uptime")
	if err != nil {
		return nil, err
	}
	return []reply{{text: "Время работы: " + strings.TrimPrefix(out, "up ")}}, nil
}

const maxAuths = 10

func handleAuths(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
	out, err := r.run(ctx, "last")
	if err != nil {
		return nil, err
	}
	var logins []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "reboot") {
			continue
		}
		logins = append(logins, line)
		if len(logins) == maxAuths {
			break
		}
	}
	return []reply{{
		text:     strings.Join(logins, "\n") + "\n",
		envelope: frame.HTML,
		title:    "Последние 10 входов в систему:",
	}}, nil
}

func handleAptList(ctx context.Context, r *Router, _ Message, args []string) ([]reply, error) {
	switch len(args) {
	case 0:
		out, err := r.run(ctx, "packages")
		if err != nil {
			return nil, err
		}
		return []reply{{text: out}}, nil
	case 1:
		out, err := r.run(ctx, "packages", args[0])
		if err != nil {
			return nil, err
		}
		return []reply{{text: out}}, nil
	default:
		return nil, fmt.Errorf("%w: /get_apt_list [package]", errUsage)
	}
}

// serviceLegend is the number of trailing lines systemctl prints after the
// unit table, counting the final empty line.
const serviceLegend = 6

func handleServices(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
	out, err := r.run(ctx, "services")
	if err != nil {
		return nil, err
	}
	lines := strings.Split(out, "\n")
	if len(lines) > serviceLegend {
		lines = lines[:len(lines)-serviceLegend]
	} else {
		lines = nil
	}
	text := ""
	if len(lines) > 0 {
		text = strings.Join(lines, "\n") + "\n"
	}
	return []reply{{text: text, envelope: frame.Code, title: "Список сервисов:"}}, nil
}

const replUser = "db-repl-user"

func handleReplLogs(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
	out, err := r.run(ctx, "repl_logs")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, replUser) {
			b.WriteString(line + "\n")
		}
	}
	return []reply{{text: b.String(), envelope: frame.Code}}, nil
}

func listRecords(kind domain.Kind) handlerFunc {
	return func(ctx context.Context, r *Router, _ Message, _ []string) ([]reply, error) {
		records, err := r.records.SelectAll(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", kind, err)
		}
		lines := make([]string, 0, len(records))
		for _, rec := range records {
			lines = append(lines, fmt.Sprintf("%d. %s", rec.ID, rec.Value))
		}
		return []reply{{text: strings.Join(lines, "\n")}}, nil
	}
}
