package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/opsbot/internal/conversation"
	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/frame"
	"github.com/ashureev/opsbot/internal/remote"
	"github.com/ashureev/opsbot/internal/store"
	"github.com/stretchr/testify/require"
)

// scriptedSession answers remote commands from a table. Entries in fail
// return an error the given number of times before succeeding.
type scriptedSession struct {
	mu     sync.Mutex
	output map[string]string
	fail   map[string]int
	calls  []string
}

func (s *scriptedSession) Run(_ context.Context, command string, stdout, _ io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, command)
	if s.fail[command] > 0 {
		s.fail[command]--
		return errors.New("connection reset by peer")
	}
	io.WriteString(stdout, s.output[command])
	return nil
}

func (s *scriptedSession) Ping(context.Context) error { return nil }
func (s *scriptedSession) Close() error               { return nil }

type sentFrame struct {
	chatID int64
	frame  frame.Frame
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

func (s *recordingSender) Send(_ context.Context, chatID int64, f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentFrame{chatID: chatID, frame: f})
	return nil
}

// take returns and clears the texts sent so far.
func (s *recordingSender) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.sent))
	for _, f := range s.sent {
		texts = append(texts, f.frame.Text)
	}
	s.sent = nil
	return texts
}

func (s *recordingSender) frames() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Frame, 0, len(s.sent))
	for _, f := range s.sent {
		out = append(out, f.frame)
	}
	s.sent = nil
	return out
}

type harness struct {
	router  *Router
	sender  *recordingSender
	session *scriptedSession
	store   *store.SQLStore
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	session := &scriptedSession{output: map[string]string{}, fail: map[string]int{}}
	executor := remote.NewExecutor(session, remote.DefaultCatalog("/var/log/pg.log"), remote.Options{})
	machine := conversation.NewMachine(conversation.NewStore(nil), db, nil)
	sender := &recordingSender{}

	return &harness{
		router:  NewRouter(executor, machine, db, sender, opts),
		sender:  sender,
		session: session,
		store:   db,
	}
}

func (h *harness) say(userID int64, text string) []string {
	h.router.Dispatch(context.Background(), Message{
		ChatID: userID,
		User:   domain.User{ID: userID, FirstName: "Иван", LastName: "Петров"},
		Text:   text,
	})
	return h.sender.take()
}

func TestRouter_FindEmailConfirmedThenListed(t *testing.T) {
	h := newHarness(t, Options{})

	require.Equal(t, []string{"Введите текст для поиска email-адресов: "}, h.say(1, "/find_email"))
	require.Equal(t, []string{"1. a@b.com\n2. c@d.com\n", "Сохранить? Да/Нет"}, h.say(1, "a@b.com and c@d.com"))
	require.Equal(t, []string{"Email адреса добавлены в базу данных"}, h.say(1, "Да"))
	require.Equal(t, []string{"1. a@b.com\n2. c@d.com"}, h.say(1, "/get_emails"))
}

func TestRouter_FindEmailDeclined(t *testing.T) {
	h := newHarness(t, Options{})

	h.say(1, "/find_email")
	h.say(1, "a@b.com and c@d.com")
	require.Empty(t, h.say(1, "Нет"))
	require.Equal(t, []string{emptyNotice}, h.say(1, "/get_emails"))
}

func TestRouter_InterleavedUsersKeepOwnNumbers(t *testing.T) {
	h := newHarness(t, Options{})

	h.say(1, "/find_phone_number")
	h.say(2, "/find_phone_number")
	require.Equal(t, "1. 89991112233\n", h.say(1, "мой номер 8 999 111 22 33")[0])
	require.Equal(t, "1. +79994445566\n", h.say(2, "а мой +7 (999) 444-55-66")[0])
	require.Equal(t, []string{"Телефонные номера добавлены в базу данных"}, h.say(2, "Да"))
	require.Empty(t, h.say(1, "нет, не надо"))

	records, err := h.store.SelectAll(context.Background(), domain.KindPhone)
	require.NoError(t, err)
	require.Equal(t, []domain.Record{{ID: 1, Value: "+79994445566"}}, records)
}

func TestRouter_ConcurrentUsers(t *testing.T) {
	h := newHarness(t, Options{})
	const users = 8

	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := func(text string) {
				h.router.Dispatch(context.Background(), Message{ChatID: u, User: domain.User{ID: u}, Text: text})
			}
			msg("/find_phone_number")
			msg(fmt.Sprintf("номер 8999555%04d", u))
			msg("Да")
		}()
	}
	wg.Wait()

	records, err := h.store.SelectAll(context.Background(), domain.KindPhone)
	require.NoError(t, err)
	require.Len(t, records, users)
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.Value] = true
	}
	for u := 1; u <= users; u++ {
		require.True(t, seen[fmt.Sprintf("8999555%04d", u)], "user %d number missing", u)
	}
}

func TestRouter_RemoteFaultThenRecovery(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["uname -r"] = "6.1.0-18-amd64\n"
	h.session.fail["uname -r"] = 1

	require.Equal(t, []string{remoteFaultNotice}, h.say(1, "/get_release"))
	require.Equal(t, []string{"6.1.0-18-amd64\n"}, h.say(1, "/get_release"))
	require.Equal(t, []string{"uname -r", "uname -r"}, h.session.calls)
}

func TestRouter_Uname(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["uname -p"] = "x86_64\n"
	h.session.output["uname -n"] = "db-primary\n"
	h.session.output["uname -v"] = "#1 SMP Debian\n"

	require.Equal(t,
		[]string{"Тип процессора: x86_64\nИмя хоста: db-primary\nВерсия ядра: #1 SMP Debian\n"},
		h.say(1, "/get_uname"))
}

func TestRouter_Uptime(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["uptime -p"] = "up 3 days, 4 hours\n"
	require.Equal(t, []string{"Время работы: 3 days, 4 hours\n"}, h.say(1, "/get_uptime"))
}

func TestRouter_CodeEnvelope(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["free -m"] = "Mem: 1024 512\n"

	h.router.Dispatch(context.Background(), Message{ChatID: 9, User: domain.User{ID: 9}, Text: "/get_free"})
	frames := h.sender.frames()
	require.Len(t, frames, 1)
	require.Equal(t, "MarkdownV2", frames[0].ParseMode)
	require.Equal(t, "*Состояние оперативной памяти \\(в мегабайтах\\):*\n```\nMem: 1024 512\n```", frames[0].Text)
}

func TestRouter_AuthsSkipsRebootsAndCaps(t *testing.T) {
	h := newHarness(t, Options{})
	var b strings.Builder
	for i := 0; i < 15; i++ {
		if i%3 == 0 {
			b.WriteString("reboot   system boot  6.1.0\n")
		}
		fmt.Fprintf(&b, "ops pts/%d 10.0.0.%d\n", i, i)
	}
	h.session.output["last"] = b.String()

	h.router.Dispatch(context.Background(), Message{ChatID: 1, User: domain.User{ID: 1}, Text: "/get_auths"})
	frames := h.sender.frames()
	require.Len(t, frames, 1)
	require.Equal(t, "HTML", frames[0].ParseMode)
	require.NotContains(t, frames[0].Text, "reboot")
	require.Contains(t, frames[0].Text, "<b>Последние 10 входов в систему:</b>")
	require.Contains(t, frames[0].Text, "ops pts/9 10.0.0.9")
	require.NotContains(t, frames[0].Text, "pts/10")
}

func TestRouter_ServicesDropLegend(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["systemctl list-units --type=service"] = strings.Join([]string{
		"UNIT LOAD ACTIVE SUB DESCRIPTION",
		"ssh.service loaded active running OpenSSH",
		"",
		"LOAD   = Reflects whether the unit definition was properly loaded.",
		"ACTIVE = The high-level unit activation state.",
		"SUB    = The low-level unit activation state.",
		"1 loaded units listed.",
	}, "\n") + "\n"

	require.Equal(t,
		[]string{"*Список сервисов:*\n```\nUNIT LOAD ACTIVE SUB DESCRIPTION\nssh.service loaded active running OpenSSH\n```"},
		h.say(1, "/get_services"))
}

func TestRouter_ReplLogsFiltered(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["cat '/var/log/pg.log'"] = "LOG: checkpoint\nLOG: connection authorized: user=db-repl-user\nLOG: done\n"

	require.Equal(t,
		[]string{"```\nLOG: connection authorized: user=db-repl-user\n```"},
		h.say(1, "/get_repl_logs"))
}

func TestRouter_AptList(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["apt show 'openssh-server'"] = "Package: openssh-server\n"

	require.Equal(t, []string{"Package: openssh-server\n"}, h.say(1, "/get_apt_list openssh-server"))
	require.Equal(t, []string{"Использование: /get_apt_list [package]"}, h.say(1, "/get_apt_list a b"))
	require.Equal(t, []string{remoteFaultNotice}, h.say(1, "/get_apt_list $(reboot)"))
	require.Equal(t, []string{"apt show 'openssh-server'"}, h.session.calls)
}

func TestRouter_LongOutputIsFramed(t *testing.T) {
	h := newHarness(t, Options{MaxLen: 64})
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "package-%02d\n", i)
	}
	h.session.output[`dpkg-query -f '${binary:Package}\n' -W`] = b.String()

	texts := h.say(1, "/get_apt_list")
	require.Greater(t, len(texts), 1)
	for _, text := range texts {
		require.LessOrEqual(t, len([]rune(text)), 64)
	}
	require.Equal(t, b.String(), strings.Join(texts, ""))
}

func TestRouter_IgnoresNoise(t *testing.T) {
	h := newHarness(t, Options{BotName: "ops_bot"})

	require.Empty(t, h.say(1, "/reboot_now"))
	require.Empty(t, h.say(1, "просто текст"))
	require.Empty(t, h.say(1, "/start@other_bot"))
	require.Equal(t, []string{"Привет, Иван Петров!"}, h.say(1, "/start@ops_bot"))
}

func TestRouter_SingleShotDuringFlow(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.output["uname -r"] = "6.1.0\n"

	h.say(1, "/find_email")
	require.Equal(t, []string{"6.1.0\n"}, h.say(1, "/get_release"))
	require.Equal(t, []string{"1. x@y.ru\n", "Сохранить? Да/Нет"}, h.say(1, "x@y.ru"))
}

func TestRouter_ReentryReplacesFlow(t *testing.T) {
	h := newHarness(t, Options{})

	h.say(1, "/find_phone_number")
	h.say(1, "89991234567")
	require.Equal(t, []string{"Введите пароль: "}, h.say(1, "/verify_password"))
	require.Equal(t, []string{"Пароль простой"}, h.say(1, "Да"))

	records, err := h.store.SelectAll(context.Background(), domain.KindPhone)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRouter_Allowlist(t *testing.T) {
	h := newHarness(t, Options{AllowedUserIDs: []int64{7}})

	require.Empty(t, h.say(1, "/start"))
	require.Equal(t, []string{"Привет, Иван Петров!"}, h.say(7, "/start"))

	h.router.Dispatch(context.Background(), Message{ChatID: -1, User: domain.User{ID: -1, FirstName: "operator"}, Text: "/start", Trusted: true})
	require.Equal(t, []string{"Привет, operator!"}, h.sender.take())
}

func TestRouter_RateLimit(t *testing.T) {
	h := newHarness(t, Options{Limiter: NewRateLimiter(2, time.Minute)})
	h.session.output["uname -r"] = "6.1.0\n"

	h.say(1, "/get_release")
	h.say(1, "/get_release")
	require.Equal(t, []string{rateLimitNotice}, h.say(1, "/get_release"))
	require.Equal(t, []string{"6.1.0\n"}, h.say(2, "/get_release"), "limit is per user")
	require.Equal(t, []string{"Привет, Иван Петров!"}, h.say(1, "/start"), "local commands are not limited")
}

func TestRouter_StoreFault(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.store.Close())
	require.Equal(t, []string{storeFaultNotice}, h.say(1, "/get_phone_numbers"))
}

func TestCommands(t *testing.T) {
	infos := Commands()
	require.Len(t, infos, len(commands)+3)
	for i := 1; i < len(infos); i++ {
		require.Less(t, infos[i-1].Name, infos[i].Name)
	}
	for _, info := range infos {
		require.NotEmpty(t, info.Description, info.Name)
	}
}
