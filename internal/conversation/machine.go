package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/extract"
)

// ErrUnknownFlow is returned when entering a flow that does not exist.
var ErrUnknownFlow = errors.New("unknown conversation flow")

// Input is the category a user message falls into for the current state.
type Input string

const (
	InputMatches     Input = "matches"
	InputNoMatches   Input = "no_matches"
	InputClassified  Input = "classified"
	InputAffirmative Input = "affirmative"
	InputOther       Input = "other"
	InputFault       Input = "fault"
)

// Recorder persists confirmed values. All values are written or none.
type Recorder interface {
	Insert(ctx context.Context, kind domain.Kind, values ...string) error
}

// turn carries one message through classification and its effect.
type turn struct {
	conv     domain.Conversation
	def      flowDef
	text     string
	result   extract.Result
	strength extract.Strength
	fault    error
}

type effect func(ctx context.Context, m *Machine, t *turn) []string

type transition struct {
	next   domain.State
	effect effect
}

var transitions = map[domain.State]map[Input]transition{
	domain.StateAwaitingText: {
		InputNoMatches:  {next: domain.StateTerminal, effect: replyNotFound},
		InputMatches:    {next: domain.StateAwaitingConfirmation, effect: offerMatches},
		InputClassified: {next: domain.StateTerminal, effect: replyStrength},
		InputFault:      {next: domain.StateTerminal, effect: reportFault},
	},
	domain.StateAwaitingConfirmation: {
		InputAffirmative: {next: domain.StateTerminal, effect: persistPending},
		InputOther:       {next: domain.StateTerminal, effect: discardPending},
		InputFault:       {next: domain.StateTerminal, effect: reportFault},
	},
}

// Machine runs user messages through the active flow's transitions.
type Machine struct {
	store    *Store
	recorder Recorder
	logger   *slog.Logger
}

// NewMachine creates a machine over store persisting through recorder.
func NewMachine(store *Store, recorder Recorder, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, recorder: recorder, logger: logger}
}

// Enter starts flow for the user and returns its prompt.
func (m *Machine) Enter(userID int64, flow domain.Flow) (string, error) {
	def, ok := flows[flow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	conv := m.store.Begin(userID, flow)
	m.logger.Info("Conversation started", "user_id", userID, "flow", flow, "generation", conv.Generation)
	return def.prompt, nil
}

// Active reports whether the user has a conversation in progress.
func (m *Machine) Active(userID int64) bool {
	_, ok := m.store.Get(userID)
	return ok
}

// Handle feeds text to the user's active conversation. It returns false
// when there is none.
func (m *Machine) Handle(ctx context.Context, userID int64, text string) ([]string, bool) {
	conv, ok := m.store.Get(userID)
	if !ok {
		return nil, false
	}
	return m.step(ctx, conv, text), true
}

func (m *Machine) step(ctx context.Context, conv domain.Conversation, text string) (replies []string) {
	log := m.logger.With("user_id", conv.UserID, "flow", conv.Flow, "state", conv.State)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Conversation transition panicked", "panic", r)
			m.store.End(conv.UserID, conv.Generation)
			replies = []string{faultReply}
		}
	}()

	t := &turn{conv: conv, def: flows[conv.Flow], text: text}
	input := classify(t)
	tr, ok := transitions[conv.State][input]
	if !ok {
		t.fault = fmt.Errorf("no transition from %s on %s", conv.State, input)
		input, tr = InputFault, transition{next: domain.StateTerminal, effect: reportFault}
	}

	next := conv.Clone()
	next.State = tr.next
	if tr.next == domain.StateAwaitingConfirmation {
		next.Stash(t.def.kind, t.result.Matches)
	}
	if err := m.store.Advance(next); err != nil {
		log.Info("Dropping message for replaced conversation", "error", err)
		return nil
	}

	log.Info("Conversation transition", "input", input, "next", tr.next)
	return tr.effect(ctx, m, t)
}

func classify(t *turn) Input {
	switch t.conv.State {
	case domain.StateAwaitingText:
		if t.def.kind == "" {
			t.strength = extract.PasswordStrength(t.text)
			return InputClassified
		}
		res, err := extract.Extract(t.def.kind, t.text)
		if err != nil {
			t.fault = err
			return InputFault
		}
		t.result = res
		if res.Empty() {
			return InputNoMatches
		}
		return InputMatches
	case domain.StateAwaitingConfirmation:
		if strings.TrimSpace(t.text) == affirmative {
			return InputAffirmative
		}
		return InputOther
	default:
		t.fault = fmt.Errorf("message in state %q", t.conv.State)
		return InputFault
	}
}

func replyNotFound(_ context.Context, _ *Machine, t *turn) []string {
	return []string{t.def.notFound}
}

func offerMatches(_ context.Context, _ *Machine, t *turn) []string {
	return []string{t.result.Listing(), confirmPrompt}
}

func replyStrength(_ context.Context, _ *Machine, t *turn) []string {
	if t.strength == extract.Strong {
		return []string{strongPasswd}
	}
	return []string{weakPassword}
}

func persistPending(ctx context.Context, m *Machine, t *turn) []string {
	pending := t.conv.Pending(t.def.kind)
	if len(pending) == 0 {
		return nil
	}
	if err := m.recorder.Insert(ctx, t.def.kind, pending...); err != nil {
		m.logger.Error("Failed to persist confirmed values",
			"user_id", t.conv.UserID,
			"kind", t.def.kind,
			"count", len(pending),
			"error", err)
		return []string{t.def.saveFailed}
	}
	m.logger.Info("Persisted confirmed values", "user_id", t.conv.UserID, "kind", t.def.kind, "count", len(pending))
	return []string{t.def.saved}
}

func discardPending(_ context.Context, m *Machine, t *turn) []string {
	m.logger.Debug("Discarded unconfirmed values", "user_id", t.conv.UserID, "kind", t.def.kind)
	return nil
}

func reportFault(_ context.Context, m *Machine, t *turn) []string {
	m.logger.Error("Conversation fault", "user_id", t.conv.UserID, "flow", t.conv.Flow, "error", t.fault)
	return []string{faultReply}
}
