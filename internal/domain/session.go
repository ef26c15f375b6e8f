package domain

import (
	"slices"
	"time"
)

// Flow identifies one of the supported multi-turn conversations.
type Flow string

// Flows, named after their entry commands.
const (
	FlowFindPhone      Flow = "find_phone_number"
	FlowFindEmail      Flow = "find_email"
	FlowVerifyPassword Flow = "verify_password"
)

// State is the position of a conversation within its flow.
type State string

const (
	StateAwaitingText         State = "awaiting_text"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateTerminal             State = "terminal"
)

// Kind tags extracted values and selects the table they are persisted to.
type Kind string

const (
	KindPhone Kind = "phone"
	KindEmail Kind = "email"
)

// Conversation holds the state of one user's active flow.
type Conversation struct {
	UserID int64
	Flow   Flow
	State  State
	// Generation changes every time the user enters a flow. Updates carrying
	// a stale generation are discarded.
	Generation string
	Scratch    map[Kind][]string
	UpdatedAt  time.Time
}

// Pending returns the unconfirmed values stored for kind.
func (c *Conversation) Pending(kind Kind) []string {
	if c.Scratch == nil {
		return nil
	}
	return c.Scratch[kind]
}

// Stash replaces the unconfirmed values stored for kind.
func (c *Conversation) Stash(kind Kind, values []string) {
	if c.Scratch == nil {
		c.Scratch = make(map[Kind][]string)
	}
	c.Scratch[kind] = slices.Clone(values)
}

// Clone returns a deep copy so callers never share scratch slices.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Scratch != nil {
		out.Scratch = make(map[Kind][]string, len(c.Scratch))
		for k, v := range c.Scratch {
			out.Scratch[k] = slices.Clone(v)
		}
	}
	return out
}

// Idle reports how long the conversation has gone without a transition.
func (c *Conversation) Idle(now time.Time) time.Duration {
	if c.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(c.UpdatedAt)
}
