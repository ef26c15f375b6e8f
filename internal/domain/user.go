// Package domain contains core domain types for the ops bot.
package domain

import (
	"strconv"
	"strings"
)

// User identifies the chat participant behind an inbound message.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// FullName joins first and last name the way chat clients display them.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "user " + strconv.FormatInt(u.ID, 10)
}

// Record is a persisted phone number or email address.
type Record struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}
