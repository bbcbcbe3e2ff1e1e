// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// DefaultHistoryWindow is how many trailing messages the classifier sees.
const DefaultHistoryWindow = 3

// Utterance is the latest user text plus the conversation that preceded it.
// It is immutable once built.
type Utterance struct {
	text    string
	history []Message
}

// NewUtterance copies history so later changes by the caller are not seen.
func NewUtterance(text string, history []Message) Utterance {
	h := make([]Message, len(history))
	copy(h, history)
	return Utterance{text: text, history: h}
}

// Text returns the latest user text.
func (u Utterance) Text() string {
	return u.text
}

// History returns a copy of the messages before the utterance.
func (u Utterance) History() []Message {
	h := make([]Message, len(u.history))
	copy(h, u.history)
	return h
}

// Messages returns the history followed by the utterance as a user message.
func (u Utterance) Messages() []Message {
	msgs := make([]Message, 0, len(u.history)+1)
	msgs = append(msgs, u.history...)
	return append(msgs, NewUserMessage(u.text))
}

// Window returns the last n messages of Messages. n <= 0 selects
// DefaultHistoryWindow.
func (u Utterance) Window(n int) []Message {
	if n <= 0 {
		n = DefaultHistoryWindow
	}
	msgs := u.Messages()
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// FormatWindow joins message contents with a blank line between them.
// Tool and system messages are skipped.
func FormatWindow(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleTool || m.Role == RoleSystem {
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
