// Package frame splits command output into bounded chat message frames.
package frame

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxLen is the largest message the chat platform accepts, in characters.
const MaxLen = 4096

// minBody is the widest escaped rune ("&amp;"). Every frame keeps room for it.
const minBody = 5

// Envelope selects how a frame body is wrapped for delivery.
type Envelope int

const (
	// Plain sends the body as is.
	Plain Envelope = iota
	// Code wraps the body in a MarkdownV2 monospace block.
	Code
	// HTML wraps the body in an HTML pre element.
	HTML
)

// String returns the envelope name used in logs.
func (e Envelope) String() string {
	switch e {
	case Code:
		return "code"
	case HTML:
		return "html"
	default:
		return "plain"
	}
}

// ParseMode returns the chat platform parse mode for the envelope.
func (e Envelope) ParseMode() string {
	switch e {
	case Code:
		return "MarkdownV2"
	case HTML:
		return "HTML"
	default:
		return ""
	}
}

func (e Envelope) escapeBody(s string) string {
	switch e {
	case Code:
		return EscapeCode(s)
	case HTML:
		return EscapeHTML(s)
	default:
		return s
	}
}

func (e Envelope) title(t string) string {
	if t == "" {
		return ""
	}
	switch e {
	case Code:
		return "*" + EscapeMarkdown(t) + "*\n"
	case HTML:
		return "<b>" + EscapeHTML(t) + "</b>\n"
	default:
		return t + "\n"
	}
}

// overhead is the worst-case size of the envelope's opening and closing.
func (e Envelope) overhead() int {
	switch e {
	case Code:
		return len("```\n") + len("\n```")
	case HTML:
		return len("<pre>") + len("</pre>")
	default:
		return 0
	}
}

func (e Envelope) wrap(body string) string {
	switch e {
	case Code:
		if body == "" || strings.HasSuffix(body, "\n") {
			return "```\n" + body + "```"
		}
		return "```\n" + body + "\n```"
	case HTML:
		return "<pre>" + body + "</pre>"
	default:
		return body
	}
}

// Options control how Split frames a text.
type Options struct {
	Envelope Envelope
	// Title is rendered bold at the top of the first frame only. A title
	// too long to leave room for any body text is dropped.
	Title string
	// MaxLen bounds every frame, envelope included. Zero means MaxLen.
	MaxLen int
}

// Frame is one deliverable chunk of a larger reply.
type Frame struct {
	// Text is the wire form: escaped and wrapped in the envelope.
	Text string
	// Content is the slice of the original input carried by this frame.
	Content   string
	ParseMode string
}

// Len returns the frame size as counted by the chat platform.
func (f Frame) Len() int {
	return textLen(f.Text)
}

// textLen counts UTF-16 code units, the unit of the platform's length limit.
// Runes outside the Basic Multilingual Plane count twice.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}

// Split cuts text into frames on line boundaries. Each line keeps its
// trailing newline, so concatenating the Content of all frames yields text
// unchanged. A line that does not fit into an empty frame is emitted on its
// own, cut at rune boundaries into as many frames as needed.
func Split(text string, opts Options) []Frame {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = MaxLen
	}
	env := opts.Envelope
	if floor := env.overhead() + minBody; maxLen < floor {
		maxLen = floor
	}
	title := env.title(opts.Title)
	if textLen(title)+env.overhead()+minBody > maxLen {
		title = ""
	}

	s := splitter{env: env, title: title, maxLen: maxLen}
	for _, unit := range strings.SplitAfter(text, "\n") {
		if unit == "" {
			continue
		}
		escaped := env.escapeBody(unit)
		n := textLen(escaped)
		if s.raw.Len() > 0 && s.size+n > s.budget() {
			s.flush()
		}
		if n > s.budget() {
			s.cut(unit)
			continue
		}
		s.add(unit, escaped, n)
	}
	if s.raw.Len() > 0 || (len(s.frames) == 0 && title != "") {
		s.flush()
	}
	return s.frames
}

type splitter struct {
	env    Envelope
	title  string
	maxLen int

	frames []Frame
	raw    strings.Builder
	body   strings.Builder
	size   int
}

// budget is the room left for escaped body text in the frame being built.
func (s *splitter) budget() int {
	b := s.maxLen - s.env.overhead()
	if len(s.frames) == 0 {
		b -= textLen(s.title)
	}
	return b
}

func (s *splitter) add(raw, escaped string, n int) {
	s.raw.WriteString(raw)
	s.body.WriteString(escaped)
	s.size += n
}

func (s *splitter) flush() {
	text := s.env.wrap(s.body.String())
	if len(s.frames) == 0 {
		text = s.title + text
	}
	s.frames = append(s.frames, Frame{
		Text:      text,
		Content:   s.raw.String(),
		ParseMode: s.env.ParseMode(),
	})
	s.raw.Reset()
	s.body.Reset()
	s.size = 0
}

// cut emits an oversized unit across as many frames as it needs. Every
// piece carries at least one rune so the loop always advances.
func (s *splitter) cut(unit string) {
	for unit != "" {
		budget := s.budget()
		for unit != "" {
			_, width := utf8.DecodeRuneInString(unit)
			piece := unit[:width]
			escaped := s.env.escapeBody(piece)
			n := textLen(escaped)
			if s.size > 0 && s.size+n > budget {
				break
			}
			s.add(piece, escaped, n)
			unit = unit[width:]
		}
		s.flush()
	}
}
