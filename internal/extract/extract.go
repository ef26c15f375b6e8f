// Package extract finds phone numbers and email addresses in free text and
// grades password strength.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
)

// ErrUnknownKind is returned for kinds the engine has no pattern for.
var ErrUnknownKind = errors.New("unknown extraction kind")

var (
	// 8 or +7, then a 10 digit subscriber number grouped 3-3-2-2. Spaces,
	// hyphens and parentheses may separate the groups.
	phonePattern = regexp.MustCompile(`(8|\+7)[( -]*(\d{3})[) -]*(\d{3})[ -]*(\d{2})[ -]*(\d{2})`)
	// Word characters include non-ASCII letters, so Cyrillic addresses match.
	emailPattern = regexp.MustCompile(`[.\-\p{L}\p{N}_]+@[\p{L}\p{N}_]+\.[\p{L}\p{N}_]+`)
)

// Result is the ordered set of values found for one kind.
type Result struct {
	Kind    domain.Kind
	Matches []string
}

// Empty reports whether nothing was found.
func (r Result) Empty() bool {
	return len(r.Matches) == 0
}

// Listing renders the matches as a 1-indexed list, one per line.
func (r Result) Listing() string {
	var b strings.Builder
	for i, m := range r.Matches {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m)
	}
	return b.String()
}

// Extract runs the pattern for kind over text.
func Extract(kind domain.Kind, text string) (Result, error) {
	switch kind {
	case domain.KindPhone:
		return Result{Kind: kind, Matches: phones(text)}, nil
	case domain.KindEmail:
		return Result{Kind: kind, Matches: emailPattern.FindAllString(text, -1)}, nil
	default:
		return Result{Kind: kind}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// phones returns each match normalized to its prefix followed by the digits.
func phones(text string) []string {
	found := phonePattern.FindAllStringSubmatch(text, -1)
	if len(found) == 0 {
		return nil
	}
	out := make([]string, 0, len(found))
	for _, groups := range found {
		out = append(out, strings.Join(groups[1:], ""))
	}
	return out
}
