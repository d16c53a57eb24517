// Package pattern implements the dotted-name pattern language with `*`/`#`
// wildcards and and/or/not combinators (spec.md §4.D).
package pattern

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrEmptyPattern rejects the empty-string pattern invariant.
var ErrEmptyPattern = errors.New("pattern: empty string is not a valid pattern")

// Pattern is the recursive variant described in spec.md §3: either a
// dotted-word string, or one of the and/or/not combinators.
type Pattern struct {
	// Literal holds a dotted-word string pattern when Kind is KindLiteral.
	Literal string
	// Sub holds operands for KindAnd/KindOr/KindNot.
	Sub  []Pattern
	Kind Kind
}

// Kind distinguishes the pattern variants.
type Kind int

const (
	KindLiteral Kind = iota
	KindAnd
	KindOr
	KindNot
)

// Lit builds a string pattern.
func Lit(s string) Pattern { return Pattern{Kind: KindLiteral, Literal: s} }

// And builds a conjunction of patterns.
func And(ps ...Pattern) Pattern { return Pattern{Kind: KindAnd, Sub: ps} }

// Or builds a disjunction of patterns.
func Or(ps ...Pattern) Pattern { return Pattern{Kind: KindOr, Sub: ps} }

// Not builds a negation of a single pattern.
func Not(p Pattern) Pattern { return Pattern{Kind: KindNot, Sub: []Pattern{p}} }

// Validate checks the invariants from spec.md §3: every word is non-empty,
// every character is within name-chars ∪ {*, #} (name-chars being anything
// but whitespace and '.', as for event.IsValidName), and wildcards occupy
// an entire word with no other characters.
func Validate(p Pattern) error {
	switch p.Kind {
	case KindLiteral:
		return validateLiteral(p.Literal)
	case KindAnd, KindOr:
		if len(p.Sub) == 0 {
			return fmt.Errorf("pattern: %s requires at least one operand", kindName(p.Kind))
		}
		for _, sub := range p.Sub {
			if err := Validate(sub); err != nil {
				return err
			}
		}
		return nil
	case KindNot:
		if len(p.Sub) != 1 {
			return errors.New("pattern: not requires exactly one operand")
		}
		return Validate(p.Sub[0])
	default:
		return fmt.Errorf("pattern: unknown kind %d", p.Kind)
	}
}

func validateLiteral(s string) error {
	if s == "" {
		return ErrEmptyPattern
	}
	for _, word := range strings.Split(s, ".") {
		if word == "" {
			return fmt.Errorf("pattern: empty word in %q", s)
		}
		if word == "*" || word == "#" {
			continue
		}
		if strings.IndexFunc(word, unicode.IsSpace) >= 0 {
			return fmt.Errorf("pattern: whitespace in word %q", word)
		}
		if strings.ContainsAny(word, "*#") {
			return fmt.Errorf("pattern: wildcard must occupy an entire word, got %q", word)
		}
	}
	return nil
}

func kindName(k Kind) string {
	switch k {
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	default:
		return "literal"
	}
}
