package pattern

import "strings"

func splitWords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// Match reports whether name satisfies p. p must already be valid (callers
// validate once at template-build time via Validate).
func Match(name string, p Pattern) bool {
	switch p.Kind {
	case KindLiteral:
		return matchWords(splitWords(name), splitWords(p.Literal))
	case KindAnd:
		for _, sub := range p.Sub {
			if !Match(name, sub) {
				return false
			}
		}
		return true
	case KindOr:
		for _, sub := range p.Sub {
			if Match(name, sub) {
				return true
			}
		}
		return false
	case KindNot:
		return !Match(name, p.Sub[0])
	default:
		return false
	}
}

// matchWords implements the three-way branch from spec.md §4.D: a leading
// `#` disjuncts over (advance source, advance both, advance pattern) so it
// is correct whether the multi-word wildcard sits at the head, tail, or
// interior of the pattern. A greedy match is incorrect here.
func matchWords(sWords, pWords []string) bool {
	if len(sWords) == 0 && len(pWords) == 0 {
		return true
	}
	if len(pWords) == 0 {
		return false
	}

	head := pWords[0]
	switch head {
	case "#":
		if len(sWords) == 0 {
			return matchWords(sWords, pWords[1:])
		}
		return matchWords(sWords[1:], pWords) ||
			matchWords(sWords[1:], pWords[1:]) ||
			matchWords(sWords, pWords[1:])
	case "*":
		if len(sWords) == 0 {
			return false
		}
		return matchWords(sWords[1:], pWords[1:])
	default:
		if len(sWords) == 0 || sWords[0] != head {
			return false
		}
		return matchWords(sWords[1:], pWords[1:])
	}
}
