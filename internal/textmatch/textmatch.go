// Package textmatch provides the keyword primitives shared by the taxonomy,
// the job requirement and the scorers.
package textmatch

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// separator lets "Fine-tuning", "Fine tuning" and "Finetuning" share one term.
const separator = `[\s\-_]?`

// Term is a keyword compiled for case-insensitive matching. ASCII terms that
// start or end with a letter only match on letter boundaries, so "RAG" does
// not fire inside "storage". Terms with non-ASCII runes match as substrings.
type Term struct {
	raw string
	re  *regexp.Regexp
}

// NewTerm compiles raw into a Term. Aliases are alternative spellings that
// match as the same term ("Fine-tuned" for "Fine-tuning"). An empty raw
// value yields a Term that never matches.
func NewTerm(raw string, aliases ...string) Term {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Term{}
	}

	alts := []string{termPattern(raw)}
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			alts = append(alts, termPattern(a))
		}
	}

	return Term{raw: raw, re: regexp.MustCompile("(?i)(?:" + strings.Join(alts, "|") + ")")}
}

// termPattern captures the keyword itself in a group, boundary runes stay
// outside of it.
func termPattern(raw string) string {
	quoted := regexp.QuoteMeta(raw)
	if !isASCII(raw) {
		return "(" + quoted + ")"
	}

	quoted = strings.NewReplacer(" ", separator, "-", separator).Replace(quoted)

	var prefix, plural, suffix string
	first, _ := utf8.DecodeRuneInString(raw)
	if unicode.IsLetter(first) {
		prefix = `(?:^|[^\p{L}])`
	}
	last, _ := utf8.DecodeLastRuneInString(raw)
	if unicode.IsLetter(last) {
		plural = `(?:e?s)?`
		suffix = `(?:$|[^\p{L}])`
	}

	return prefix + "(" + quoted + plural + ")" + suffix
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// In reports whether the term occurs in text.
func (t Term) In(text string) bool {
	if t.re == nil || text == "" {
		return false
	}
	return t.re.MatchString(text)
}

func (t Term) String() string { return t.raw }

// Spans returns the byte ranges of the occurrences of the term in text,
// without the boundary runes around them.
func (t Term) Spans(text string) [][2]int {
	if t.re == nil || text == "" {
		return nil
	}

	var spans [][2]int
	for _, m := range t.re.FindAllStringSubmatchIndex(text, -1) {
		for g := 2; g+1 < len(m); g += 2 {
			if m[g] >= 0 {
				spans = append(spans, [2]int{m[g], m[g+1]})
				break
			}
		}
	}
	return spans
}

// Terms is an ordered list of compiled terms.
type Terms []Term

// Compile builds Terms from raw keywords, skipping blanks.
func Compile(raw []string) Terms {
	terms := make(Terms, 0, len(raw))
	for _, r := range raw {
		term := NewTerm(r)
		if term.re == nil {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// Any reports whether any term occurs in text.
func (ts Terms) Any(text string) bool {
	_, ok := ts.First(text)
	return ok
}

// First returns the first term, in list order, that occurs in text.
func (ts Terms) First(text string) (Term, bool) {
	for _, t := range ts {
		if t.In(text) {
			return t, true
		}
	}
	return Term{}, false
}

// Matches returns every term that occurs in text, in list order.
func (ts Terms) Matches(text string) []Term {
	var found []Term
	for _, t := range ts {
		if t.In(text) {
			found = append(found, t)
		}
	}
	return found
}

// Strings returns the raw keywords.
func (ts Terms) Strings() []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.raw)
	}
	return out
}

// CompilePatterns compiles user supplied regular expressions as
// case-insensitive patterns.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// AnyPattern reports whether any pattern matches text.
func AnyPattern(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Join concatenates the non-blank parts with a single space.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, " ")
}
