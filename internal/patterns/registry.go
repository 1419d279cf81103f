// Package patterns holds the ordered fallback strategies used to locate bill fields in extracted text.
package patterns

import (
	"regexp"
	"strings"
)

// Kind selects how a Strategy searches the document.
type Kind int

const (
	// KindLine applies Pattern to each line independently.
	KindLine Kind = iota
	// KindText applies Pattern to the whole text; matches may span line breaks.
	KindText
	// KindLabelLookahead finds lines matching Label, then applies Pattern to
	// at most Window following non-empty lines.
	KindLabelLookahead
	// KindAnchorLookahead applies Pattern to at most Window non-empty lines
	// after a line chosen by the caller.
	KindAnchorLookahead
)

// DefaultWindow is the lookahead depth used when a Strategy leaves Window unset.
const DefaultWindow = 10

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindText:
		return "text"
	case KindLabelLookahead:
		return "label_lookahead"
	case KindAnchorLookahead:
		return "anchor_lookahead"
	default:
		return "unknown"
	}
}

// Strategy is one entry of a fallback chain. When Pattern has a capture
// group the first group is the value, otherwise the whole match.
type Strategy struct {
	Name    string
	Kind    Kind
	Pattern *regexp.Regexp
	Label   *regexp.Regexp
	Window  int
}

func (s Strategy) window() int {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return s.Window
}

// Match is a successful resolution. Line is the physical line index the value was found on.
type Match struct {
	Value    string
	Line     int
	Strategy string
	Kind     Kind
}

// Set is the ordered fallback chain for one field. Earlier strategies are
// stricter and win over later ones.
type Set struct {
	Field      string
	Strategies []Strategy
	// Normalize rewrites a raw match into its canonical form. Optional.
	Normalize func(string) string
}

// Text is a document prepared for matching.
type Text struct {
	Full  string
	Lines []string
}

// NewText splits s into trimmed physical lines.
func NewText(s string) Text {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	raw := strings.Split(s, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	return Text{Full: s, Lines: lines}
}

// LineAt returns the physical line index containing byte offset off of Full.
func (t Text) LineAt(off int) int {
	if off > len(t.Full) {
		off = len(t.Full)
	}
	return strings.Count(t.Full[:off], "\n")
}

// Resolve evaluates the strategies in order and returns the first match.
// anchor is the line used by KindAnchorLookahead; pass -1 when there is none.
func (s Set) Resolve(t Text, anchor int) (Match, bool) {
	for _, st := range s.Strategies {
		m, ok := st.find(t, anchor)
		if !ok {
			continue
		}
		if s.Normalize != nil {
			m.Value = s.Normalize(m.Value)
		}
		if m.Value == "" {
			continue
		}
		m.Strategy = st.Name
		m.Kind = st.Kind
		return m, true
	}
	return Match{Line: -1}, false
}

func (s Strategy) find(t Text, anchor int) (Match, bool) {
	switch s.Kind {
	case KindLine:
		for i, line := range t.Lines {
			if v, ok := capture(s.Pattern, line); ok {
				return Match{Value: v, Line: i}, true
			}
		}
	case KindText:
		loc := s.Pattern.FindStringSubmatchIndex(t.Full)
		if loc == nil {
			return Match{}, false
		}
		start, end := loc[0], loc[1]
		if len(loc) >= 4 && loc[2] >= 0 {
			start, end = loc[2], loc[3]
		}
		return Match{Value: strings.TrimSpace(t.Full[start:end]), Line: t.LineAt(start)}, true
	case KindLabelLookahead:
		for i, line := range t.Lines {
			if s.Label == nil || !s.Label.MatchString(line) {
				continue
			}
			if m, ok := s.lookahead(t, i); ok {
				return m, true
			}
		}
	case KindAnchorLookahead:
		if anchor >= 0 {
			return s.lookahead(t, anchor)
		}
	}
	return Match{}, false
}

// lookahead scans at most window non-empty lines after line from.
func (s Strategy) lookahead(t Text, from int) (Match, bool) {
	seen := 0
	for j := from + 1; j < len(t.Lines) && seen < s.window(); j++ {
		line := t.Lines[j]
		if line == "" {
			continue
		}
		seen++
		if v, ok := capture(s.Pattern, line); ok {
			return Match{Value: v, Line: j}, true
		}
	}
	return Match{}, false
}

func capture(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if len(m) > 1 && m[1] != "" {
		return strings.TrimSpace(m[1]), true
	}
	return strings.TrimSpace(m[0]), true
}
