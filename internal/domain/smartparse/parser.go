package smartparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Field defaults applied before any rule matches
const (
	DefaultQuantity     = "1dr"
	DefaultDoseForm     = "pills"
	DefaultDosePattern  = "1-1-1"
	DefaultFrequency    = "Daily"
	DefaultDuration     = "7 days"
	DefaultDurationDays = 7
	DefaultBottles      = 1

	FrequencySOS = "SOS"
)

// Match records which fields were taken from the text rather than defaults
type Match uint8

const (
	MatchMedicine Match = 1 << iota
	MatchPotency
	MatchQuantity
	MatchDoseForm
	MatchDosePattern
	MatchFrequency
	MatchDuration
)

// Has reports whether every bit in m2 is set
func (m Match) Has(m2 Match) bool { return m&m2 == m2 }

// Line is the structured result of parsing one shorthand line
type Line struct {
	Medicine     string `json:"medicine,omitempty"`
	Potency      string `json:"potency,omitempty"`
	Quantity     string `json:"quantity"`
	DoseForm     string `json:"dose_form"`
	DosePattern  string `json:"dose_pattern"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	DurationDays int    `json:"duration_days"`
	Bottles      int    `json:"bottles"`
	Matched      Match  `json:"-"`
}

// Categories lists the rule categories that matched, for metrics and debugging
func (l Line) Categories() []string {
	var out []string
	for _, c := range []struct {
		bit  Match
		name string
	}{
		{MatchQuantity, "quantity"},
		{MatchDoseForm, "dose_form"},
		{MatchDosePattern, "dose_pattern"},
		{MatchDuration, "duration"},
	} {
		if l.Matched.Has(c.bit) {
			out = append(out, c.name)
		}
	}
	return out
}

// Parser applies a fixed rule snapshot to shorthand lines.
// A Parser is safe for concurrent use.
type Parser struct {
	cfg *Config
}

// NewParser creates a parser over a snapshot of cfg; empty categories fall back to defaults
func NewParser(cfg *Config) *Parser {
	return &Parser{cfg: cfg.WithDefaults()}
}

// Config returns the rule snapshot the parser matches against
func (p *Parser) Config() *Config {
	return p.cfg.Clone()
}

// ParseLine parses text against cfg without keeping a parser around
func ParseLine(text string, cfg *Config) Line {
	return NewParser(cfg).Parse(text)
}

// Parse extracts a prescription line from text. It never fails: categories
// with no matching rule keep their default value.
func (p *Parser) Parse(text string) Line {
	line := Line{
		Quantity:     DefaultQuantity,
		DoseForm:     DefaultDoseForm,
		DosePattern:  DefaultDosePattern,
		Frequency:    DefaultFrequency,
		Duration:     DefaultDuration,
		DurationDays: DefaultDurationDays,
		Bottles:      DefaultBottles,
	}

	tokens := strings.Fields(text)
	if len(tokens) > 0 && !isNumeric(tokens[0]) && !strings.Contains(tokens[0], "-") {
		line.Medicine = tokens[0]
		line.Matched |= MatchMedicine
		if len(tokens) > 1 && isNumeric(tokens[1]) {
			line.Potency = tokens[1]
			line.Matched |= MatchPotency
		}
	}

	lower := strings.ToLower(text)

	if v, ok := firstMatch(lower, p.cfg.Quantities); ok {
		line.Quantity = v
		line.Matched |= MatchQuantity
	}
	if v, ok := firstMatch(lower, p.cfg.DoseForms); ok {
		line.DoseForm = v
		line.Matched |= MatchDoseForm
	}
	if v, ok := firstMatch(lower, p.cfg.DosePatterns); ok {
		line.DosePattern = v.Pattern
		line.Matched |= MatchDosePattern
		if freq, ok := InferFrequency(v.Description); ok {
			line.Frequency = freq
			line.Matched |= MatchFrequency
		}
	}

	if display, days, ok := ParseDuration(text); ok {
		line.Duration = display
		line.DurationDays = days
		line.Matched |= MatchDuration
	}

	return line
}

func firstMatch[V any](lower string, rules []Rule[V]) (V, bool) {
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		re := keywordPattern(r.Keyword)
		if re == nil {
			continue
		}
		if re.MatchString(lower) {
			return r.Value, true
		}
	}
	var zero V
	return zero, false
}

// InferFrequency derives a frequency label from a dose-pattern description.
// The first matching word wins, so a count word beats "needed". Every count
// word resolves to Daily; distinct labels need a frequency column on the rule
// tables.
func InferFrequency(description string) (string, bool) {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "once"),
		strings.Contains(d, "twice"),
		strings.Contains(d, "three"),
		strings.Contains(d, "four"),
		strings.Contains(d, "bedtime"),
		strings.Contains(d, "night"):
		return DefaultFrequency, true
	case strings.Contains(d, "needed"):
		return FrequencySOS, true
	}
	return "", false
}

var durationRe = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month|hour)s?`)

// ParseDuration finds the first "<n> <unit>" expression in text and returns
// its display form and length in whole days. Hours count as zero days.
func ParseDuration(text string) (string, int, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}
	unit := strings.ToLower(m[2])
	display := fmt.Sprintf("%d %s", n, unit)
	if n > 1 {
		display += "s"
	}
	var days int
	switch unit {
	case "day":
		days = n
	case "week":
		days = n * 7
	case "month":
		days = n * 30
	case "hour":
		days = 0
	}
	return display, days, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Keyword regexes are compiled once and shared by every parser.
var (
	patternMu    sync.RWMutex
	patternCache = map[string]*regexp.Regexp{}
)

// keywordPattern returns a case-insensitive whole-word matcher for keyword,
// or nil for a blank keyword. Regex metacharacters in keyword are literal.
func keywordPattern(keyword string) *regexp.Regexp {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if key == "" {
		return nil
	}

	patternMu.RLock()
	re, ok := patternCache[key]
	patternMu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`)

	patternMu.Lock()
	patternCache[key] = re
	patternMu.Unlock()
	return re
}
