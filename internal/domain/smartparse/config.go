// Package smartparse turns one-line prescription shorthand into structured fields
// using the clinic's keyword tables.
package smartparse

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a rule table fails validation
var ErrInvalidConfig = errors.New("invalid smart parsing config")

// Rule maps a keyword found in the entry text to a canonical value.
// Rules are evaluated in slice order and the first enabled match wins.
type Rule[V any] struct {
	ID      string `json:"id,omitempty"`
	Keyword string `json:"keyword"`
	Value   V      `json:"value"`
	Enabled bool   `json:"enabled"`
}

// DosePattern is the value of a dose-pattern rule
type DosePattern struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

// Config holds the three ordered rule tables
type Config struct {
	Quantities   []Rule[string]      `json:"quantities"`
	DoseForms    []Rule[string]      `json:"dose_forms"`
	DosePatterns []Rule[DosePattern] `json:"dose_patterns"`
}

// Store persists the clinic's rule tables
type Store interface {
	// LoadConfig returns nil, nil when nothing has been saved yet
	LoadConfig(ctx context.Context) (*Config, error)
	SaveConfig(ctx context.Context, cfg *Config) error
}

// DefaultConfig returns the stock rule tables shipped with the clinic
func DefaultConfig() *Config {
	return &Config{
		Quantities:   defaultQuantities(),
		DoseForms:    defaultDoseForms(),
		DosePatterns: defaultDosePatterns(),
	}
}

func defaultQuantities() []Rule[string] {
	return []Rule[string]{
		{ID: "1", Keyword: "1dr", Value: "1dr", Enabled: true},
		{ID: "2", Keyword: "2dr", Value: "2dr", Enabled: true},
		{ID: "3", Keyword: "3dr", Value: "3dr", Enabled: true},
		{ID: "4", Keyword: "4dr", Value: "4dr", Enabled: true},
		{ID: "5", Keyword: "5dr", Value: "5dr", Enabled: true},
		{ID: "6", Keyword: "1/2oz", Value: "0.5oz", Enabled: true},
		{ID: "7", Keyword: "1oz", Value: "1oz", Enabled: true},
		{ID: "8", Keyword: "2oz", Value: "2oz", Enabled: true},
		{ID: "9", Keyword: "100ml", Value: "100ml", Enabled: true},
		{ID: "10", Keyword: "200ml", Value: "200ml", Enabled: true},
		{ID: "11", Keyword: "1 bottle", Value: "1 bottle", Enabled: true},
		{ID: "12", Keyword: "2 bottles", Value: "2 bottles", Enabled: true},
	}
}

func defaultDoseForms() []Rule[string] {
	return []Rule[string]{
		{ID: "1", Keyword: "pills", Value: "pills", Enabled: true},
		{ID: "2", Keyword: "tab", Value: "tablet", Enabled: true},
		{ID: "3", Keyword: "tablet", Value: "tablet", Enabled: true},
		{ID: "4", Keyword: "liq", Value: "liquid", Enabled: true},
		{ID: "5", Keyword: "liquid", Value: "liquid", Enabled: true},
		{ID: "6", Keyword: "drops", Value: "drops", Enabled: true},
		{ID: "7", Keyword: "sachet", Value: "sachet", Enabled: true},
		{ID: "8", Keyword: "powder", Value: "powder", Enabled: true},
		{ID: "9", Keyword: "ointment", Value: "ointment", Enabled: true},
		{ID: "10", Keyword: "capsules", Value: "capsules", Enabled: true},
		{ID: "11", Keyword: "globules", Value: "globules", Enabled: true},
		{ID: "12", Keyword: "syrup", Value: "syrup", Enabled: true},
	}
}

func defaultDosePatterns() []Rule[DosePattern] {
	return []Rule[DosePattern]{
		{ID: "1", Keyword: "od", Value: DosePattern{"1-0-0", "Once a day"}, Enabled: true},
		{ID: "2", Keyword: "bd", Value: DosePattern{"1-0-1", "Twice a day"}, Enabled: true},
		{ID: "3", Keyword: "tds", Value: DosePattern{"1-1-1", "Three times a day"}, Enabled: true},
		{ID: "4", Keyword: "qid", Value: DosePattern{"1-1-1-1", "Four times a day"}, Enabled: true},
		{ID: "5", Keyword: "sos", Value: DosePattern{"as needed", "As needed"}, Enabled: true},
		{ID: "6", Keyword: "hs", Value: DosePattern{"0-0-1", "At bedtime"}, Enabled: true},
		{ID: "7", Keyword: "1-1-1", Value: DosePattern{"1-1-1", "Three times a day"}, Enabled: true},
		{ID: "8", Keyword: "1-0-1", Value: DosePattern{"1-0-1", "Twice a day"}, Enabled: true},
		{ID: "9", Keyword: "4-4-4", Value: DosePattern{"4-4-4", "Four pills each time"}, Enabled: true},
		{ID: "10", Keyword: "3-3-3", Value: DosePattern{"3-3-3", "Three pills each time"}, Enabled: true},
		{ID: "11", Keyword: "2-2-2", Value: DosePattern{"2-2-2", "Two pills each time"}, Enabled: true},
		{ID: "12", Keyword: "1-1-1-1", Value: DosePattern{"1-1-1-1", "Four times a day"}, Enabled: true},
	}
}

// WithDefaults returns a copy where every empty table is replaced by its stock table
func (c *Config) WithDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := c.Clone()
	if len(out.Quantities) == 0 {
		out.Quantities = defaultQuantities()
	}
	if len(out.DoseForms) == 0 {
		out.DoseForms = defaultDoseForms()
	}
	if len(out.DosePatterns) == 0 {
		out.DosePatterns = defaultDosePatterns()
	}
	return out
}

// Clone returns a deep copy of the rule tables
func (c *Config) Clone() *Config {
	return &Config{
		Quantities:   append([]Rule[string](nil), c.Quantities...),
		DoseForms:    append([]Rule[string](nil), c.DoseForms...),
		DosePatterns: append([]Rule[DosePattern](nil), c.DosePatterns...),
	}
}

// Validate checks that every enabled rule has a keyword and a value
func (c *Config) Validate() error {
	var errs []error
	for i, r := range c.Quantities {
		errs = append(errs, checkRule("quantities", i, r.Enabled, r.Keyword, r.Value))
	}
	for i, r := range c.DoseForms {
		errs = append(errs, checkRule("dose_forms", i, r.Enabled, r.Keyword, r.Value))
	}
	for i, r := range c.DosePatterns {
		errs = append(errs, checkRule("dose_patterns", i, r.Enabled, r.Keyword, r.Value.Pattern))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func checkRule(table string, i int, enabled bool, keyword, value string) error {
	if !enabled {
		return nil
	}
	if strings.TrimSpace(keyword) == "" {
		return fmt.Errorf("%s[%d]: keyword is required", table, i)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s[%d]: value is required", table, i)
	}
	return nil
}

// Settings reads and writes the rule tables for the settings screen
type Settings struct {
	store Store
}

// NewSettings creates a settings service
func NewSettings(store Store) *Settings {
	return &Settings{store: store}
}

// Get returns the saved tables, falling back to stock tables per category
func (s *Settings) Get(ctx context.Context) (*Config, error) {
	cfg, err := s.store.LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load smart parsing config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// Save validates and persists the tables
func (s *Settings) Save(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save smart parsing config: %w", err)
	}
	return nil
}

// Reset restores and persists the stock tables
func (s *Settings) Reset(ctx context.Context) (*Config, error) {
	cfg := DefaultConfig()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("reset smart parsing config: %w", err)
	}
	return cfg, nil
}
