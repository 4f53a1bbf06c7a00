package smartparse

import (
	"sync"
	"testing"
)

func TestParseLine_EndToEnd(t *testing.T) {
	got := ParseLine("Belladonna 30 1dr drops tds for 10 days", DefaultConfig())

	want := Line{
		Medicine:     "Belladonna",
		Potency:      "30",
		Quantity:     "1dr",
		DoseForm:     "drops",
		DosePattern:  "1-1-1",
		Frequency:    "Daily",
		Duration:     "10 days",
		DurationDays: 10,
		Bottles:      1,
	}
	got.Matched = 0
	if got != want {
		t.Errorf("ParseLine() = %+v, want %+v", got, want)
	}
}

func TestParseLine_OverridesEveryCategory(t *testing.T) {
	got := ParseLine("Arnica 200 2dr tab bd for 7 days", DefaultConfig())

	if got.Quantity != "2dr" {
		t.Errorf("Quantity = %q, want 2dr", got.Quantity)
	}
	if got.DoseForm != "tablet" {
		t.Errorf("DoseForm = %q, want tablet", got.DoseForm)
	}
	if got.DosePattern != "1-0-1" {
		t.Errorf("DosePattern = %q, want 1-0-1", got.DosePattern)
	}
	if got.Duration != "7 days" || got.DurationDays != 7 {
		t.Errorf("Duration = %q/%d, want 7 days/7", got.Duration, got.DurationDays)
	}
	for _, m := range []Match{MatchMedicine, MatchPotency, MatchQuantity, MatchDoseForm, MatchDosePattern, MatchFrequency, MatchDuration} {
		if !got.Matched.Has(m) {
			t.Errorf("Matched missing bit %b", m)
		}
	}
}

func TestParseLine_Defaults(t *testing.T) {
	got := ParseLine("Sulphur", DefaultConfig())

	if got.Medicine != "Sulphur" || got.Potency != "" {
		t.Errorf("Medicine/Potency = %q/%q", got.Medicine, got.Potency)
	}
	if got.Quantity != DefaultQuantity || got.DoseForm != DefaultDoseForm ||
		got.DosePattern != DefaultDosePattern || got.Frequency != DefaultFrequency ||
		got.Duration != DefaultDuration || got.DurationDays != DefaultDurationDays ||
		got.Bottles != DefaultBottles {
		t.Errorf("defaults not retained: %+v", got)
	}
	if got.Matched != MatchMedicine {
		t.Errorf("Matched = %b, want only medicine", got.Matched)
	}
}

func TestParseLine_MedicineDetection(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantMedicine string
		wantPotency  string
	}{
		{"numeric first token", "200 2dr pills", "", ""},
		{"hyphenated first token", "1-1-1 for 7 days", "", ""},
		{"non numeric second token", "Nux vomica 30", "Nux", ""},
		{"potency", "Rhus 1000 1dr", "Rhus", "1000"},
		{"potency with suffix is not potency", "Rhus 30c", "Rhus", ""},
		{"extra whitespace", "  Arnica   200  ", "Arnica", "200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLine(tt.text, DefaultConfig())
			if got.Medicine != tt.wantMedicine {
				t.Errorf("Medicine = %q, want %q", got.Medicine, tt.wantMedicine)
			}
			if got.Potency != tt.wantPotency {
				t.Errorf("Potency = %q, want %q", got.Potency, tt.wantPotency)
			}
		})
	}
}

func TestParseLine_FirstRuleWins(t *testing.T) {
	cfg := &Config{
		Quantities: []Rule[string]{
			{Keyword: "dr", Value: "short", Enabled: true},
			{Keyword: "2dr", Value: "long", Enabled: true},
		},
	}
	// "dr" is not a whole word in "2dr", so the longer rule is the only match
	if got := ParseLine("Arnica 200 2dr", cfg).Quantity; got != "long" {
		t.Errorf("Quantity = %q, want long", got)
	}

	cfg.Quantities = []Rule[string]{
		{Keyword: "1 bottle", Value: "first", Enabled: true},
		{Keyword: "bottle", Value: "second", Enabled: true},
	}
	if got := ParseLine("Arnica 200 1 bottle", cfg).Quantity; got != "first" {
		t.Errorf("Quantity = %q, want first", got)
	}

	cfg.Quantities = []Rule[string]{
		{Keyword: "bottle", Value: "second", Enabled: true},
		{Keyword: "1 bottle", Value: "first", Enabled: true},
	}
	if got := ParseLine("Arnica 200 1 bottle", cfg).Quantity; got != "second" {
		t.Errorf("Quantity = %q, want second (list order beats keyword length)", got)
	}
}

func TestParseLine_DisabledAndBlankRules(t *testing.T) {
	cfg := &Config{
		DoseForms: []Rule[string]{
			{Keyword: "drops", Value: "disabled", Enabled: false},
			{Keyword: "   ", Value: "blank", Enabled: true},
			{Keyword: "drops", Value: "drops", Enabled: true},
		},
	}
	if got := ParseLine("Arnica drops", cfg).DoseForm; got != "drops" {
		t.Errorf("DoseForm = %q, want drops", got)
	}
}

func TestParseLine_KeywordsAreLiteral(t *testing.T) {
	cfg := &Config{
		Quantities: []Rule[string]{
			{Keyword: "1.5oz", Value: "1.5oz", Enabled: true},
			{Keyword: "1/2oz", Value: "0.5oz", Enabled: true},
		},
	}
	// "." must not act as a wildcard
	if got := ParseLine("Arnica 1x5oz", cfg); got.Matched.Has(MatchQuantity) {
		t.Errorf("Quantity matched %q on 1x5oz", got.Quantity)
	}
	if got := ParseLine("Arnica 1/2OZ", cfg).Quantity; got != "0.5oz" {
		t.Errorf("Quantity = %q, want 0.5oz", got)
	}
}

func TestParseLine_WordBoundary(t *testing.T) {
	// "od" must not fire inside "blood" and "hs" must not fire inside "months"
	got := ParseLine("Ferrum 6 for blood 2 months", DefaultConfig())
	if got.Matched.Has(MatchDosePattern) {
		t.Errorf("DosePattern matched %q inside a word", got.DosePattern)
	}
	if got.DurationDays != 60 {
		t.Errorf("DurationDays = %d, want 60", got.DurationDays)
	}
}

func TestParseLine_EmptyCategoryUsesDefaults(t *testing.T) {
	got := ParseLine("Arnica 200 globules qid", &Config{})
	if got.DoseForm != "globules" || got.DosePattern != "1-1-1-1" {
		t.Errorf("got %q/%q, want globules/1-1-1-1", got.DoseForm, got.DosePattern)
	}
}

func TestParseLine_SOS(t *testing.T) {
	got := ParseLine("Aconite 30 sos", DefaultConfig())
	if got.DosePattern != "as needed" || got.Frequency != FrequencySOS {
		t.Errorf("got %q/%q, want as needed/SOS", got.DosePattern, got.Frequency)
	}
}

func TestParseLine_CountWordBeatsNeeded(t *testing.T) {
	cfg := &Config{DosePatterns: []Rule[DosePattern]{
		{ID: "1", Keyword: "bdp", Value: DosePattern{"1-0-1", "Twice a day when needed"}, Enabled: true},
	}}
	got := ParseLine("Arnica 200 bdp", cfg)
	if got.DosePattern != "1-0-1" || got.Frequency != DefaultFrequency {
		t.Errorf("got %q/%q, want 1-0-1/%s", got.DosePattern, got.Frequency, DefaultFrequency)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		text     string
		wantText string
		wantDays int
		wantOK   bool
	}{
		{"10 days", "10 days", 10, true},
		{"1 day", "1 day", 1, true},
		{"2 weeks", "2 weeks", 14, true},
		{"1 month", "1 month", 30, true},
		{"3 hours", "3 hours", 0, true},
		{"for 5DAYS", "5 days", 5, true},
		{"1 weeks", "1 week", 7, true},
		{"tds", "", 0, false},
		{"99999999999999999999 days", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			text, days, ok := ParseDuration(tt.text)
			if text != tt.wantText || days != tt.wantDays || ok != tt.wantOK {
				t.Errorf("ParseDuration(%q) = %q, %d, %v; want %q, %d, %v",
					tt.text, text, days, ok, tt.wantText, tt.wantDays, tt.wantOK)
			}
		})
	}
}

// Once, twice, three and four times a day all resolve to the same label.
// Asserted as-is so a change to distinct labels is a visible decision.
func TestInferFrequency_CountWordsCollapseToDaily(t *testing.T) {
	tests := []struct {
		description string
		want        string
		wantOK      bool
	}{
		{"Once a day", "Daily", true},
		{"Twice a day", "Daily", true},
		{"Three times a day", "Daily", true},
		{"Four times a day", "Daily", true},
		{"At bedtime", "Daily", true},
		{"Every night", "Daily", true},
		{"As needed", "SOS", true},
		{"Four pills each time", "Daily", true},
		{"Two pills each time", "", false},
		{"Twice a day as needed", "Daily", true},
		{"Once at night if needed", "Daily", true},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, ok := InferFrequency(tt.description)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("InferFrequency(%q) = %q, %v; want %q, %v", tt.description, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParser_ConcurrentUse(t *testing.T) {
	p := NewParser(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := p.Parse("Arnica 200 2dr pills tds for 7 days"); got.Quantity != "2dr" {
				t.Errorf("Quantity = %q", got.Quantity)
			}
		}()
	}
	wg.Wait()
}
