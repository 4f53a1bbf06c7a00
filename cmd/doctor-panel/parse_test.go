package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCmd_DefaultRules(t *testing.T) {
	cmd := parseCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"Arnica", "200", "2dr", "pills", "for", "7", "days"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var got struct {
		Medicine     string   `json:"medicine"`
		DurationDays int      `json:"duration_days"`
		Matched      []string `json:"matched"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.DurationDays != 7 {
		t.Errorf("durationDays = %d, want 7", got.DurationDays)
	}
	if len(got.Matched) == 0 {
		t.Error("expected matched categories")
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"quantities":[{"keyword":"","value":"1dr","enabled":true}]}`), 0o600)
	if _, err := loadRules(bad); err == nil {
		t.Error("expected validation error for an enabled rule without keyword")
	}

	if _, err := loadRules(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}

	cfg, err := loadRules("")
	if err != nil || cfg == nil {
		t.Fatalf("loadRules(\"\") = %v, %v", cfg, err)
	}
}
