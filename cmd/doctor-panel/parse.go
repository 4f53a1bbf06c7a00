package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/homeopms/go-smartrx/internal/api/handlers"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse a smart-entry line and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesFile, _ := cmd.Flags().GetString("rules")
			cfg, err := loadRules(rulesFile)
			if err != nil {
				return err
			}

			line := smartparse.ParseLine(strings.Join(args, " "), cfg)
			matched := line.Categories()
			if matched == nil {
				matched = []string{}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handlers.ParseResponse{Line: line, Matched: matched})
		},
	}
	cmd.Flags().String("rules", "", "JSON file with rule tables (defaults to the built-in rules)")
	return cmd
}

func loadRules(path string) (*smartparse.Config, error) {
	if path == "" {
		return smartparse.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var cfg smartparse.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}
