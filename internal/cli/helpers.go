package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/plugsite/plugsite/pkg/applog"
	"github.com/plugsite/plugsite/pkg/config"
	"github.com/plugsite/plugsite/pkg/orchestrator"
)

// These are set by cmd/plugsite/main.go from the root command's persistent
// flags, mirroring gotya's bridge-variable pattern.
var (
	ConfigPath   *string
	Verbose      *bool
	NoColor      *bool
	OutputFormat *string
)

// loadSession resolves the configuration (explicit path, or the per-user
// default) and opens an orchestrator Session against it.
func loadSession() (*orchestrator.Session, error) {
	path := ""
	if ConfigPath != nil {
		path = *ConfigPath
	}
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default config path: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	applog.Init(cfg.Settings.LogLevel, NoColor != nil && *NoColor)

	s, err := orchestrator.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	s.Hooks = orchestrator.Hooks{OnEvent: printEvent}
	return s, nil
}

func printEvent(e orchestrator.Event) {
	if e.ID != "" {
		fmt.Printf("%s: %s (%s)\n", e.Phase, e.Msg, e.ID)
		return
	}
	fmt.Printf("%s: %s\n", e.Phase, e.Msg)
}

func outputFormat() string {
	if OutputFormat != nil && *OutputFormat != "" {
		return strings.ToLower(*OutputFormat)
	}
	return "table"
}

// renderRows prints rows (each a slice of column values) either as a
// padded table, or marshaled as JSON/YAML of the given records, depending
// on the --output flag.
func renderRows(headers []string, rows [][]string, records interface{}) {
	switch outputFormat() {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
	case "yaml":
		_ = yaml.NewEncoder(os.Stdout).Encode(records)
	default:
		printTable(headers, rows)
	}
}

func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(headers, widths)
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	fmt.Println(strings.Repeat("-", total))
	for _, row := range rows {
		printRow(row, widths)
	}
}

func printRow(cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		parts[i] = fmt.Sprintf("%-*s", w, c)
	}
	fmt.Println(strings.Join(parts, "  "))
}

func sortedKeys(filenames []string) []string {
	out := append([]string(nil), filenames...)
	sort.Strings(out)
	return out
}
