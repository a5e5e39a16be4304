package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"market-metrics-lab/internal/domain"
)

// Storage backend names accepted in run files.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Config is one run file: which symbols to process over which window, the
// metric graph to build over them, where bars come from and results go.
type Config struct {
	Frequency int    `yaml:"frequency_seconds"`
	Start     string `yaml:"start"` // RFC3339
	End       string `yaml:"end"`   // RFC3339
	LogLevel  string `yaml:"log_level"`

	Symbols []SymbolConfig `yaml:"symbols"`
	Metrics []MetricConfig `yaml:"metrics"`
	Storage StorageConfig  `yaml:"storage"`
	Report  ReportConfig   `yaml:"report"`

	startMs int64
	endMs   int64
}

// SymbolConfig names one bar stream; the run-level frequency applies to all.
type SymbolConfig struct {
	ProductType string `yaml:"product_type"`
	Symbol      string `yaml:"symbol"`
}

// MetricConfig is one declarative metric definition. Definitions are ordered:
// input, left and right may name the output of any EARLIER definition, which
// is how composite graphs are declared.
type MetricConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Column   string   `yaml:"column,omitempty"`
	Input    string   `yaml:"input,omitempty"`
	Left     string   `yaml:"left,omitempty"`
	Right    string   `yaml:"right,omitempty"`
	Length   *int     `yaml:"length,omitempty"`
	Lag      *int     `yaml:"lag,omitempty"`
	HalfLife *float64 `yaml:"half_life,omitempty"`
}

// StorageConfig selects the bar/metric store backend. DSNs come from the
// environment (loaded via .env in the mains), never from the run file.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	PostgresDSNEnv   string `yaml:"postgres_dsn_env"`
	ClickHouseDSNEnv string `yaml:"clickhouse_dsn_env"`
}

// ReportConfig names output files; empty paths skip that report.
type ReportConfig struct {
	SummaryCSV      string `yaml:"summary_csv"`
	SummaryMarkdown string `yaml:"summary_markdown"`
	PointsCSV       string `yaml:"points_csv"`
}

// Load reads a YAML run file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration and caches the parsed time window.
func (c *Config) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency_seconds must be positive, got %d", c.Frequency)
	}

	start, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", c.Start, err)
	}
	end, err := time.Parse(time.RFC3339, c.End)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", c.End, err)
	}
	if !end.After(start) {
		return fmt.Errorf("end %q must be after start %q", c.End, c.Start)
	}
	c.startMs = start.UnixMilli()
	c.endMs = end.UnixMilli()

	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	for i, s := range c.Symbols {
		id := domain.SymbolID{
			ProductType: domain.ProductType(s.ProductType),
			Symbol:      s.Symbol,
			Frequency:   c.Frequency,
		}
		if err := id.Validate(); err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}
	}

	if len(c.Metrics) == 0 {
		return fmt.Errorf("at least one metric must be configured")
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSNEnv == "" {
			return fmt.Errorf("storage backend %q requires postgres_dsn_env", c.Storage.Backend)
		}
	case BackendClickHouse:
		if c.Storage.ClickHouseDSNEnv == "" {
			return fmt.Errorf("storage backend %q requires clickhouse_dsn_env", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}

// validateMetrics checks each definition and the ordering of references.
func (c *Config) validateMetrics() error {
	defined := make(map[string]struct{}, len(c.Metrics))

	// sourceRef reports whether ref is resolvable at this position:
	// a bar column or the output of an earlier definition.
	sourceRef := func(ref string) bool {
		if _, ok := defined[ref]; ok {
			return true
		}
		return domain.ValidColumn(ref)
	}

	for i, m := range c.Metrics {
		where := fmt.Sprintf("metric %d (%q)", i, m.Name)

		if m.Name == "" {
			return fmt.Errorf("metric %d: name is required", i)
		}
		if _, dup := defined[m.Name]; dup {
			return fmt.Errorf("%s: duplicate name", where)
		}
		if domain.ValidColumn(m.Name) {
			return fmt.Errorf("%s: name collides with a bar column", where)
		}

		switch m.Kind {
		case domain.MetricKindSubtract:
			if m.Left == "" || m.Right == "" {
				return fmt.Errorf("%s: kind %s requires left and right", where, m.Kind)
			}
			if !sourceRef(m.Left) {
				return fmt.Errorf("%s: left %q is neither a bar column nor an earlier metric", where, m.Left)
			}
			if !sourceRef(m.Right) {
				return fmt.Errorf("%s: right %q is neither a bar column nor an earlier metric", where, m.Right)
			}
		case domain.MetricKindDuplicate, domain.MetricKindAccumulate,
			domain.MetricKindDifference, domain.MetricKindSMA, domain.MetricKindEWMA:
			if (m.Column == "") == (m.Input == "") {
				return fmt.Errorf("%s: kind %s requires exactly one of column or input", where, m.Kind)
			}
			if m.Column != "" && !domain.ValidColumn(m.Column) {
				return fmt.Errorf("%s: unknown bar column %q", where, m.Column)
			}
			if m.Input != "" {
				if _, ok := defined[m.Input]; !ok {
					return fmt.Errorf("%s: input %q does not name an earlier metric", where, m.Input)
				}
			}
		default:
			return fmt.Errorf("%s: unknown kind %q", where, m.Kind)
		}

		switch m.Kind {
		case domain.MetricKindSMA:
			if m.Length == nil || *m.Length < 1 {
				return fmt.Errorf("%s: kind %s requires length >= 1", where, m.Kind)
			}
		case domain.MetricKindDifference:
			if m.Lag == nil || *m.Lag < 1 {
				return fmt.Errorf("%s: kind %s requires lag >= 1", where, m.Kind)
			}
		case domain.MetricKindEWMA:
			if m.HalfLife == nil || *m.HalfLife <= 0 {
				return fmt.Errorf("%s: kind %s requires half_life > 0", where, m.Kind)
			}
		}

		defined[m.Name] = struct{}{}
	}

	return nil
}

// Range returns the run window as Unix-millisecond bounds, inclusive.
// Only valid after Validate.
func (c *Config) Range() (startMs, endMs int64) {
	return c.startMs, c.endMs
}

// SymbolIDs returns the configured bar stream identities with the run
// frequency applied.
func (c *Config) SymbolIDs() []domain.SymbolID {
	ids := make([]domain.SymbolID, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		ids = append(ids, domain.SymbolID{
			ProductType: domain.ProductType(s.ProductType),
			Symbol:      s.Symbol,
			Frequency:   c.Frequency,
		})
	}
	return ids
}

// MetricSpecs converts the metric definitions in declaration order.
func (c *Config) MetricSpecs() []domain.MetricSpec {
	specs := make([]domain.MetricSpec, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		specs = append(specs, domain.MetricSpec{
			Name:     m.Name,
			Kind:     m.Kind,
			Column:   m.Column,
			Input:    m.Input,
			Left:     m.Left,
			Right:    m.Right,
			Length:   m.Length,
			Lag:      m.Lag,
			HalfLife: m.HalfLife,
		})
	}
	return specs
}
