package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/tokenwise/internal/store"
)

// Config holds all tokenwise configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Budget     BudgetConfig     `toml:"budget"`
	Models     ModelsConfig     `toml:"models"`
	Cache      CacheConfig      `toml:"cache"`
	Complexity ComplexityConfig `toml:"complexity"`
	Lock       LockConfig       `toml:"lock"`
	Remote     RemoteConfig     `toml:"remote"`
	Pricing    PricingOverrides `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	RepoPath  string `toml:"repo_path,omitempty"`
	StateDir  string `toml:"state_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// BudgetConfig holds spend targets and downgrade policy.
type BudgetConfig struct {
	MonthlyTarget float64 `toml:"monthly_target"`
	DailyTarget   float64 `toml:"daily_target,omitempty"`
	WarnPercent   float64 `toml:"warn_percent"`
	AutoDowngrade bool    `toml:"auto_downgrade"`
	Currency      string  `toml:"currency"`
	Backend       string  `toml:"backend"`
}

// ModelsConfig maps complexity tiers (and optionally pipeline roles) to model ids.
type ModelsConfig struct {
	Low    string            `toml:"low"`
	Medium string            `toml:"medium"`
	High   string            `toml:"high"`
	Roles  map[string]string `toml:"roles,omitempty"`
}

// CacheConfig holds context cache session policy.
type CacheConfig struct {
	MaxFiles         int      `toml:"max_files"`
	TTL              Duration `toml:"ttl"`
	Overflow         string   `toml:"overflow"`
	MaxSessions      int      `toml:"max_sessions"`
	ArchiveExpired   bool     `toml:"archive_expired"`
	MaxFileBytes     int64    `toml:"max_file_bytes"`
	AllowedExt       []string `toml:"allowed_ext"`
	RespectGitignore bool     `toml:"respect_gitignore"`
}

// ComplexityConfig holds keyword indicators and thresholds for tier scoring.
type ComplexityConfig struct {
	High                []string `toml:"high"`
	Medium              []string `toml:"medium"`
	Low                 []string `toml:"low"`
	Patterns            []string `toml:"patterns"`
	GoalWordsHigh       int      `toml:"goal_words_high"`
	GoalWordsMedium     int      `toml:"goal_words_medium"`
	ContextTokensHigh   int64    `toml:"context_tokens_high"`
	ContextTokensMedium int64    `toml:"context_tokens_medium"`
}

// LockConfig bounds waiting on the shared state directory.
type LockConfig struct {
	Timeout Duration `toml:"timeout"`
	Retries int      `toml:"retries"`
}

// RemoteConfig holds model provider settings.
type RemoteConfig struct {
	AnthropicAPIKey  string   `toml:"anthropic_api_key,omitempty"`
	AnthropicBaseURL string   `toml:"anthropic_base_url,omitempty"`
	OpenAIAPIKey     string   `toml:"openai_api_key,omitempty"`
	OpenAIBaseURL    string   `toml:"openai_base_url,omitempty"`
	MaxAttempts      int      `toml:"max_attempts"`
	Timeout          Duration `toml:"timeout"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// Duration is a time.Duration that reads and writes as "24h" style strings.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Ledger backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Session overflow policies.
const (
	OverflowEvict  = "evict"
	OverflowReject = "reject"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			StateDir:  ".tokenwise",
			LogLevel:  "warn",
			LogFormat: "console",
		},
		Budget: BudgetConfig{
			MonthlyTarget: 100,
			DailyTarget:   5,
			WarnPercent:   80,
			AutoDowngrade: true,
			Currency:      "USD",
			Backend:       BackendJSONL,
		},
		Models: ModelsConfig{
			Low:    "claude-haiku-4-5",
			Medium: "claude-sonnet-4-5",
			High:   "claude-opus-4-5",
		},
		Cache: CacheConfig{
			MaxFiles:         40,
			TTL:              Duration{24 * time.Hour},
			Overflow:         OverflowEvict,
			MaxSessions:      10,
			MaxFileBytes:     200_000,
			AllowedExt:       []string{".go", ".svelte", ".ts", ".tsx", ".js", ".jsx", ".md", ".css", ".scss", ".py", ".toml", ".yaml", ".yml", ".json"},
			RespectGitignore: true,
		},
		Complexity: ComplexityConfig{
			High:   []string{"architecture", "refactor", "migration", "migrate", "security", "performance", "integration"},
			Medium: []string{"feature", "component", "api", "database", "ui", "endpoint"},
			Low:    []string{"fix", "style", "docs", "config", "typo", "comment", "rename"},
			Patterns: []string{
				`migrate.*database`,
				`refactor.*architecture`,
				`implement.*security.*framework`,
				`performance.*optimization.*across`,
				`integrate.*multiple.*services`,
			},
			GoalWordsHigh:       15,
			GoalWordsMedium:     8,
			ContextTokensHigh:   60_000,
			ContextTokensMedium: 15_000,
		},
		Lock: LockConfig{
			Timeout: Duration{5 * time.Second},
			Retries: 2,
		},
		Remote: RemoteConfig{
			MaxAttempts: 3,
			Timeout:     Duration{2 * time.Minute},
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tokenwise")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tokenwise")
}

// Path returns the full path to the default config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file at path (the default path when empty),
// returning defaults if it doesn't exist.
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is user-selected config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to disk atomically.
func Save(path string, cfg Config) error {
	if path == "" {
		path = Path()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return store.WriteFileAtomic(path, buf.Bytes(), 0o600)
}

// Exists returns true if a config file exists at path (the default when empty).
func Exists(path string) bool {
	if path == "" {
		path = Path()
	}
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks value ranges that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.Budget.MonthlyTarget < 0 || c.Budget.DailyTarget < 0 {
		errs = append(errs, errors.New("budget targets must not be negative"))
	}
	if c.Budget.WarnPercent <= 0 || c.Budget.WarnPercent > 100 {
		errs = append(errs, fmt.Errorf("budget.warn_percent = %v, want (0, 100]", c.Budget.WarnPercent))
	}
	if !slices.Contains([]string{BackendJSONL, BackendSQLite}, c.Budget.Backend) {
		errs = append(errs, fmt.Errorf("budget.backend = %q, want %q or %q", c.Budget.Backend, BackendJSONL, BackendSQLite))
	}
	if c.Cache.MaxFiles < 1 {
		errs = append(errs, fmt.Errorf("cache.max_files = %d, want >= 1", c.Cache.MaxFiles))
	}
	if c.Cache.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("cache.max_sessions = %d, want >= 1", c.Cache.MaxSessions))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if !slices.Contains([]string{OverflowEvict, OverflowReject}, c.Cache.Overflow) {
		errs = append(errs, fmt.Errorf("cache.overflow = %q, want %q or %q", c.Cache.Overflow, OverflowEvict, OverflowReject))
	}
	if c.Models.Low == "" || c.Models.Medium == "" || c.Models.High == "" {
		errs = append(errs, errors.New("models.low, models.medium and models.high are required"))
	}
	if c.Lock.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("lock.timeout must be positive"))
	}
	if c.Lock.Retries < 0 {
		errs = append(errs, errors.New("lock.retries must not be negative"))
	}
	return errors.Join(errs...)
}

// ResolveRepoPath returns the repository root in priority order:
// explicit flag, TOKENWISE_REPO_PATH, REPO_PATH, config, current directory.
func ResolveRepoPath(cfg Config, flag string) string {
	for _, p := range []string{flag, os.Getenv("TOKENWISE_REPO_PATH"), os.Getenv("REPO_PATH"), cfg.General.RepoPath} {
		if p != "" {
			return p
		}
	}
	wd, _ := os.Getwd()
	return wd
}

// StateDir returns the state directory, resolved against repoRoot when relative.
func StateDir(cfg Config, repoRoot string) string {
	dir := cfg.General.StateDir
	if dir == "" {
		dir = ".tokenwise"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoRoot, dir)
}

// GetAnthropicAPIKey returns the API key from env var or config, in that order.
func GetAnthropicAPIKey(cfg Config) string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return cfg.Remote.AnthropicAPIKey
}

// GetOpenAIAPIKey returns the API key from env var or config, in that order.
func GetOpenAIAPIKey(cfg Config) string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return cfg.Remote.OpenAIAPIKey
}

// ModelForRole returns the role-specific model when configured.
func (m ModelsConfig) ModelForRole(role string) (string, bool) {
	id, ok := m.Roles[role]
	return id, ok && id != ""
}

// Configured returns every distinct model id named in the config.
func (m ModelsConfig) Configured() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(m.Low)
	add(m.Medium)
	add(m.High)
	roles := make([]string, 0, len(m.Roles))
	for r := range m.Roles {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	for _, r := range roles {
		add(m.Roles[r])
	}
	return out
}
