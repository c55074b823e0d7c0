package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// #region config
// Config is the process configuration, read from MUSE_GATE_* variables.
type Config struct {
	HTTPAddr string `env:"MUSE_GATE_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"MUSE_GATE_GRPC_ADDR" envDefault:":9090"`
	DBPath   string `env:"MUSE_GATE_DB_PATH" envDefault:"muse_gate.db"`

	EvaluatorURL     string        `env:"MUSE_GATE_EVALUATOR_URL" envDefault:"https://api.dify.ai/v1"`
	EvaluatorKey     string        `env:"MUSE_GATE_EVALUATOR_KEY"`
	EvaluatorTimeout time.Duration `env:"MUSE_GATE_EVALUATOR_TIMEOUT" envDefault:"20s"`
	// PersonaIDs maps stage to upstream app id, e.g. "book_review:app-123,letter_writing:app-456".
	PersonaIDs  map[string]string `env:"MUSE_GATE_PERSONAS"`
	PersonaFile string            `env:"MUSE_GATE_PERSONA_FILE"`

	MeaninglessRatio float64 `env:"MUSE_GATE_MEANINGLESS_RATIO" envDefault:"0.5"`
	MinRatioLength   int     `env:"MUSE_GATE_MIN_RATIO_LENGTH" envDefault:"10"`

	AuditSinks       []string      `env:"MUSE_GATE_AUDIT_SINKS" envDefault:"sqlite" envSeparator:","`
	AuditTimeout     time.Duration `env:"MUSE_GATE_AUDIT_TIMEOUT" envDefault:"5s"`
	AuditMaxInFlight int64         `env:"MUSE_GATE_AUDIT_MAX_IN_FLIGHT" envDefault:"64"`
	RedisURL         string        `env:"MUSE_GATE_REDIS_URL"`
	RedisStream      string        `env:"MUSE_GATE_REDIS_STREAM" envDefault:"musegate:audit"`
	RedisMaxLen      int64         `env:"MUSE_GATE_REDIS_MAXLEN" envDefault:"100000"`

	JWTSecret string `env:"MUSE_GATE_JWT_SECRET"`
	LogLevel  string `env:"MUSE_GATE_LOG_LEVEL" envDefault:"info"`

	// filePersonas is loaded from PersonaFile by Load.
	filePersonas map[string]evaluator.Persona
}

// Audit sink names accepted in MUSE_GATE_AUDIT_SINKS.
const (
	SinkSQLite = "sqlite"
	SinkRedis  = "redis"
)
// #endregion config

// #region load
// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment and the persona file it points to.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.LoadPersonaFile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type personaFile struct {
	Personas map[string]evaluator.Persona `yaml:"personas"`
}

// LoadPersonaFile reads PersonaFile when set. Safe to call again after a
// flag changes the path.
func (c *Config) LoadPersonaFile() error {
	c.filePersonas = nil
	if c.PersonaFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.PersonaFile)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	var pf personaFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse persona file %s: %w", c.PersonaFile, err)
	}
	c.filePersonas = pf.Personas
	return nil
}
// #endregion load

// #region derived
// Personas merges file personas with MUSE_GATE_PERSONAS. The env app id wins.
func (c Config) Personas() map[string]evaluator.Persona {
	out := make(map[string]evaluator.Persona, len(c.filePersonas)+len(c.PersonaIDs))
	for k, p := range c.filePersonas {
		out[strings.TrimSpace(k)] = p
	}
	for k, id := range c.PersonaIDs {
		k = strings.TrimSpace(k)
		p := out[k]
		p.AppID = strings.TrimSpace(id)
		out[k] = p
	}
	return out
}

// Evaluator returns the evaluator client settings.
func (c Config) Evaluator() evaluator.Config {
	return evaluator.Config{
		BaseURL:  c.EvaluatorURL,
		APIKey:   c.EvaluatorKey,
		Timeout:  c.EvaluatorTimeout,
		Personas: c.Personas(),
	}
}

// Classifier returns the screening thresholds.
func (c Config) Classifier() classifier.Config {
	return classifier.Config{
		MeaninglessRatio: c.MeaninglessRatio,
		MinRatioLength:   c.MinRatioLength,
	}
}

// Dispatcher returns the audit write bounds.
func (c Config) Dispatcher() logging.DispatcherConfig {
	return logging.DispatcherConfig{
		MaxInFlight:  c.AuditMaxInFlight,
		WriteTimeout: c.AuditTimeout,
	}
}

// HasSink reports whether name is among the configured audit sinks.
func (c Config) HasSink(name string) bool {
	for _, s := range c.AuditSinks {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}
// #endregion derived

// #region validate
// Validate reports every problem that would stop the gate serving requests.
func (c Config) Validate() error {
	var errs []error

	personas := c.Personas()
	for _, k := range stage.Kinds {
		p, ok := personas[string(k)]
		if !ok || (p.AppID == "" && p.APIKey == "") {
			errs = append(errs, fmt.Errorf("stage %s has no evaluator persona", k))
			continue
		}
		if p.APIKey == "" && c.EvaluatorKey == "" {
			errs = append(errs, fmt.Errorf("stage %s has no evaluator credential", k))
		}
	}
	for k := range personas {
		if _, err := stage.ParseKind(k); err != nil {
			errs = append(errs, fmt.Errorf("persona for unknown stage %q", k))
		}
	}

	if c.EvaluatorTimeout <= 0 {
		errs = append(errs, errors.New("evaluator timeout must be positive"))
	}
	if c.MeaninglessRatio <= 0 || c.MeaninglessRatio > 1 {
		errs = append(errs, fmt.Errorf("meaningless ratio %.2f outside (0, 1]", c.MeaninglessRatio))
	}
	if c.MinRatioLength <= 0 {
		errs = append(errs, errors.New("min ratio length must be positive"))
	}
	for _, s := range c.AuditSinks {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case SinkSQLite, SinkRedis, "":
		default:
			errs = append(errs, fmt.Errorf("unknown audit sink %q", s))
		}
	}
	if c.HasSink(SinkRedis) && c.RedisURL == "" {
		errs = append(errs, errors.New("redis audit sink needs MUSE_GATE_REDIS_URL"))
	}

	return errors.Join(errs...)
}
// #endregion validate
