package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hrygo/lifesaver/plugin/ai/timeout"
)

// EnvPrefix is the prefix of every environment variable read by FromViper.
const EnvPrefix = "LIFESAVER"

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// Driver is the session store driver (memory, sqlite or postgres)
	Driver string
	// DSN points to where sessions are stored
	DSN string
	// Version is the current version of server
	Version string
	// ProtocolsFile optionally points to a YAML file of additional protocols
	ProtocolsFile string

	// Reasoner Configuration
	LLMProvider string // LIFESAVER_LLM_PROVIDER (default: openai; "rule" disables the LLM)
	LLMAPIKey   string // LIFESAVER_LLM_API_KEY
	LLMBaseURL  string // LIFESAVER_LLM_BASE_URL (default: https://api.openai.com/v1)
	LLMModel    string // LIFESAVER_LLM_MODEL (default: gpt-4o-mini)

	// Orchestration Configuration
	ConfidenceThreshold float64       // LIFESAVER_CONFIDENCE_THRESHOLD (default: 0.6)
	ClarificationCap    int           // LIFESAVER_CLARIFICATION_CAP (default: 3)
	ReasonerTimeout     time.Duration // LIFESAVER_REASONER_TIMEOUT (default: 15s)
	LookupTimeout       time.Duration // LIFESAVER_LOOKUP_TIMEOUT (default: 5s)
	RetryBackoff        time.Duration // LIFESAVER_RETRY_BACKOFF (default: 300ms)

	// Ingress Configuration
	RateLimit float64 // LIFESAVER_RATE_LIMIT turns per second per session (default: 2)
	RateBurst int     // LIFESAVER_RATE_BURST (default: 5)

	// Retention Configuration
	SessionRetention time.Duration // LIFESAVER_SESSION_RETENTION (default: 72h)
	CleanupInterval  time.Duration // LIFESAVER_CLEANUP_INTERVAL (default: 1h)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if a remote reasoner is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMProvider != "rule" && p.LLMAPIKey != ""
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "demo")
	v.SetDefault("addr", "")
	v.SetDefault("port", 8081)
	v.SetDefault("data", "")
	v.SetDefault("driver", "memory")
	v.SetDefault("dsn", "")
	v.SetDefault("protocols_file", "")
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("confidence_threshold", timeout.DefaultConfidenceThreshold)
	v.SetDefault("clarification_cap", timeout.DefaultClarificationCap)
	v.SetDefault("reasoner_timeout", timeout.ReasonerCallTimeout)
	v.SetDefault("lookup_timeout", timeout.LookupTimeout)
	v.SetDefault("retry_backoff", timeout.RetryBackoff)
	v.SetDefault("rate_limit", 2.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("session_retention", 72*time.Hour)
	v.SetDefault("cleanup_interval", time.Hour)
}

// NewViper returns a viper instance reading LIFESAVER_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper loads configuration from v.
func (p *Profile) FromViper(v *viper.Viper) {
	p.Mode = v.GetString("mode")
	p.Addr = v.GetString("addr")
	p.Port = v.GetInt("port")
	p.Data = v.GetString("data")
	p.Driver = v.GetString("driver")
	p.DSN = v.GetString("dsn")
	p.ProtocolsFile = v.GetString("protocols_file")

	p.LLMProvider = v.GetString("llm_provider")
	p.LLMAPIKey = v.GetString("llm_api_key")
	p.LLMBaseURL = v.GetString("llm_base_url")
	p.LLMModel = v.GetString("llm_model")

	p.ConfidenceThreshold = v.GetFloat64("confidence_threshold")
	p.ClarificationCap = v.GetInt("clarification_cap")
	p.ReasonerTimeout = v.GetDuration("reasoner_timeout")
	p.LookupTimeout = v.GetDuration("lookup_timeout")
	p.RetryBackoff = v.GetDuration("retry_backoff")

	p.RateLimit = v.GetFloat64("rate_limit")
	p.RateBurst = v.GetInt("rate_burst")

	p.SessionRetention = v.GetDuration("session_retention")
	p.CleanupInterval = v.GetDuration("cleanup_interval")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes defaults and rejects unusable settings.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "":
		p.Driver = "memory"
	case "memory", "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold > 1 {
		p.ConfidenceThreshold = timeout.DefaultConfidenceThreshold
	}
	if p.ClarificationCap <= 0 {
		p.ClarificationCap = timeout.DefaultClarificationCap
	}
	if p.ReasonerTimeout <= 0 {
		p.ReasonerTimeout = timeout.ReasonerCallTimeout
	}
	if p.LookupTimeout <= 0 {
		p.LookupTimeout = timeout.LookupTimeout
	}
	if p.RetryBackoff < 0 {
		p.RetryBackoff = timeout.RetryBackoff
	}
	if p.RateBurst <= 0 {
		p.RateBurst = 1
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("lifesaver_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}

	return nil
}
