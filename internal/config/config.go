// Package config loads the service settings from a YAML file, CONDUCTOR_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides: CONDUCTOR_REDIS_URL sets redis.url.
const EnvPrefix = "CONDUCTOR"

// DefaultSection holds the keys '##name' lookups without a section resolve to.
const DefaultSection = "default"

// Config is the typed view of the settings.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Stack     StackConfig     `mapstructure:"stack"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Lock      LockConfig      `mapstructure:"lock"`
	Redaction RedactionConfig `mapstructure:"redaction"`

	settings map[string]any
	file     string
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type QueuesConfig struct {
	Tasks   string `mapstructure:"tasks"`
	Results string `mapstructure:"results"`
	Reports string `mapstructure:"reports"`
}

type WorkflowsConfig struct {
	Dir       string `mapstructure:"dir"`
	Pattern   string `mapstructure:"pattern"`
	MaxPasses int    `mapstructure:"max_passes"`
}

type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// StackConfig locates the orchestration service. An empty URL disables the stack channel.
type StackConfig struct {
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AgentConfig holds the agent channel settings and the broker coordinates
// rendered into instance bootstrap scripts.
type AgentConfig struct {
	ResultTimeout  time.Duration `mapstructure:"result_timeout"`
	BrokerHost     string        `mapstructure:"broker_host"`
	BrokerUser     string        `mapstructure:"broker_user"`
	BrokerPassword string        `mapstructure:"broker_password"`
	BrokerVHost    string        `mapstructure:"broker_vhost"`
}

type DispatchConfig struct {
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type RegistryConfig struct {
	AllowOverride bool `mapstructure:"allow_override"`
}

// MetricsConfig configures the operational HTTP server. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedactionConfig lists key patterns masked in published results and reports.
type RedactionConfig struct {
	Patterns []string `mapstructure:"patterns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "conductor:")
	v.SetDefault("queues.tasks", "tasks")
	v.SetDefault("queues.results", "task-results")
	v.SetDefault("queues.reports", "task-reports")
	v.SetDefault("workflows.dir", "data/workflows")
	v.SetDefault("workflows.pattern", "*.xml")
	v.SetDefault("workflows.max_passes", 1000)
	v.SetDefault("templates.dir", "data/templates")
	v.SetDefault("stack.url", "")
	v.SetDefault("stack.poll_interval", time.Second)
	v.SetDefault("stack.timeout", 30*time.Minute)
	v.SetDefault("agent.result_timeout", 30*time.Minute)
	v.SetDefault("agent.broker_host", "")
	v.SetDefault("agent.broker_user", "")
	v.SetDefault("agent.broker_password", "")
	v.SetDefault("agent.broker_vhost", "")
	v.SetDefault("dispatch.flush_timeout", time.Duration(0))
	v.SetDefault("registry.allow_override", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("lock.enabled", false)
	v.SetDefault("lock.ttl", 10*time.Minute)
	v.SetDefault("redaction.patterns", []string{})
}

// Options selects the sources Load reads.
type Options struct {
	// File is an explicit configuration file. When empty, conductor.yaml is
	// searched in the working directory and its absence is not an error.
	File string
	// Flags maps configuration keys to command-line flags overriding them.
	Flags map[string]*pflag.Flag
}

// Load reads the configuration.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("conductor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.settings = v.AllSettings()
	cfg.file = v.ConfigFileUsed()
	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Queues.Tasks == "" || c.Queues.Results == "" || c.Queues.Reports == "" {
		errs = append(errs, errors.New("queues: tasks, results and reports must be named"))
	}
	if c.Workflows.MaxPasses < 0 {
		errs = append(errs, fmt.Errorf("workflows.max_passes: must not be negative, got %d", c.Workflows.MaxPasses))
	}
	if c.Stack.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("stack.poll_interval: must be positive, got %s", c.Stack.PollInterval))
	}
	return errors.Join(errs...)
}

// File returns the configuration file that was read, if any.
func (c *Config) File() string {
	return c.file
}

// Lookup resolves a dotted key against the whole settings tree. A key without a
// section is looked up in the default section. Keys are case-insensitive.
func (c *Config) Lookup(key string) (any, bool) {
	key = strings.ToLower(key)
	if !strings.Contains(key, ".") {
		key = DefaultSection + "." + key
	}
	var current any = c.settings
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}
