package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/env"
	"github.com/loykin/svcmon/internal/logger"
	"github.com/loykin/svcmon/internal/manager"
	"github.com/loykin/svcmon/internal/process"
)

// DefaultPath is where the daemon config is looked up when --config is not
// given. A missing file there means "all defaults".
const DefaultPath = "/etc/svcmon/svcmon.toml"

// EnvPrefix prefixes environment overrides, e.g. SVCMON_COOLDOWN_WINDOW.
const EnvPrefix = "SVCMON"

// Config is the daemon configuration.
type Config struct {
	// ServicesFile is the legacy INI file with one section per service.
	ServicesFile string          `mapstructure:"services_file"`
	Services     []ServiceConfig `mapstructure:"services"`

	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	UseOSEnv bool     `mapstructure:"use_os_env"`

	Log       logger.Config   `mapstructure:"log"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Cooldown  CooldownConfig  `mapstructure:"cooldown"`
	Supervise SuperviseConfig `mapstructure:"supervise"`
	Lock      LockConfig      `mapstructure:"lock"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
	History   HistoryConfig   `mapstructure:"history"`

	// path of the file the config was read from, empty when defaults only
	path string
}

// ServiceConfig is an inline [[services]] table.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	ProcessName string `mapstructure:"processname"`
	ServiceName string `mapstructure:"servicename"`
	PIDFile     string `mapstructure:"pidfile"`
}

type AlertConfig struct {
	File      string `mapstructure:"file"`
	Syslog    bool   `mapstructure:"syslog"`
	SyslogTag string `mapstructure:"syslog_tag"`
}

type CooldownConfig struct {
	Path   string        `mapstructure:"path"`
	Format string        `mapstructure:"format"`
	Window time.Duration `mapstructure:"window"`
	DSN    string        `mapstructure:"dsn"`
}

type SuperviseConfig struct {
	RetryIterations int           `mapstructure:"retry_iterations"`
	RestartAfter    int           `mapstructure:"restart_after"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RestartTimeout  time.Duration `mapstructure:"restart_timeout"`
	RestartCommand  string        `mapstructure:"restart_command"`
	Lister          string        `mapstructure:"lister"`
}

type LockConfig struct {
	Path string `mapstructure:"path"`
}

type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	BasePath      string `mapstructure:"base_path"`
	TLSCert       string `mapstructure:"tls_cert"`
	TLSKey        string `mapstructure:"tls_key"`
	TLSMinVersion string `mapstructure:"tls_min_version"`
	// TLSSelfSigned generates tls_cert/tls_key on first start when absent.
	TLSSelfSigned bool   `mapstructure:"tls_self_signed"`
}

type HistoryConfig struct {
	DSN []string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("services_file", "/etc/monitor.conf")
	v.SetDefault("use_os_env", true)
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console", true)
	v.SetDefault("log.color", false)

	v.SetDefault("alert.file", "/var/log/routerServiceMonitor.log")
	v.SetDefault("alert.syslog", true)
	v.SetDefault("alert.syslog_tag", "monit")

	v.SetDefault("cooldown.path", cooldown.DefaultPath)
	v.SetDefault("cooldown.format", cooldown.FormatFlat)
	v.SetDefault("cooldown.window", cooldown.DefaultWindow)
	v.SetDefault("cooldown.dsn", "")

	p := manager.DefaultPolicy()
	v.SetDefault("supervise.retry_iterations", p.RetryIterations)
	v.SetDefault("supervise.restart_after", p.RestartAfter)
	v.SetDefault("supervise.retry_interval", p.RetryInterval)
	v.SetDefault("supervise.restart_timeout", process.DefaultRestartTimeout)
	v.SetDefault("supervise.restart_command", process.DefaultRestartCommand)
	v.SetDefault("supervise.lister", process.ListerPidof)

	v.SetDefault("lock.path", "/var/run/svcmon.lock")
	v.SetDefault("schedule.interval", manager.DefaultInterval)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9109")

	v.SetDefault("server.listen", "")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.tls_min_version", "")
	v.SetDefault("server.tls_self_signed", false)

	v.SetDefault("history.dsn", []string{})
}

// NewViper returns a viper instance with defaults and env overrides set up.
// When path is non-empty it is registered as the config file.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	}
	return v
}

// Load reads the TOML daemon config at path. An empty path, or a missing
// file at DefaultPath, yields the defaults.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)
	v := NewViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// ResolvePath returns path, or DefaultPath when path is empty and that file
// exists, or "" for defaults only.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// FromViper decodes and validates the config held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.path = v.ConfigFileUsed()
	c.expand()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Path returns the file the config was read from.
func (c *Config) Path() string { return c.path }

// Environ builds the environment for service manager commands from the OS
// environment (when use_os_env), env_files and env, in that order.
func (c *Config) Environ() ([]string, error) {
	e := c.environment()
	for _, f := range c.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return nil, fmt.Errorf("env file %s: %w", f, err)
		}
	}
	return e.Merge(c.Env), nil
}

func (c *Config) environment() *env.Env {
	e := env.New()
	if c.UseOSEnv {
		e.FromOS()
	}
	return e
}

// expand resolves ${VAR} in values that commonly carry credentials.
func (c *Config) expand() {
	e := c.environment()
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			e.WithSet(kv[:i], kv[i+1:])
		}
	}
	c.Cooldown.DSN = e.Expand(c.Cooldown.DSN)
	for i, d := range c.History.DSN {
		c.History.DSN[i] = e.Expand(d)
	}
}

// Policy returns the retry policy described by [supervise].
func (c *Config) Policy() manager.Policy {
	return manager.Policy{
		RetryIterations: c.Supervise.RetryIterations,
		RestartAfter:    c.Supervise.RestartAfter,
		RetryInterval:   c.Supervise.RetryInterval,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Supervise.RestartTimeout < 0 {
		errs = append(errs, errors.New("supervise.restart_timeout must not be negative"))
	}
	if _, err := process.NewLister(c.Supervise.Lister); err != nil {
		errs = append(errs, err)
	}
	if _, err := cooldown.NewCodec(c.Cooldown.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Cooldown.Window < 0 {
		errs = append(errs, errors.New("cooldown.window must not be negative"))
	}
	if c.Schedule.Interval < 0 {
		errs = append(errs, errors.New("schedule.interval must not be negative"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	seen := map[string]bool{}
	for i, s := range c.Services {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d] requires name", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate service %q", s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}
