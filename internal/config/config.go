package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Account  AccountConfig  `mapstructure:"account"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Hook     HookConfig     `mapstructure:"hook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AccountConfig identifies the shared account that owns the repositories,
// the authorized_keys file and the receiver program.
type AccountConfig struct {
	// User is the shared account name (default "git")
	User string `mapstructure:"user"`

	// Home overrides the account home directory. When empty the home is
	// resolved from the system account database, falling back to
	// /home/<user>.
	Home string `mapstructure:"home"`
}

// ReceiverConfig controls how the external receiver program is invoked
type ReceiverConfig struct {
	// Path to the receiver program. When empty, <home>/receiver is used.
	Path string `mapstructure:"path"`

	// Strict rejects the push when the receiver exits non-zero. The
	// default treats the receiver as a notification sink: its exit
	// status never gates a push.
	Strict bool `mapstructure:"strict"`
}

// HookConfig controls pre-receive hook behaviour
type HookConfig struct {
	// OnlyRef limits receiver delivery to one ref (e.g. refs/heads/master).
	// Empty delivers for every updated ref.
	OnlyRef string `mapstructure:"only_ref"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Output   string `mapstructure:"output"` // console, file
	Format   string `mapstructure:"format"` // json, console
	FilePath string `mapstructure:"file_path"`
}

// HomeDir returns the account home directory, resolving it from the
// system account database when not configured explicitly.
func (c *Config) HomeDir() string {
	if c.Account.Home != "" {
		return c.Account.Home
	}
	if u, err := user.Lookup(c.Account.User); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return filepath.Join("/home", c.Account.User)
}

// ReceiverPath returns the absolute path of the receiver program
func (c *Config) ReceiverPath() string {
	if c.Receiver.Path != "" {
		return c.Receiver.Path
	}
	return filepath.Join(c.HomeDir(), "receiver")
}

// AuthorizedKeysPath returns the path of the account's authorized_keys file
func (c *Config) AuthorizedKeysPath() string {
	return filepath.Join(c.HomeDir(), ".ssh", "authorized_keys")
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Account.User == "" {
		return fmt.Errorf("account user must not be empty")
	}
	if strings.ContainsAny(c.Account.User, " \t'\"") {
		return fmt.Errorf("account user %q contains unsafe characters", c.Account.User)
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Precedence, lowest to highest: defaults, config file, GITUSER
// compatibility variable, GITRECEIVE_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("GITRECEIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("gitreceive")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gitreceive")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found; rely on defaults and env vars
		}
	}

	// GITUSER predates the GITRECEIVE_ variables and is what the forced
	// command embeds, so it wins over file config but not over an
	// explicit GITRECEIVE_ACCOUNT_USER.
	if gitUser := os.Getenv("GITUSER"); gitUser != "" && os.Getenv("GITRECEIVE_ACCOUNT_USER") == "" {
		v.Set("account.user", gitUser)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("account.user", "git")
	v.SetDefault("account.home", "")

	v.SetDefault("receiver.path", "")
	v.SetDefault("receiver.strict", false)

	v.SetDefault("hook.only_ref", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file_path", "")
}
