package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/driftwire/driftwire/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAuthTimeout = 10 * time.Second
	defaultPathPrefix  = "/ws"
)

// Config is the global configuration object which is filled via the configuration file
// and/or environment variables / command-line flags.
type Config struct {
	PathPrefix        string            `mapstructure:"path_prefix"`
	AllowedOrigins    []string          `mapstructure:"allowed_origins"`
	StrictAuth        bool              `mapstructure:"strict_auth"`
	AuthSecret        string            `mapstructure:"auth_secret"`
	AuthTimeoutSec    int               `mapstructure:"auth_timeout_sec"`
	AdminToken        string            `mapstructure:"admin_token"`
	StatsCronSpec     string            `mapstructure:"stats_cron"`
	AccessCheckExpr   string            `mapstructure:"access_check"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	Rooms             []RoomConfig      `mapstructure:"room"`
	LogLevel          string            `mapstructure:"log_level"`
}

// An OIDCConfig object configures an OpenID Connect provider that can be used to
// authenticate users as an alternative to the shared-secret bearer token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

// PersistenceConfig configures the backend storing room policies and known
// users. Type is one of "buntdb", "sqlite", "postgres"; empty disables
// persistence (policies then live in memory only).
type PersistenceConfig struct {
	Type      string `mapstructure:"type"`
	DSN       string `mapstructure:"dsn"`
	FlockPath string `mapstructure:"flock_path"`
}

// RoomConfig declares a room policy in the configuration file. Policies from
// the persistence backend take precedence over these seed entries.
type RoomConfig struct {
	Name         string   `mapstructure:"name"`
	IsPrivate    bool     `mapstructure:"is_private"`
	IsAdminOnly  bool     `mapstructure:"is_admin_only"`
	AllowedUsers []string `mapstructure:"allowed_users"`
	MaxMembers   int      `mapstructure:"max_members"`
	CheckExpr    string   `mapstructure:"check_expr"`
}

// AuthTimeout returns the bounded window within which an explicit auth attempt
// must resolve.
func (c *Config) AuthTimeout() time.Duration {
	if c.AuthTimeoutSec <= 0 {
		return defaultAuthTimeout
	}
	return time.Duration(c.AuthTimeoutSec) * time.Second
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.Bool("strict-auth", false, "require a valid credential on every connection")
	flagSet.String("auth-secret", "", "shared secret for bearer token verification")
	flagSet.String("admin-token", "", "token protecting the admin API")
	flagSet.String("path-prefix", defaultPathPrefix, "path prefix of the websocket endpoint")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("path_prefix", defaultPathPrefix)
	viper.SetDefault("auth_timeout_sec", int(defaultAuthTimeout/time.Second))
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("DRIFTWIRE")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
