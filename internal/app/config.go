package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devid/internal/domain"
	"devid/internal/store"
)

// Store backends selectable with the "store" key.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StorePKCS11 = "pkcs11"
)

const configName = "devid"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string `mapstructure:"home" yaml:"home"`                       // data directory, e.g. $HOME/.devid
	Store      string `mapstructure:"store" yaml:"store"`                     // file, sqlite, memory or pkcs11
	Alias      string `mapstructure:"alias" yaml:"alias"`                     // key store alias of the identity key
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase,omitempty"` // seals private keys at rest
	KDF        string `mapstructure:"kdf" yaml:"kdf"`                         // scrypt or argon2id, for new file/sqlite entries
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`

	PKCS11 store.PKCS11Config `mapstructure:"pkcs11" yaml:"pkcs11"` // used when Store is pkcs11
}

// Defaults returns the values used when nothing else sets a key.
func Defaults() map[string]any {
	return map[string]any{
		"home":       "",
		"store":      StoreFile,
		"alias":      string(domain.DefaultAlias),
		"passphrase": "",
		"kdf":        store.KDFScrypt,
		"log_level":  "info",

		"pkcs11.module": "",
		"pkcs11.slot":   0,
		"pkcs11.pin":    "",
	}
}

// DefaultHome returns ~/.devid.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".devid"), nil
}

// ConfigPath returns the per-user location of devid.yaml.
func ConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, configName, configName+".yaml"), nil
}

// LoadConfig reads configuration for cmd. Later sources win: defaults, the
// config file, DEVID_* environment variables, then flags set on cmd.
// configFile, when non-empty, replaces the config file search.
func LoadConfig(cmd *cobra.Command, configFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if p, err := ConfigPath(); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(configName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
		if f := cmd.Flags().Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log_level", f); err != nil {
				return c, err
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if c.Home == "" {
		home, err := DefaultHome()
		if err != nil {
			return c, err
		}
		c.Home = home
	}
	return c, c.Validate()
}

// Validate rejects unknown store kinds and KDFs, incomplete token settings
// and malformed aliases.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	case StorePKCS11:
		if c.PKCS11.Module == "" {
			return errors.New("store pkcs11 needs pkcs11.module")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s, %s or %s)", c.Store, StoreFile, StoreSQLite, StoreMemory, StorePKCS11)
	}
	if _, err := store.ParseKDF(c.KDF); err != nil {
		return err
	}
	return domain.Alias(c.Alias).Validate()
}

// WriteConfigFile writes c as YAML to path, or to ConfigPath when path is empty.
func WriteConfigFile(c *Config, path string) (string, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	// 0600: the file may hold the vault passphrase.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
