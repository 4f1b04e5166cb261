package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "AGRIHUB"

// Config stores global configuration
type Config struct {
	// HTTP listen address
	ListenAddress string

	// Logging level
	LogLevel string

	// Maximum time the server gets to drain on shutdown
	StopTimeout time.Duration

	// HMAC secret of the bearer tokens issued by the auth service
	JWTSecret string

	Store       Store
	Database    Database
	Redis       Redis
	Alerts      Alerts
	Negotiation Negotiation
	Payment     Payment
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenAddress", ":8080")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("StopTimeout", "15s")
	v.SetDefault("JWTSecret", "")

	setStoreDefaults(v)
	setDatabaseDefaults(v)
	setRedisDefaults(v)
	setAlertsDefaults(v)
	setNegotiationDefaults(v)
	setPaymentDefaults(v)
}

// Default returns the configuration with nothing but defaults applied.
func Default() *Config {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads .env (if present), the optional config file and AGRIHUB_*
// environment variables, in increasing priority.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	bindEnv(v, nil, reflect.TypeOf(Config{}))

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Negotiation.MaxRounds < 1 {
		return errors.New("negotiation.maxrounds must be at least 1")
	}
	if c.Payment.AdvanceFraction <= 0 || c.Payment.AdvanceFraction >= 1 {
		return errors.New("payment.advancefraction must be between 0 and 1")
	}
	if c.Payment.DepositFraction < 0 || c.Payment.DepositFraction >= 1 {
		return errors.New("payment.depositfraction must be between 0 and 1")
	}
	return nil
}

// bindEnv maps nested fields to env names, e.g. Negotiation.MaxRounds -> AGRIHUB_NEGOTIATION_MAX_ROUNDS.
func bindEnv(v *viper.Viper, path []string, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		p := append(append([]string(nil), path...), f.Name)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnv(v, p, f.Type)
			continue
		}
		key := strings.Join(p, ".")
		env := envPrefix + "_" + strcase.ToScreamingSnake(strings.Join(p, "_"))
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}
