package config

import (
	"time"

	"github.com/spf13/viper"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

type Store struct {
	// Where negotiation and payment records live
	Backend StoreBackend

	// How many times a write that lost a version race is recomputed
	ConflictRetries uint64

	// YAML list of work items loaded into the memory backend on start
	SeedFile string
}

func setStoreDefaults(v *viper.Viper) {
	v.SetDefault("Store.Backend", string(StoreMemory))
	v.SetDefault("Store.ConflictRetries", 5)
	v.SetDefault("Store.SeedFile", "")
}

type Database struct {
	Host     string
	Port     uint16
	User     string
	Password string
	Name     string
	SslMode  string
	MaxConns int32
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("Database.Host", "127.0.0.1")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.User", "postgres")
	v.SetDefault("Database.Password", "postgres")
	v.SetDefault("Database.Name", "agrihub")
	v.SetDefault("Database.SslMode", "disable")
	v.SetDefault("Database.MaxConns", 10)
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

func setRedisDefaults(v *viper.Viper) {
	v.SetDefault("Redis.Addr", "127.0.0.1:6379")
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.DB", 0)
}

type Alerts struct {
	// Enqueue notification tasks; off means notifications are dropped
	Enabled bool

	// Redis used by the task queue
	RedisAddr string

	// Number of concurrent task handlers
	Concurrency int
}

func setAlertsDefaults(v *viper.Viper) {
	v.SetDefault("Alerts.Enabled", false)
	v.SetDefault("Alerts.RedisAddr", "127.0.0.1:6379")
	v.SetDefault("Alerts.Concurrency", 5)
}

type Negotiation struct {
	MaxRounds    int
	ExpiryWindow time.Duration
	FairLow      float64
	FairHigh     float64
}

func setNegotiationDefaults(v *viper.Viper) {
	v.SetDefault("Negotiation.MaxRounds", 3)
	v.SetDefault("Negotiation.ExpiryWindow", "6h")
	v.SetDefault("Negotiation.FairLow", 600)
	v.SetDefault("Negotiation.FairHigh", 800)
}

type Payment struct {
	AdvanceFraction float64
	DepositFraction float64
}

func setPaymentDefaults(v *viper.Viper) {
	v.SetDefault("Payment.AdvanceFraction", 0.40)
	v.SetDefault("Payment.DepositFraction", 0.20)
}
