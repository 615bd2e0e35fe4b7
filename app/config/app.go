package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppCfg is the service configuration read from config/app.yaml
type AppCfg struct {
	Port             string
	Env              string
	EngineConfigPath string
	RedisURL         string
	RedisTTL         time.Duration
	MongoURL         string
	MongoDatabase    string
	L1Size           int
	BatchWorkers     int
}

// IsProduction selects the production logger
func (c AppCfg) IsProduction() bool {
	return c.Env == "production"
}

// LoadApp reads the service config. Every key can be overridden from the
// environment with dots replaced by underscores (APP_PORT, REDIS_URL). A
// missing file is not an error; defaults and environment apply.
func LoadApp(path string) (AppCfg, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("engine.config_path", "config/engine.yaml")
	v.SetDefault("engine.batch_workers", 4)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl_hours", 24)
	v.SetDefault("mongo.url", "")
	v.SetDefault("mongo.database", "invoice_parser")
	v.SetDefault("cache.l1_size", 10000)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return AppCfg{}, err
		}
	}

	return AppCfg{
		Port:             v.GetString("app.port"),
		Env:              v.GetString("app.env"),
		EngineConfigPath: v.GetString("engine.config_path"),
		RedisURL:         v.GetString("redis.url"),
		RedisTTL:         time.Duration(v.GetInt("redis.ttl_hours")) * time.Hour,
		MongoURL:         v.GetString("mongo.url"),
		MongoDatabase:    v.GetString("mongo.database"),
		L1Size:           v.GetInt("cache.l1_size"),
		BatchWorkers:     v.GetInt("engine.batch_workers"),
	}, nil
}
