package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Telegram struct {
		Token string `envconfig:"TG_BOT_TOKEN"`
	} `envconfig:""`

	Parser struct {
		BaseURL string        `envconfig:"PARSER_BASE_URL"`
		Token   string        `envconfig:"PARSER_TOKEN"`
		Timeout time.Duration `envconfig:"PARSER_TIMEOUT" default:"45s"`
	} `envconfig:""`

	Sheets struct {
		CredentialsJSON string `envconfig:"SHEETS_CREDENTIALS_JSON"`
		CredentialsFile string `envconfig:"SHEETS_CREDENTIALS_FILE"`
	} `envconfig:""`

	Refresh struct {
		BatchSize     int           `envconfig:"REFRESH_BATCH_SIZE" default:"50"`
		Workers       int           `envconfig:"REFRESH_WORKERS" default:"15"`
		BatchCooldown time.Duration `envconfig:"REFRESH_BATCH_COOLDOWN" default:"30s"`
		Hour          int           `envconfig:"REFRESH_HOUR" default:"3"`
		JobTTLDays    int           `envconfig:"REFRESH_JOB_TTL_DAYS" default:"14"`
	} `envconfig:""`

	Queues struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Refresh string `envconfig:"REFRESH_QUEUE_KEY" default:"refresh_jobs"`
		AMQPURL string `envconfig:"AMQP_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
