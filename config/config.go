package config

import (
	"time"

	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

type AppConfig struct {
	AppName string `env:"APP_NAME" envDefault:"mailkeep"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILKEEP_POSTGRES_HOST,required"`
	Port            string `env:"MAILKEEP_POSTGRES_PORT,required"`
	User            string `env:"MAILKEEP_POSTGRES_USER,required"`
	DBName          string `env:"MAILKEEP_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILKEEP_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILKEEP_POSTGRES_DB_MAX_CONN" envDefault:"20"`
	MaxIdleConn     int    `env:"MAILKEEP_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"MAILKEEP_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILKEEP_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILKEEP_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type SyncConfig struct {
	// A directory older than StaleAfter is refreshed in the background on read.
	StaleAfter     time.Duration `env:"SYNC_STALE_AFTER" envDefault:"5m"`
	PollPeriod     time.Duration `env:"SYNC_POLL_PERIOD" envDefault:"30s"`
	ConnectTimeout time.Duration `env:"SYNC_CONNECT_TIMEOUT" envDefault:"1m"`
	CommandTimeout time.Duration `env:"SYNC_COMMAND_TIMEOUT" envDefault:"30s"`
	FetchBatchSize uint32        `env:"SYNC_FETCH_BATCH_SIZE" envDefault:"200"`

	// Retry policy for transient failures and pending-operation replay.
	MaxRetryAttempts int           `env:"SYNC_MAX_RETRY_ATTEMPTS" envDefault:"5"`
	RetryBackoff     time.Duration `env:"SYNC_RETRY_BACKOFF" envDefault:"1s"`
	MaxRetryBackoff  time.Duration `env:"SYNC_MAX_RETRY_BACKOFF" envDefault:"2m"`

	// Cron expression for the periodic stale-directory sweep.
	RefreshSchedule string `env:"SYNC_REFRESH_SCHEDULE" envDefault:"@every 5m"`
}

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	SyncConfig     *SyncConfig
}
