package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"profiledrive/internal/repository"
)

const (
	NotifyNone = "none"
	NotifySNS  = "sns"
	NotifyNATS = "nats"
)

type Config struct {
	Server   ServerConfig              `mapstructure:"Server"`
	Database repository.DatabaseConfig `mapstructure:"Database"`
	Policy   PolicyConfig              `mapstructure:"Policy"`
	Redis    RedisConfig               `mapstructure:"Redis"`
	Notify   NotifyConfig              `mapstructure:"Notify"`
	LogLevel string                    `mapstructure:"LogLevel"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	GRPCPort string `mapstructure:"GRPCPort"`
}

// PolicyConfig - параметры жизненного цикла ассетов
type PolicyConfig struct {
	Window        time.Duration `mapstructure:"Window"`
	UploadTTL     time.Duration `mapstructure:"UploadTTL"`
	DownloadTTL   time.Duration `mapstructure:"DownloadTTL"`
	LockGrace     time.Duration `mapstructure:"LockGrace"`
	SweepInterval time.Duration `mapstructure:"SweepInterval"`
	SubTypes      []string      `mapstructure:"SubTypes"`
}

// RedisConfig - пустой URL означает блокировки в памяти процесса
type RedisConfig struct {
	URL string `mapstructure:"URL"`
}

type NotifyConfig struct {
	Driver          string `mapstructure:"Driver"`
	Topic           string `mapstructure:"Topic"`
	NatsURL         string `mapstructure:"NatsURL"`
	Region          string `mapstructure:"Region"`
	Endpoint        string `mapstructure:"Endpoint"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
}

var bindings = [][2]string{
	{"Database.Host", "DATABASE_HOST"},
	{"Database.Port", "DATABASE_PORT"},
	{"Database.User", "DATABASE_USER"},
	{"Database.Password", "DATABASE_PASSWORD"},
	{"Database.Name", "DATABASE_NAME"},
	{"Database.SSLMode", "DATABASE_SSLMODE"},
	{"Server.Port", "HTTP_PORT"},
	{"Server.GRPCPort", "GRPC_PORT"},
	{"Policy.Window", "POLICY_WINDOW"},
	{"Policy.UploadTTL", "POLICY_UPLOAD_TTL"},
	{"Policy.DownloadTTL", "POLICY_DOWNLOAD_TTL"},
	{"Policy.LockGrace", "POLICY_LOCK_GRACE"},
	{"Policy.SweepInterval", "POLICY_SWEEP_INTERVAL"},
	{"Policy.SubTypes", "POLICY_SUB_TYPES"},
	{"Redis.URL", "REDIS_URL"},
	{"Notify.Driver", "NOTIFY_DRIVER"},
	{"Notify.Topic", "NOTIFY_TOPIC"},
	{"Notify.NatsURL", "NATS_URL"},
	{"Notify.Region", "NOTIFY_REGION"},
	{"Notify.Endpoint", "NOTIFY_ENDPOINT"},
	{"Notify.AccessKeyID", "NOTIFY_ACCESS_KEY_ID"},
	{"Notify.SecretAccessKey", "NOTIFY_SECRET_ACCESS_KEY"},
	{"LogLevel", "LOG_LEVEL"},
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	for _, b := range bindings {
		v.BindEnv(b[0], b[1])
	}

	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config file not read, using environment only", "path", path, "error", err)
	}

	// в .env-файле ключи плоские, переносим их в секции, если окружение их не задало
	for _, b := range bindings {
		if !v.IsSet(b[0]) && v.IsSet(b[1]) {
			v.Set(b[0], v.Get(b[1]))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Server.Port == "" {
		c.Server.Port = "2525"
	}
	if c.Server.GRPCPort == "" {
		c.Server.GRPCPort = "50051"
	}

	if c.Policy.Window == 0 {
		c.Policy.Window = 15 * 24 * time.Hour
	}
	if c.Policy.UploadTTL == 0 {
		c.Policy.UploadTTL = 300 * time.Second
	}
	if c.Policy.DownloadTTL == 0 {
		c.Policy.DownloadTTL = 3600 * time.Second
	}
	if c.Policy.LockGrace == 0 {
		c.Policy.LockGrace = 60 * time.Second
	}
	if c.Policy.SweepInterval == 0 {
		c.Policy.SweepInterval = time.Minute
	}
	if len(c.Policy.SubTypes) == 0 {
		c.Policy.SubTypes = []string{"10th", "12th"}
	}

	c.Notify.Driver = strings.ToLower(strings.TrimSpace(c.Notify.Driver))
	if c.Notify.Driver == "" {
		c.Notify.Driver = NotifyNone
	}
	if c.Notify.Region == "" {
		c.Notify.Region = "us-east-1"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	db := c.Database
	if db.Host == "" || db.Port == "" || db.User == "" || db.Password == "" || db.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			db.Host, db.Port, db.User, db.Name)
	}

	if c.Policy.Window < 0 {
		return fmt.Errorf("policy window must not be negative: %s", c.Policy.Window)
	}

	switch c.Notify.Driver {
	case NotifyNone:
	case NotifySNS, NotifyNATS:
		if c.Notify.Topic == "" {
			return fmt.Errorf("notify topic is required for driver %s", c.Notify.Driver)
		}
	default:
		return fmt.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
	return nil
}
