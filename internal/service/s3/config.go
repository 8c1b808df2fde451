package s3

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"profiledrive/internal/domain"
)

type Config struct {
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Region          string `mapstructure:"Region"`
	Endpoint        string `mapstructure:"Endpoint"`
	UsePathStyle    bool   `mapstructure:"UsePathStyle"`
	PicBucket       string `mapstructure:"PicBucket"`
	MarksBucket     string `mapstructure:"MarksBucket"`
	LogBucket       string `mapstructure:"LogBucket"`
	LogPrefix       string `mapstructure:"LogPrefix"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("AccessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("SecretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("Region", "S3_REGION", "AWS_REGION")
	v.BindEnv("Endpoint", "S3_ENDPOINT")
	v.BindEnv("UsePathStyle", "S3_USE_PATH_STYLE")
	v.BindEnv("PicBucket", "S3_PIC_BUCKET")
	v.BindEnv("MarksBucket", "S3_MARKS_BUCKET")
	v.BindEnv("LogBucket", "S3_LOG_BUCKET")
	v.BindEnv("LogPrefix", "S3_LOG_PREFIX")

	v.SetDefault("Region", "us-east-1")
	v.SetDefault("LogPrefix", "markscard_changes")

	if err := v.ReadInConfig(); err != nil {
		slog.Warn("s3 config file not read, using environment only", "path", path, "error", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	if c.AccessKeyID == "" {
		return fmt.Errorf("AccessKeyID is required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("SecretAccessKey is required")
	}
	if c.PicBucket == "" || c.MarksBucket == "" || c.LogBucket == "" {
		return fmt.Errorf("PicBucket, MarksBucket and LogBucket are required")
	}
	return nil
}

func (c *Config) Buckets() domain.Buckets {
	return domain.Buckets{
		Pictures: c.PicBucket,
		Marks:    c.MarksBucket,
		Logs:     c.LogBucket,
	}
}
