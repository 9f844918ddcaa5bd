package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Logger  Logger
	Media   MediaConfig
	Jobs    JobsConfig
	Cleanup CleanupConfig
	Worker  WorkerConfig
	Redis   RedisConfig
	S3      S3Config
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	RateLimit    float64
	RateBurst    int
	AllowOrigins []string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

// MediaConfig points at the external tools and the per-job working directory root.
type MediaConfig struct {
	ExtractorPath  string
	TranscoderPath string
	WorkDir        string
	AudioBitrate   string
	Fragments      int
}

type JobsConfig struct {
	MaxActivePerRequester int
	RetentionMinutes      int
}

type CleanupConfig struct {
	IntervalMinutes int
	ExpiryMinutes   int
}

type WorkerConfig struct {
	MaxCPUUsage float64
}

type RedisConfig struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	DB              int
	MinIdleConns    int
	PoolSize        int
	PoolTimeout     int
	TLS             bool
	SnapshotPrefix  string
	SnapshotChannel string
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.readtimeout", 15)
	v.SetDefault("server.writetimeout", 0)
	v.SetDefault("server.ratelimit", 5)
	v.SetDefault("server.rateburst", 20)
	v.SetDefault("server.alloworigins", []string{"*"})

	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.level", "info")

	v.SetDefault("media.extractorpath", "yt-dlp")
	v.SetDefault("media.transcoderpath", "ffmpeg")
	v.SetDefault("media.workdir", "downloads")
	v.SetDefault("media.audiobitrate", "192k")
	v.SetDefault("media.fragments", 4)

	v.SetDefault("jobs.maxactiveperrequester", 3)
	v.SetDefault("jobs.retentionminutes", 60)

	v.SetDefault("cleanup.intervalminutes", 10)
	v.SetDefault("cleanup.expiryminutes", 60)

	v.SetDefault("worker.maxcpuusage", 0)

	v.SetDefault("redis.snapshotprefix", "job:")
	v.SetDefault("redis.snapshotchannel", "job_updates")
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.pooltimeout", 5)
}

func (c *Config) validate() error {
	if c.Media.WorkDir == "" {
		return fmt.Errorf("media.workdir is required")
	}
	if c.Media.ExtractorPath == "" || c.Media.TranscoderPath == "" {
		return fmt.Errorf("media.extractorpath and media.transcoderpath are required")
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		return fmt.Errorf("cleanup.intervalminutes must be positive, got %d", c.Cleanup.IntervalMinutes)
	}
	if c.Cleanup.ExpiryMinutes <= 0 {
		return fmt.Errorf("cleanup.expiryminutes must be positive, got %d", c.Cleanup.ExpiryMinutes)
	}
	if c.Jobs.RetentionMinutes <= 0 {
		return fmt.Errorf("jobs.retentionminutes must be positive, got %d", c.Jobs.RetentionMinutes)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3 is enabled")
	}
	return nil
}
