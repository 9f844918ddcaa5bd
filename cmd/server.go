package main

import (
	"log"
	"os"

	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/internal/server"
	"github.com/amankumarsingh77/media-fetcher/pkg/db/aws"
	"github.com/amankumarsingh77/media-fetcher/pkg/db/redis"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("Starting server")
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	configFile := "config.yml"
	cfgFile, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(cfg)
		if err != nil {
			appLogger.Warnf("could not connect to redis, snapshots disabled: %s", err)
		} else {
			appLogger.Infof("redis connected")
			defer redisClient.Close()
		}
	}

	var s3Client *s3.Client
	var presignClient *s3.PresignClient
	if cfg.S3.Enabled {
		s3Client, presignClient, err = aws.NewAWSClient(cfg.S3)
		if err != nil {
			appLogger.Warnf("could not configure s3, artifacts stay local: %s", err)
		} else {
			appLogger.Infof("s3 configured, bucket: %s", cfg.S3.Bucket)
		}
	}

	s := server.NewServer(cfg, redisClient, s3Client, presignClient, appLogger)
	if err = s.Run(); err != nil {
		appLogger.Errorf("server stopped with error: %s", err)
	}
}
