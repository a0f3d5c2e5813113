// Package bootstrap wires the engine's shared infrastructure: logger,
// configuration, record store client and the optional sweep lock.
package bootstrap

import (
	"fmt"
	"os"

	"groupage/config"
	"groupage/service"
	"groupage/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output.
func InitLogger() (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stdout),
		zapcore.InfoLevel,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the engine configuration.
func InitConfig(configFile string, sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}
	return cfg, nil
}

// InitStore builds the record store client from configuration.
func InitStore(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.RecordStore, error) {
	return storage.NewRecordStore(storage.Config{
		BaseURL:           cfg.Store.BaseURL,
		APIKey:            cfg.Store.APIKey,
		BaseID:            cfg.Store.BaseID,
		Table:             cfg.Store.Table,
		Timeout:           cfg.StoreTimeout(),
		RequestsPerSecond: cfg.Store.RequestsPerSecond,
		Burst:             cfg.Store.Burst,
	}, sugar)
}

// InitLocker builds the Redis advisory lock when enabled, nil otherwise.
// Without it, overlapping sweeps are prevented by the scheduler alone.
func InitLocker(cfg *config.Config, sugar *zap.SugaredLogger) service.Locker {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return service.NewRedisLocker(client, cfg.Redis.LockKey, cfg.LockTTL(), sugar)
}
