package config

import (
	"fmt"
	"os"
	"strconv"

	"greenos-alerts/pkg/database"
	"greenos-alerts/pkg/redisx"

	"gopkg.in/yaml.v3"
)

// Config 报警服务配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Database database.Config `yaml:"database"`
	Redis    redisx.Config   `yaml:"redis"`

	// 报警服务特定配置
	Alerts struct {
		// 通知通道配置
		Notify struct {
			AlertsChannel  string `yaml:"alerts_channel"`  // 报警通知通道
			SensorsChannel string `yaml:"sensors_channel"` // 传感器读数通知通道
			UserKeyPrefix  string `yaml:"user_key_prefix"` // 用户通知缓存键前缀
			UserCacheTTL   int    `yaml:"user_cache_ttl"`  // 用户通知缓存 TTL（秒）
		} `yaml:"notify"`

		// 活跃报警缓存配置
		Cache struct {
			ActiveKeyPrefix string `yaml:"active_key_prefix"` // 活跃报警缓存键前缀
			ActiveTTL       int    `yaml:"active_ttl"`        // 缓存 TTL（秒）
		} `yaml:"cache"`

		// 读数流消费配置
		Stream struct {
			Name      string `yaml:"name"`       // Redis Stream 名称
			Group     string `yaml:"group"`      // 消费组
			Consumer  string `yaml:"consumer"`   // 消费者名称
			BatchSize int    `yaml:"batch_size"` // 单次读取条数
		} `yaml:"stream"`
	} `yaml:"alerts"`

	// 后台任务配置
	Jobs struct {
		Enabled           bool   `yaml:"enabled"`
		StaleSensorCron   string `yaml:"stale_sensor_cron"`   // 失联传感器检查
		StaleAfterMinutes int    `yaml:"stale_after_minutes"` // 失联判定阈值（分钟）
		RetentionCron     string `yaml:"retention_cron"`      // 历史报警清理
		RetentionDays     int    `yaml:"retention_days"`      // 已解决报警保留天数
		ExpiryCron        string `yaml:"expiry_cron"`         // 未处理报警过期
		ExpireAfterDays   int    `yaml:"expire_after_days"`   // 未处理报警过期天数
		ReportCron        string `yaml:"report_cron"`         // 报警汇总报表
		ReportDir         string `yaml:"report_dir"`          // 报表输出目录
		ReportWindowHours int    `yaml:"report_window_hours"` // 报表统计窗口（小时）
	} `yaml:"jobs"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 加载配置：环境变量提供默认值，CONFIG_FILE 指定的 YAML 文件可覆盖
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "greenos")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Alerts.Notify.AlertsChannel = getEnv("NOTIFY_ALERTS_CHANNEL", "greenos:notifications:alerts")
	cfg.Alerts.Notify.SensorsChannel = getEnv("NOTIFY_SENSORS_CHANNEL", "greenos:notifications:sensors")
	cfg.Alerts.Notify.UserKeyPrefix = getEnv("NOTIFY_USER_PREFIX", "greenos:user:")
	cfg.Alerts.Notify.UserCacheTTL = 86400 // 24小时

	cfg.Alerts.Cache.ActiveKeyPrefix = getEnv("CACHE_ACTIVE_PREFIX", "greenos:farm:")
	cfg.Alerts.Cache.ActiveTTL = 30 // 30秒

	cfg.Alerts.Stream.Name = getEnv("READINGS_STREAM", "greenos:readings")
	cfg.Alerts.Stream.Group = getEnv("READINGS_GROUP", "greenos-alerts")
	cfg.Alerts.Stream.Consumer = getEnv("READINGS_CONSUMER", "greenos-alerts-1")
	cfg.Alerts.Stream.BatchSize = 10

	cfg.Jobs.Enabled = getEnv("JOBS_ENABLED", "true") == "true"
	cfg.Jobs.StaleSensorCron = getEnv("JOBS_STALE_CRON", "@every 5m")
	cfg.Jobs.StaleAfterMinutes = parseInt(getEnv("JOBS_STALE_AFTER_MINUTES", "15"), 15)
	cfg.Jobs.RetentionCron = getEnv("JOBS_RETENTION_CRON", "0 2 * * *")
	cfg.Jobs.RetentionDays = parseInt(getEnv("JOBS_RETENTION_DAYS", "90"), 90)
	cfg.Jobs.ExpiryCron = getEnv("JOBS_EXPIRY_CRON", "0 3 * * *")
	cfg.Jobs.ExpireAfterDays = parseInt(getEnv("JOBS_EXPIRE_AFTER_DAYS", "30"), 30)
	cfg.Jobs.ReportCron = getEnv("JOBS_REPORT_CRON", "0 6 * * *")
	cfg.Jobs.ReportDir = getEnv("JOBS_REPORT_DIR", "/var/lib/greenos/reports")
	cfg.Jobs.ReportWindowHours = parseInt(getEnv("JOBS_REPORT_WINDOW_HOURS", "24"), 24)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// YAML 覆盖（可选）
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultValue
}
