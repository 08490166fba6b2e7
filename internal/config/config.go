// Пакет config — загрузка и валидация конфигурации tbc-ingest
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые реализации брокера и хранилища результатов задач.
const (
	TaskDriverMemory   = "memory"
	TaskDriverRedis    = "redis"
	TaskDriverPostgres = "postgres"
)

// DBConfig — параметры подключения к PostgreSQL.
// Создаётся один раз в Load и дальше передаётся только по значению.
type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	// Режим SSL: disable, require, verify-ca, verify-full
	SSLMode string
}

// DSN возвращает строку подключения для pgxpool.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode,
	)
}

// URL возвращает строку подключения в формате URL со схемой scheme
// (pgx5 для golang-migrate, postgres для метрик dephealth).
func (c DBConfig) URL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DB DBConfig

	// --- Хранилище ---

	// Корневой каталог пулов хранения (TBC_STORAGE_BASE)
	StorageBase string
	// Максимальная длина пути к файлу книги
	PathMaxLen int

	// --- Фоновые задачи ---

	// Брокер задач: memory, redis, postgres
	TaskBroker string
	// Хранилище результатов задач: memory, redis, postgres
	TaskBackend string
	// Выполнять задачи синхронно в процессе запроса
	TaskAlwaysEager bool
	// Очередь по умолчанию
	TaskQueue string
	// Количество воркеров
	TaskWorkers int
	// Предельное время выполнения одной задачи
	TaskTimeLimit time.Duration
	// Время хранения результатов задач
	TaskResultTTL time.Duration
	// URL Redis (для брокера и/или хранилища результатов redis)
	RedisURL string

	// --- JWT (опционально) ---

	// URL JWKS endpoint; пустое значение отключает аутентификацию
	JWTJWKSURL string
	// Ожидаемый issuer JWT
	JWTIssuer string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Кэш групп ---

	GroupCacheSize int
	GroupCacheTTL  time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// TBC_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("TBC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TBC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TBC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TBC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TBC_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("TBC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TBC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	db := DBConfig{}
	if db.Host, err = getEnvRequired("TBC_DB_HOST"); err != nil {
		return nil, err
	}
	db.Port, err = getEnvInt("TBC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("TBC_DB_PORT: %w", err)
	}
	if db.Name, err = getEnvRequired("TBC_DB_NAME"); err != nil {
		return nil, err
	}
	if db.User, err = getEnvRequired("TBC_DB_USER"); err != nil {
		return nil, err
	}
	if db.Password, err = getEnvRequired("TBC_DB_PASSWORD"); err != nil {
		return nil, err
	}
	db.SSLMode = getEnvDefault("TBC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[db.SSLMode] {
		return nil, fmt.Errorf("TBC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", db.SSLMode)
	}
	cfg.DB = db

	// --- Хранилище ---

	cfg.StorageBase = strings.TrimRight(getEnvDefault("TBC_STORAGE_BASE", "/data"), "/")
	if cfg.StorageBase == "" {
		return nil, fmt.Errorf("TBC_STORAGE_BASE: корень файловой системы не допускается")
	}

	cfg.PathMaxLen, err = getEnvInt("TBC_PATH_MAX_LEN", 100)
	if err != nil {
		return nil, fmt.Errorf("TBC_PATH_MAX_LEN: %w", err)
	}
	if cfg.PathMaxLen < 32 || cfg.PathMaxLen > 4096 {
		return nil, fmt.Errorf("TBC_PATH_MAX_LEN: значение %d вне допустимого диапазона 32-4096", cfg.PathMaxLen)
	}

	// --- Фоновые задачи ---

	cfg.TaskBroker, err = getEnvEnum("TBC_TASK_BROKER", TaskDriverMemory,
		TaskDriverMemory, TaskDriverRedis, TaskDriverPostgres)
	if err != nil {
		return nil, err
	}
	cfg.TaskBackend, err = getEnvEnum("TBC_TASK_BACKEND", TaskDriverMemory,
		TaskDriverMemory, TaskDriverRedis, TaskDriverPostgres)
	if err != nil {
		return nil, err
	}

	cfg.TaskAlwaysEager, err = getEnvBool("TBC_TASK_ALWAYS_EAGER", false)
	if err != nil {
		return nil, fmt.Errorf("TBC_TASK_ALWAYS_EAGER: %w", err)
	}

	cfg.TaskQueue = getEnvDefault("TBC_TASK_QUEUE", "importer")

	cfg.TaskWorkers, err = getEnvInt("TBC_TASK_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("TBC_TASK_WORKERS: %w", err)
	}
	if cfg.TaskWorkers < 1 || cfg.TaskWorkers > 256 {
		return nil, fmt.Errorf("TBC_TASK_WORKERS: значение %d вне допустимого диапазона 1-256", cfg.TaskWorkers)
	}

	cfg.TaskTimeLimit, err = getEnvDuration("TBC_TASK_TIME_LIMIT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TBC_TASK_TIME_LIMIT: %w", err)
	}

	cfg.TaskResultTTL, err = getEnvDuration("TBC_TASK_RESULT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("TBC_TASK_RESULT_TTL: %w", err)
	}

	cfg.RedisURL = getEnvDefault("TBC_REDIS_URL", "redis://localhost:6379/0")

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("TBC_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("TBC_JWT_ISSUER", "")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("TBC_DEPHEALTH_GROUP", "tbc")
	cfg.DephealthCheckInterval, err = getEnvDuration("TBC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TBC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Кэш групп ---

	cfg.GroupCacheSize, err = getEnvInt("TBC_GROUP_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("TBC_GROUP_CACHE_SIZE: %w", err)
	}
	if cfg.GroupCacheSize < 1 {
		return nil, fmt.Errorf("TBC_GROUP_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.GroupCacheTTL, err = getEnvDuration("TBC_GROUP_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TBC_GROUP_CACHE_TTL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("TBC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TBC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// UsesRedis сообщает, нужен ли Redis брокеру или хранилищу результатов.
func (c *Config) UsesRedis() bool {
	return c.TaskBroker == TaskDriverRedis || c.TaskBackend == TaskDriverRedis
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvEnum возвращает значение переменной окружения, если оно входит в allowed.
func getEnvEnum(key, defaultVal string, allowed ...string) (string, error) {
	val := strings.ToLower(getEnvDefault(key, defaultVal))
	for _, a := range allowed {
		if val == a {
			return val, nil
		}
	}
	return "", fmt.Errorf("%s: недопустимое значение %q, допустимые: %s", key, val, strings.Join(allowed, ", "))
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
