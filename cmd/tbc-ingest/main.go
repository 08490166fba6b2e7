// Точка входа tbc-ingest — сервис приёма книг в архив.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает импортёр, брокер задач и сервисный слой, запускает пул
// исполнителей задач, topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/tbc-ingest/internal/api/handlers"
	"github.com/bigkaa/tbc-ingest/internal/api/middleware"
	"github.com/bigkaa/tbc-ingest/internal/config"
	"github.com/bigkaa/tbc-ingest/internal/database"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/langdetect"
	"github.com/bigkaa/tbc-ingest/internal/repository"
	"github.com/bigkaa/tbc-ingest/internal/server"
	"github.com/bigkaa/tbc-ingest/internal/service"
	"github.com/bigkaa/tbc-ingest/internal/storage/filestore"
	"github.com/bigkaa/tbc-ingest/internal/tasks"
)

const (
	jwksRefreshInterval = 15 * time.Minute
	jwtLeeway           = 30 * time.Second
)

func main() {
	// 0. Необязательный .env перекрывает переменные окружения
	if err := godotenv.Overload(); err == nil {
		slog.Info("Загружен файл .env")
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("tbc-ingest запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("task_broker", cfg.TaskBroker),
		slog.String("task_backend", cfg.TaskBackend),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg.DB, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.DB, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище файлов и импортёр
	fs, err := filestore.New(cfg.StorageBase)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	catalogs := repository.NewCatalogStore(pool)
	im := importer.New(catalogs, fs, langdetect.New(0), importer.Options{
		StorageBase: cfg.StorageBase,
		PathMaxLen:  cfg.PathMaxLen,
	}, logger)

	// 6. Redis (если нужен брокеру или хранилищу результатов)
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("Некорректный TBC_REDIS_URL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// 7. Брокер и хранилище результатов задач
	broker, backend, err := newTaskDrivers(cfg, pool, redisClient)
	if err != nil {
		logger.Error("Ошибка настройки очереди задач", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := tasks.NewRegistry()
	if err := service.RegisterTasks(registry, im); err != nil {
		logger.Error("Ошибка регистрации задач", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dispatcher := tasks.NewDispatcher(registry, broker, backend, tasks.Options{
		Queue:       cfg.TaskQueue,
		AlwaysEager: cfg.TaskAlwaysEager,
		TimeLimit:   cfg.TaskTimeLimit,
	}, logger)

	// 8. Services
	groupSvc := service.NewGroupService(
		repository.NewFileGroupRepository(pool),
		service.NewGroupCache(cfg.GroupCacheSize, cfg.GroupCacheTTL),
		logger,
	)
	typeSvc := service.NewTypeService(repository.NewFileTypeRepository(pool), groupSvc, logger)
	poolSvc := service.NewStoragePoolService(
		repository.NewStoragePoolRepository(pool),
		repository.NewTxRunner(pool),
		fs,
		cfg.StorageBase,
		logger,
	)
	ingestSvc := service.NewIngestService(dispatcher, logger)
	archiveSvc := service.NewArchiveService(im, catalogs, dispatcher, logger)

	// 9. Readiness checkers
	checkers := map[string]handlers.ReadinessChecker{
		"postgresql": database.NewReadinessChecker(pool),
	}
	if redisClient != nil {
		checkers["redis"] = tasks.NewRedisReadinessChecker(redisClient)
	}
	healthHandler := handlers.NewHealthHandler(checkers, func(ctx context.Context) (string, error) {
		return database.ServerVersion(ctx, pool)
	}, logger)

	// 10. JWT middleware (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, jwksRefreshInterval, jwtLeeway, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("TBC_JWT_JWKS_URL не задан, аутентификация API отключена")
	}

	// 11. Пул исполнителей задач
	var workers *tasks.WorkerPool
	if cfg.TaskAlwaysEager {
		logger.Info("Задачи выполняются синхронно (TBC_TASK_ALWAYS_EAGER=true)")
	} else {
		workers = tasks.NewWorkerPool(dispatcher, broker, backend, cfg.TaskQueue, cfg.TaskWorkers, logger)
		workers.Start(ctx)
	}

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "tbc-ingest",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DB.URL("postgres"),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Handlers{
		Health:  healthHandler,
		Catalog: handlers.NewCatalogHandler(groupSvc, typeSvc, logger),
		Ingest:  handlers.NewIngestHandler(ingestSvc, logger),
		Archive: handlers.NewArchiveHandler(archiveSvc, logger),
		Pools:   handlers.NewStoragePoolsHandler(poolSvc, logger),
	}, jwtAuth)
	runErr := srv.Run()

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if workers != nil {
		workers.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("tbc-ingest остановлен")
}

// newTaskDrivers выбирает брокер и хранилище результатов по конфигурации.
func newTaskDrivers(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (tasks.Broker, tasks.Backend, error) {
	var broker tasks.Broker
	switch cfg.TaskBroker {
	case config.TaskDriverMemory:
		broker = tasks.NewMemoryBroker(cfg.TaskWorkers * 64)
	case config.TaskDriverRedis:
		broker = tasks.NewRedisBroker(redisClient)
	case config.TaskDriverPostgres:
		broker = tasks.NewPostgresBroker(repository.NewTaskQueueRepository(pool))
	default:
		return nil, nil, fmt.Errorf("неизвестный брокер задач %q", cfg.TaskBroker)
	}

	var backend tasks.Backend
	switch cfg.TaskBackend {
	case config.TaskDriverMemory:
		backend = tasks.NewMemoryBackend(cfg.TaskResultTTL)
	case config.TaskDriverRedis:
		backend = tasks.NewRedisBackend(redisClient, cfg.TaskResultTTL)
	case config.TaskDriverPostgres:
		backend = tasks.NewPostgresBackend(repository.NewTaskResultRepository(pool), cfg.TaskResultTTL)
	default:
		return nil, nil, fmt.Errorf("неизвестное хранилище результатов %q", cfg.TaskBackend)
	}
	return broker, backend, nil
}
