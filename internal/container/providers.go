package container

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/garyjia/repair-center/internal/application/dispatcher"
	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/application/service"
	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/auth"
	"github.com/garyjia/repair-center/internal/domain/event"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/repository"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/repair-center/internal/infrastructure/worker"
	"github.com/garyjia/repair-center/migrations"
	"github.com/garyjia/repair-center/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, applies pending migrations and wraps
// the connection in a transaction manager.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := NewMigrator(conn, cfg, logger).Up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// NewMigrator returns a migrator over the configured directory, or the
// migrations embedded in the binary when none is configured.
func NewMigrator(conn *database.DB, cfg *DatabaseConfig, logger *zap.Logger) *database.Migrator {
	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	return database.NewMigrator(conn, source, logger)
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Instance      port.InstanceRepository
	TransitionLog port.TransitionLogRepository
	Approval      port.ApprovalRepository
	Payment       port.PaymentRepository
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Instance:      repository.NewInstanceRepository(sqlDB, logger),
		TransitionLog: repository.NewTransitionLogRepository(sqlDB, logger),
		Approval:      repository.NewApprovalRepository(sqlDB, logger),
		Payment:       repository.NewPaymentRepository(sqlDB, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the event log.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d := dispatcher.NewDispatcher(dispatcher.WithLogger(NewLoggerAdapter(logger)))

	eventLog := logger.Named("events")
	d.Subscribe("event_log", func(ctx context.Context, evt *event.Event) error {
		eventLog.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.Int64("instance_id", evt.InstanceID),
			zap.Any("payload", evt.Payload))
		return nil
	},
		event.TypeWorkflowReceived,
		event.TypeWorkflowTransitioned,
		event.TypeApprovalRequested,
		event.TypeApprovalResolved,
		event.TypePaymentCreated,
		event.TypePaymentSettled,
	)

	return d, nil
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Engine       workflow.WorkflowEngine
	Workflow     service.WorkflowService
	Approval     service.ApprovalService
	Ledger       service.LedgerService
	SummaryCache *service.SummaryCache
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Summary    *SummaryConfig
	Logger     *zap.Logger
}

// ProvideServices wires the workflow engine and the services around it.
// The engine and the ledger share one instance locker.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Summary == nil {
		return nil, fmt.Errorf("summary config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := NewLoggerAdapter(deps.Logger)
	locker := workflow.NewInstanceLocker()

	engine := workflow.NewEngine(
		deps.Repos.Instance,
		deps.Repos.TransitionLog,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLocker(locker),
		workflow.WithLogger(serviceLogger),
	)

	cache := service.NewSummaryCache(deps.Summary.CacheTTL, deps.Summary.MaxKeys)
	deps.Dispatcher.Subscribe("summary_cache", cache.HandleEvent,
		event.TypePaymentCreated,
		event.TypePaymentSettled,
	)

	ledger := service.NewLedgerService(
		deps.Repos.Payment,
		deps.TxManager,
		locker,
		serviceLogger,
		service.WithSummaryCache(cache),
		service.WithLedgerDispatcher(deps.Dispatcher),
	)

	approvals := service.NewApprovalService(
		engine,
		deps.Repos.Instance,
		deps.Repos.Approval,
		ledger,
		deps.Dispatcher,
		serviceLogger,
	)

	return &ServiceBundle{
		Engine:       engine,
		Workflow:     service.NewWorkflowService(engine, approvals, deps.Repos.Instance, deps.Repos.TransitionLog, serviceLogger),
		Approval:     approvals,
		Ledger:       ledger,
		SummaryCache: cache,
	}, nil
}

// ProvideTokenService creates the bearer token verifier/issuer.
func ProvideTokenService(cfg *AuthConfig) (*auth.TokenService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	return auth.NewTokenService(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.Issuer,
		TokenTTL: cfg.TokenTTL,
	})
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Ledger  service.LedgerService
	Summary *SummaryConfig
	Logger  *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if deps.Summary == nil {
		return nil, fmt.Errorf("summary config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	manager.Register(worker.NewSummaryWorker(worker.SummaryWorkerConfig{
		RefreshInterval: deps.Summary.RefreshInterval,
	}, deps.Ledger, deps.Logger))

	return manager, nil
}
