package finconfig

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// Repository persists the configuration row.
type Repository interface {
	Load(ctx context.Context) (FinancialConfig, bool, error)
	Save(ctx context.Context, cfg FinancialConfig) error
}

// AuditPort records configuration changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Store serves the current configuration and replaces it on Set.
type Store struct {
	repo     Repository
	cache    *Cache
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewStore constructs Store. cache and audit may be nil.
func NewStore(repo Repository, cache *Cache, audit AuditPort, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the current configuration.
func (s *Store) Get(ctx context.Context) (FinancialConfig, error) {
	var cfg FinancialConfig
	err := s.cache.FetchJSON(ctx, &cfg, func(ctx context.Context) (any, error) {
		return s.load(ctx)
	})
	if err == nil {
		return cfg, nil
	}
	s.logger.Warn("financial config cache unavailable", slog.Any("error", err))
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (FinancialConfig, error) {
	cfg, ok, err := s.repo.Load(ctx)
	if err != nil {
		return FinancialConfig{}, err
	}
	if !ok {
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// Set replaces the configuration wholesale.
func (s *Store) Set(ctx context.Context, cfg FinancialConfig, actor shared.Actor) (FinancialConfig, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return FinancialConfig{}, shared.Validation("financial config: %v", err)
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, cfg); err != nil {
		return FinancialConfig{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Error("bump financial config cache", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "finance_config.set",
			Entity:   "financial_config",
			EntityID: "1",
			Meta: map[string]any{
				"credito_max_colaborador":  cfg.CreditoMaxColaborador.String(),
				"juros_credito_colab":      cfg.JurosCreditoColab.String(),
				"juros_credito_subscritor": cfg.JurosCreditoSubscritor.String(),
			},
			At: cfg.UpdatedAt,
		}); err != nil {
			s.logger.Warn("audit financial config", slog.Any("error", err))
		}
	}
	return cfg, nil
}
