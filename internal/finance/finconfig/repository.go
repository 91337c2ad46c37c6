package finconfig

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository persists the singleton row in financial_config.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Load returns the stored configuration; ok is false when none was saved yet.
func (r *PGRepository) Load(ctx context.Context) (FinancialConfig, bool, error) {
	var cfg FinancialConfig
	err := r.pool.QueryRow(ctx, `SELECT credito_max_colaborador, saldo_min_colaborador, juros_credito_colab,
juros_credito_subscritor, capital_min_ativacao, percentagem_max_reserva, updated_at
FROM financial_config WHERE id = 1`).Scan(
		&cfg.CreditoMaxColaborador,
		&cfg.SaldoMinColaborador,
		&cfg.JurosCreditoColab,
		&cfg.JurosCreditoSubscritor,
		&cfg.CapitalMinAtivacao,
		&cfg.PercentagemMaxReserva,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return FinancialConfig{}, false, nil
	}
	if err != nil {
		return FinancialConfig{}, false, err
	}
	return cfg, true, nil
}

// Save replaces the singleton row.
func (r *PGRepository) Save(ctx context.Context, cfg FinancialConfig) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO financial_config (id, credito_max_colaborador, saldo_min_colaborador,
juros_credito_colab, juros_credito_subscritor, capital_min_ativacao, percentagem_max_reserva, updated_at)
VALUES (1, $1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	credito_max_colaborador = EXCLUDED.credito_max_colaborador,
	saldo_min_colaborador = EXCLUDED.saldo_min_colaborador,
	juros_credito_colab = EXCLUDED.juros_credito_colab,
	juros_credito_subscritor = EXCLUDED.juros_credito_subscritor,
	capital_min_ativacao = EXCLUDED.capital_min_ativacao,
	percentagem_max_reserva = EXCLUDED.percentagem_max_reserva,
	updated_at = EXCLUDED.updated_at`,
		cfg.CreditoMaxColaborador,
		cfg.SaldoMinColaborador,
		cfg.JurosCreditoColab,
		cfg.JurosCreditoSubscritor,
		cfg.CapitalMinAtivacao,
		cfg.PercentagemMaxReserva,
		cfg.UpdatedAt,
	)
	return err
}
