// Package finconfig holds the singleton financial rule parameters used by the
// credit engine and account activation.
package finconfig

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// FinancialConfig is the current effective rule set. Updates replace it wholesale.
type FinancialConfig struct {
	CreditoMaxColaborador  decimal.Decimal `json:"credito_max_colaborador" validate:"gte=0"`
	SaldoMinColaborador    decimal.Decimal `json:"saldo_min_colaborador" validate:"gte=0"`
	JurosCreditoColab      decimal.Decimal `json:"juros_credito_colab" validate:"gte=0,lte=1"`
	JurosCreditoSubscritor decimal.Decimal `json:"juros_credito_subscritor" validate:"gte=0,lte=1"`
	CapitalMinAtivacao     decimal.Decimal `json:"capital_min_ativacao" validate:"gte=0"`
	PercentagemMaxReserva  decimal.Decimal `json:"percentagem_max_reserva" validate:"gte=0,lte=1"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// DefaultConfig is served until Master stores a configuration.
func DefaultConfig() FinancialConfig {
	return FinancialConfig{
		CreditoMaxColaborador:  decimal.NewFromInt(5000),
		SaldoMinColaborador:    decimal.NewFromInt(1000),
		JurosCreditoColab:      decimal.RequireFromString("0.10"),
		JurosCreditoSubscritor: decimal.RequireFromString("0.15"),
		CapitalMinAtivacao:     decimal.NewFromInt(500),
		PercentagemMaxReserva:  decimal.RequireFromString("0.50"),
	}
}

// RoleLimits are the credit rules that apply to one account.
type RoleLimits struct {
	MaxCredit    decimal.Decimal
	MinBalance   decimal.Decimal
	InterestRate decimal.Decimal
}

// Limits resolves the credit rules for role given the wallet's available balance.
// Subscribers may borrow up to PercentagemMaxReserva of their available funds and
// must keep the activation capital in the wallet.
func (c FinancialConfig) Limits(role shared.Role, available decimal.Decimal) (RoleLimits, bool) {
	switch role {
	case shared.RoleCollaborator:
		return RoleLimits{
			MaxCredit:    c.CreditoMaxColaborador,
			MinBalance:   c.SaldoMinColaborador,
			InterestRate: c.JurosCreditoColab,
		}, true
	case shared.RoleSubscriber:
		return RoleLimits{
			MaxCredit:    available.Mul(c.PercentagemMaxReserva).Round(2),
			MinBalance:   c.CapitalMinAtivacao,
			InterestRate: c.JurosCreditoSubscritor,
		}, true
	}
	return RoleLimits{}, false
}
