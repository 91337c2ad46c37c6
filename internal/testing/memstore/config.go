package memstore

import (
	"context"

	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
)

// Config serves a fixed configuration.
type Config struct {
	Cfg finconfig.FinancialConfig
	Err error
}

// Get returns the configured value.
func (c *Config) Get(context.Context) (finconfig.FinancialConfig, error) {
	return c.Cfg, c.Err
}
