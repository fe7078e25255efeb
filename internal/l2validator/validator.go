// Package l2validator implements the L2 Validator (§4.4): the microstructure
// veto gate between the order-book cache and an execution strategy. It is
// grounded on the named chain-of-checks-returning-a-verdict shape of
// risk/gate.go's CanEnter from the codebase this core grows from, applied
// here to book-quality checks instead of account-risk checks.
package l2validator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/types"
)

// Config holds the thresholds named in §4.4.
type Config struct {
	MaxSpreadPct        float64
	MinDepthMult        decimal.Decimal
	OBIBuyThreshold     float64
	MinStructureScore   float64
	MaxBookAge          time.Duration
	TopKLevels          int
}

func DefaultConfig() Config {
	return Config{
		MaxSpreadPct:      0.001,
		MinDepthMult:      decimal.NewFromInt(3),
		OBIBuyThreshold:   1.0,
		MinStructureScore: 60,
		MaxBookAge:        orderbook.StaleAfter,
		TopKLevels:        5,
	}
}

// Validator gates an order against live microstructure.
type Validator struct {
	cfg   Config
	cache *orderbook.Cache
}

func New(cfg Config, cache *orderbook.Cache) *Validator {
	return &Validator{cfg: cfg, cache: cache}
}

// Validate runs the ordered checks of §4.4 and returns nil iff every check
// passes, else the first DomainError encountered.
func (v *Validator) Validate(symbol, side string, size decimal.Decimal, structureScore, momentumScore float64) error {
	_ = momentumScore // carried for future use; not gated on directly per §4.4

	if err := v.cache.Validate(symbol, v.cfg.MaxBookAge); err != nil {
		return err
	}
	snap, err := v.cache.Snapshot(symbol)
	if err != nil {
		return err
	}

	if snap.SpreadPct() > v.cfg.MaxSpreadPct {
		return types.NewError(types.ErrWideSpread, "spread exceeds max_spread_pct")
	}

	minDepth := v.cfg.MinDepthMult.Mul(size)
	depth := snap.DepthAtTop(side, v.cfg.TopKLevels)
	if depth.LessThan(minDepth) {
		return types.NewError(types.ErrInsufficientDepth, "top-of-book depth below min_depth_mult*size")
	}

	obi, ok := snap.OBI(v.cfg.TopKLevels)
	if !ok {
		return types.NewError(types.ErrNoMarketData, "cannot compute OBI, one side empty")
	}
	if side == "BUY" {
		if obi < v.cfg.OBIBuyThreshold {
			return types.NewError(types.ErrOBIAdverse, "OBI below buy threshold")
		}
	} else {
		if obi > 1/v.cfg.OBIBuyThreshold {
			return types.NewError(types.ErrOBIAdverse, "OBI above inverse sell threshold")
		}
	}

	if structureScore < v.cfg.MinStructureScore {
		return types.NewError(types.ErrWeakStructure, "structure score below min_structure_threshold")
	}

	return nil
}
