// Package reconcile checks that escrowed tokens recorded by local pools are
// held by those pools on chain.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"nftSwap/internal/contract"
	"nftSwap/internal/model"
	"nftSwap/internal/swap"
)

// Mismatch describes a live exchange whose escrow is not where the pool expects it.
type Mismatch struct {
	Pool       common.Address  `json:"pool"`
	Collection common.Address  `json:"collection"`
	Pair       model.TokenPair `json:"pair"`
	Holder     common.Address  `json:"holder"`
	Error      string          `json:"error,omitempty"`
}

// Report summarizes a reconciliation run.
type Report struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Run queries ownerOf for the escrowed token of every live exchange in pools.
// RPC failures are reported per exchange; only context cancellation aborts.
func Run(ctx context.Context, caller contract.Caller, pools []swap.PoolState, block *big.Int, logger *zap.Logger) (Report, error) {
	if caller == nil {
		return Report{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	report := Report{Mismatches: make([]Mismatch, 0)}
	for _, pool := range pools {
		for _, ex := range pool.Exchanges {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Checked++

			holder, err := contract.OwnerOf(ctx, caller, pool.NFT0, ex.TokenID0, block)
			if err != nil {
				logger.Warn("ownerOf failed",
					zap.String("pool", pool.Address.Hex()),
					zap.Stringer("pair", ex.Key()),
					zap.Error(err),
				)
				report.Mismatches = append(report.Mismatches, Mismatch{
					Pool:       pool.Address,
					Collection: pool.NFT0,
					Pair:       ex.Key(),
					Error:      err.Error(),
				})
				continue
			}
			if holder != pool.Address {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Pool:       pool.Address,
					Collection: pool.NFT0,
					Pair:       ex.Key(),
					Holder:     holder,
				})
			}
		}
	}

	logger.Info("reconcile complete", zap.Int("checked", report.Checked), zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}
