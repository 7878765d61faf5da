// Package custody models the token and value holders a swap pool moves assets between.
package custody

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrNonexistentToken is returned when a token id has never been minted.
	ErrNonexistentToken = errors.New("nonexistent token")
	// ErrNotHolder is returned when a transfer names a from that does not hold the token.
	ErrNotHolder = errors.New("from is not the token holder")
	// ErrInsufficientBalance is returned when a value transfer exceeds the sender balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidRecipient is returned for transfers to the null address.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrTransferNotUndone is returned when a failed transfer could not be rolled back.
	ErrTransferNotUndone = errors.New("transfer not undone")
)

// Custody reports and moves token holdings within named collections.
// A Transfer that returns an error leaves the holder unchanged unless the
// error wraps ErrTransferNotUndone.
type Custody interface {
	HolderOf(ctx context.Context, collection common.Address, tokenID uint256.Int) (common.Address, error)
	Transfer(ctx context.Context, collection common.Address, from, to common.Address, tokenID uint256.Int) error
}

// FeeTransferer moves value between accounts.
type FeeTransferer interface {
	TransferValue(ctx context.Context, from, to common.Address, amount *big.Int) error
}
