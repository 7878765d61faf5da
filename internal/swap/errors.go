package swap

import (
	"errors"

	"nftSwap/internal/metrics"
)

var (
	ErrZeroAddress          = errors.New("zero address")
	ErrAlreadyOwnedToken    = errors.New("caller already owns the requested token")
	ErrExchangeExists       = errors.New("exchange exists")
	ErrNonexistentExchange  = errors.New("nonexistent exchange")
	ErrInvalidTrader        = errors.New("invalid trader")
	ErrInvalidTokenReceiver = errors.New("invalid token receiver")
	ErrNotOwner             = errors.New("caller is not the exchange owner")
	ErrInvalidTo            = errors.New("invalid recipient")
	ErrNotTokenHolder       = errors.New("caller does not hold the offered token")
	ErrTransferFailed       = errors.New("token transfer failed")
	ErrEscrowLost           = errors.New("escrowed token not held by pool")

	ErrPoolAlreadyExists = errors.New("pool already exists")
	ErrFeeTransferFailed = errors.New("fee transfer failed")
	ErrNotFeeSetter      = errors.New("caller is not the fee receiver setter")
	ErrUnknownPool       = errors.New("unknown pool")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrZeroAddress, "ZeroAddress"},
	{ErrAlreadyOwnedToken, "AlreadyOwnedToken"},
	{ErrExchangeExists, "ExchangeExists"},
	{ErrNonexistentExchange, "NonexistentExchange"},
	{ErrInvalidTrader, "InvalidTrader"},
	{ErrInvalidTokenReceiver, "InvalidTokenReceiver"},
	{ErrNotOwner, "NotOwner"},
	{ErrInvalidTo, "InvalidTo"},
	{ErrNotTokenHolder, "NotTokenHolder"},
	{ErrEscrowLost, "EscrowLost"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrPoolAlreadyExists, "PoolAlreadyExists"},
	{ErrFeeTransferFailed, "FeeTransferFailed"},
	{ErrNotFeeSetter, "NotFeeSetter"},
	{ErrUnknownPool, "UnknownPool"},
}

// ErrorKind returns the short name of the first sentinel err wraps, "ok" for
// nil and "Internal" for anything else.
func ErrorKind(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
