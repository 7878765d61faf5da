package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftSwap/internal/model"
)

// EncodeEvent ABI-encodes a committed pool event into a log record carrying
// the pool address, topics and data. Position fields are left to the caller.
func EncodeEvent(ev model.SwapEvent) (model.LogRecord, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event, ok := parsed.Events[ev.Name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unsupported event name: %s", ev.Name)
	}

	tokenID0 := ev.TokenID0.ToBig()
	tokenID1 := ev.TokenID1.ToBig()
	var args []interface{}
	if ev.Name == model.EventExchangeCancelled {
		args = []interface{}{ev.NFT0, ev.NFT1, ev.Owner, ev.Trader, ev.Receiver, tokenID0, tokenID1}
	} else {
		args = []interface{}{ev.NFT0, ev.NFT1, ev.Owner, ev.Trader, tokenID0, tokenID1}
	}

	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", ev.Name, err)
	}

	return model.LogRecord{
		Address: ev.Pool.Hex(),
		Topics:  []string{event.ID.Hex()},
		Data:    hexutil.Encode(data),
	}, nil
}

// EventTopics returns the topic0 of every pool event, keyed by name.
func EventTopics() (map[string]string, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	out := make(map[string]string, 4)
	for _, name := range []string{
		model.EventExchangeCreated,
		model.EventExchangeUpdated,
		model.EventExchangeCancelled,
		model.EventTrade,
	} {
		out[name] = parsed.Events[name].ID.Hex()
	}
	return out, nil
}

func bigToDecimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
