package contract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"nftSwap/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Chain may be nil
// when PoolMetaCache is preloaded with every pool.
type DecodeContext struct {
	Context       context.Context
	Chain         Caller
	PoolMetaCache *PoolMetaCache
	Logger        *zap.Logger
}

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// PoolDecoder decodes swap pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool event decoder. Topic0Map adds aliases for
// deployments whose event signatures differ.
func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, 4+len(cfg.Topic0Map))
	for _, name := range []string{
		model.EventExchangeCreated,
		model.EventExchangeUpdated,
		model.EventExchangeCancelled,
		model.EventTrade,
	} {
		topicToName[strings.ToLower(parsed.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{poolABI: parsed, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Topics returns the topic0 hashes the decoder accepts.
func (d *PoolDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	pool := common.HexToAddress(log.Address)

	decoded, err := d.decodeExchange(name, log)
	if err != nil {
		return nil, err
	}

	meta, err := getPoolMeta(ctx, pool)
	if err != nil {
		// the event carries the pair itself
		if ctx.Logger != nil {
			ctx.Logger.Debug("pool meta unavailable, using event pair", zap.String("pool", pool.Hex()), zap.Error(err))
		}
		meta = model.PoolMeta{NFT0: decoded.NFT0, NFT1: decoded.NFT1}
	}

	return buildTypedEvent(log, name, decoded, meta), nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exchangecreated", "created":
		return model.EventExchangeCreated
	case "exchangeupdated", "updated":
		return model.EventExchangeUpdated
	case "exchangecancelled", "cancelled":
		return model.EventExchangeCancelled
	case "trade":
		return model.EventTrade
	default:
		return ""
	}
}

func getPoolMeta(ctx DecodeContext, pool common.Address) (model.PoolMeta, error) {
	if ctx.PoolMetaCache != nil {
		if meta, ok := ctx.PoolMetaCache.Get(pool); ok {
			return meta, nil
		}
	}
	if ctx.Chain == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	meta, err := FetchPoolMeta(callCtx, ctx.Chain, pool)
	if err != nil {
		return model.PoolMeta{}, err
	}
	if ctx.PoolMetaCache != nil {
		ctx.PoolMetaCache.Set(pool, meta)
	}
	return meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, data model.ExchangeEventData, meta model.PoolMeta) *model.TypedEvent {
	return &model.TypedEvent{
		LogRef:    log.Ref(),
		BlockHash: log.BlockHash,
		EventName: name,
		Timestamp: log.Timestamp,
		Topic0:    log.Topic0(),
		Exchange:  data,
		PoolMeta:  meta,
	}
}

func (d *PoolDecoder) decodeExchange(name string, log model.LogRecord) (model.ExchangeEventData, error) {
	event := d.poolABI.Events[name]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return model.ExchangeEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.ExchangeEventData{}, err
	}

	want := 6
	if name == model.EventExchangeCancelled {
		want = 7
	}
	if len(values) != want {
		return model.ExchangeEventData{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}

	addrs := make([]common.Address, want-2)
	for i := range addrs {
		addrs[i], err = asAddress(values[i])
		if err != nil {
			return model.ExchangeEventData{}, fmt.Errorf("%s: %w", event.Inputs[i].Name, err)
		}
	}
	tokenID0, err := asBigInt(values[want-2])
	if err != nil {
		return model.ExchangeEventData{}, fmt.Errorf("tokenId0: %w", err)
	}
	tokenID1, err := asBigInt(values[want-1])
	if err != nil {
		return model.ExchangeEventData{}, fmt.Errorf("tokenId1: %w", err)
	}

	out := model.ExchangeEventData{
		NFT0:     addrs[0].Hex(),
		NFT1:     addrs[1].Hex(),
		Owner:    addrs[2].Hex(),
		Trader:   addrs[3].Hex(),
		TokenID0: bigToDecimal(tokenID0),
		TokenID1: bigToDecimal(tokenID1),
	}
	if name == model.EventExchangeCancelled {
		out.Receiver = addrs[4].Hex()
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
