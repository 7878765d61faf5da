package aggregate

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"nftSwap/internal/model"
)

// Accumulator holds exchange activity for one pool window.
type Accumulator struct {
	ChainID        uint64
	PoolAddress    string
	PoolMeta       model.PoolMeta
	WindowStart    uint64
	WindowEnd      uint64
	CreatedCount   uint64
	UpdatedCount   uint64
	CancelledCount uint64
	TradeCount     uint64
	FirstBlock     uint64

	owners  mapset.Set[string]
	traders mapset.Set[string]
}

func NewAccumulator(ev model.TypedEvent, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     ev.ChainID,
		PoolAddress: ev.Address,
		PoolMeta:    ev.Pair(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		FirstBlock:  ev.BlockNumber,
		owners:      mapset.NewThreadUnsafeSet[string](),
		traders:     mapset.NewThreadUnsafeSet[string](),
	}
}

// AddEvent counts one pool event. Owners are counted on every event; traders
// only when they fulfil a trade.
func (a *Accumulator) AddEvent(ev model.TypedEvent) error {
	switch ev.EventName {
	case model.EventExchangeCreated:
		a.CreatedCount++
	case model.EventExchangeUpdated:
		a.UpdatedCount++
	case model.EventExchangeCancelled:
		a.CancelledCount++
	case model.EventTrade:
		a.TradeCount++
		addParty(a.traders, ev.Exchange.Trader)
	default:
		return fmt.Errorf("unsupported event name: %s", ev.EventName)
	}

	if ev.BlockNumber < a.FirstBlock {
		a.FirstBlock = ev.BlockNumber
	}
	if a.PoolMeta.NFT0 == "" {
		a.PoolMeta = ev.Pair()
	}
	addParty(a.owners, ev.Exchange.Owner)
	return nil
}

// Events returns the number of events counted.
func (a *Accumulator) Events() uint64 {
	return a.CreatedCount + a.UpdatedCount + a.CancelledCount + a.TradeCount
}

// UniqueOwners returns the number of distinct exchange owners seen.
func (a *Accumulator) UniqueOwners() uint64 { return uint64(a.owners.Cardinality()) }

// UniqueTraders returns the number of distinct accounts that fulfilled a trade.
func (a *Accumulator) UniqueTraders() uint64 { return uint64(a.traders.Cardinality()) }

// Window renders the accumulated counts.
func (a *Accumulator) Window(windowSeconds uint64) model.PoolActivityWindow {
	return model.PoolActivityWindow{
		ChainID:        a.ChainID,
		PoolAddress:    a.PoolAddress,
		NFT0:           a.PoolMeta.NFT0,
		NFT1:           a.PoolMeta.NFT1,
		WindowSizeSecs: int64(windowSeconds),
		WindowStart:    unixUTC(a.WindowStart),
		WindowEnd:      unixUTC(a.WindowEnd),
		CreatedCount:   a.CreatedCount,
		UpdatedCount:   a.UpdatedCount,
		CancelledCount: a.CancelledCount,
		TradeCount:     a.TradeCount,
		UniqueOwners:   a.UniqueOwners(),
		UniqueTraders:  a.UniqueTraders(),
	}
}

func addParty(set mapset.Set[string], address string) {
	if !common.IsHexAddress(address) {
		return
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return
	}
	set.Add(strings.ToLower(addr.Hex()))
}
