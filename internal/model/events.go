package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names as published by pools.
const (
	EventExchangeCreated   = "ExchangeCreated"
	EventExchangeUpdated   = "ExchangeUpdated"
	EventExchangeCancelled = "ExchangeCancelled"
	EventTrade             = "Trade"
)

// SwapEvent is a committed pool state transition. Trader is the null address
// for unrestricted offers; on Trade it is the party that fulfilled the offer.
// Receiver is only set for ExchangeCancelled.
type SwapEvent struct {
	Name     string
	Pool     common.Address
	NFT0     common.Address
	NFT1     common.Address
	Owner    common.Address
	Trader   common.Address
	Receiver common.Address
	TokenID0 uint256.Int
	TokenID1 uint256.Int
}

// ExchangeEventData is the decoded payload shared by all pool events.
type ExchangeEventData struct {
	NFT0     string `json:"nft0"`
	NFT1     string `json:"nft1"`
	Owner    string `json:"owner"`
	Trader   string `json:"trader"`
	Receiver string `json:"receiver,omitempty"`
	TokenID0 string `json:"token_id0"`
	TokenID1 string `json:"token_id1"`
}
