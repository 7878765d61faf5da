package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenPair is the ordered (tokenId0, tokenId1) key of an exchange within a pool.
// (5, 9) and (9, 5) are distinct keys.
type TokenPair struct {
	TokenID0 uint256.Int
	TokenID1 uint256.Int
}

// NewTokenPair builds a key from small integer ids.
func NewTokenPair(id0, id1 uint64) TokenPair {
	var p TokenPair
	p.TokenID0.SetUint64(id0)
	p.TokenID1.SetUint64(id1)
	return p
}

func (p TokenPair) String() string {
	return fmt.Sprintf("(%s, %s)", FormatTokenID(p.TokenID0), FormatTokenID(p.TokenID1))
}

type tokenPairJSON struct {
	TokenID0 string `json:"token_id0"`
	TokenID1 string `json:"token_id1"`
}

// MarshalJSON encodes token ids as decimal strings.
func (p TokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenPairJSON{
		TokenID0: FormatTokenID(p.TokenID0),
		TokenID1: FormatTokenID(p.TokenID1),
	})
}

// UnmarshalJSON decodes decimal or 0x-prefixed token ids.
func (p *TokenPair) UnmarshalJSON(data []byte) error {
	var raw tokenPairJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id0, err := ParseTokenID(raw.TokenID0)
	if err != nil {
		return fmt.Errorf("token_id0: %w", err)
	}
	id1, err := ParseTokenID(raw.TokenID1)
	if err != nil {
		return fmt.Errorf("token_id1: %w", err)
	}
	p.TokenID0 = id0
	p.TokenID1 = id1
	return nil
}

// Exchange is a pending offer: Owner escrowed TokenID0 and wants TokenID1.
// A nil Trader means any non-owner may fulfill it.
type Exchange struct {
	Owner    common.Address
	Trader   *common.Address
	TokenID0 uint256.Int
	TokenID1 uint256.Int
}

// Live reports whether the record describes an open offer. The zero record
// returned for absent keys has a null owner.
func (e Exchange) Live() bool {
	return e.Owner != (common.Address{})
}

// Key returns the ordered pair identifying the exchange.
func (e Exchange) Key() TokenPair {
	return TokenPair{TokenID0: e.TokenID0, TokenID1: e.TokenID1}
}

// TraderOrZero returns the trader restriction, or the null address when unset.
func (e Exchange) TraderOrZero() common.Address {
	if e.Trader == nil {
		return common.Address{}
	}
	return *e.Trader
}

// Clone returns a copy that does not share the Trader pointer.
func (e Exchange) Clone() Exchange {
	out := e
	if e.Trader != nil {
		trader := *e.Trader
		out.Trader = &trader
	}
	return out
}

type exchangeJSON struct {
	Owner    common.Address  `json:"owner"`
	Trader   *common.Address `json:"trader,omitempty"`
	TokenID0 string          `json:"token_id0"`
	TokenID1 string          `json:"token_id1"`
}

func (e Exchange) MarshalJSON() ([]byte, error) {
	return json.Marshal(exchangeJSON{
		Owner:    e.Owner,
		Trader:   e.Trader,
		TokenID0: FormatTokenID(e.TokenID0),
		TokenID1: FormatTokenID(e.TokenID1),
	})
}

func (e *Exchange) UnmarshalJSON(data []byte) error {
	var raw exchangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id0, err := ParseTokenID(raw.TokenID0)
	if err != nil {
		return fmt.Errorf("token_id0: %w", err)
	}
	id1, err := ParseTokenID(raw.TokenID1)
	if err != nil {
		return fmt.Errorf("token_id1: %w", err)
	}
	*e = Exchange{Owner: raw.Owner, Trader: raw.Trader, TokenID0: id0, TokenID1: id1}
	return nil
}

// ParseTokenID parses a decimal or 0x-prefixed hex token id into a uint256.
func ParseTokenID(input string) (uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return uint256.Int{}, fmt.Errorf("empty token id")
	}

	base := 10
	digits := input
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		base = 16
		digits = input[2:]
	}
	value, ok := new(big.Int).SetString(digits, base)
	if !ok || value.Sign() < 0 {
		return uint256.Int{}, fmt.Errorf("invalid token id: %s", input)
	}
	id, overflow := uint256.FromBig(value)
	if overflow {
		return uint256.Int{}, fmt.Errorf("token id overflows uint256: %s", input)
	}
	return *id, nil
}

// FormatTokenID renders a token id in decimal.
func FormatTokenID(id uint256.Int) string {
	return id.ToBig().String()
}
