package model

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestExchangeJSONTokenIDsAsDecimalStrings(t *testing.T) {
	id0, err := ParseTokenID("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if err != nil {
		t.Fatalf("parse max id: %v", err)
	}

	ex := Exchange{
		Owner:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenID0: id0,
		TokenID1: *uint256.NewInt(7),
	}

	data, err := json.Marshal(ex)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["token_id0"] != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Fatalf("token_id0 mismatch: %v", decoded["token_id0"])
	}
	if decoded["token_id1"] != "7" {
		t.Fatalf("token_id1 mismatch: %v", decoded["token_id1"])
	}
	if _, ok := decoded["trader"]; ok {
		t.Fatalf("unrestricted exchange should omit trader")
	}

	var back Exchange
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode exchange: %v", err)
	}
	if back.Key() != ex.Key() || back.Owner != ex.Owner || back.Trader != nil {
		t.Fatalf("exchange mismatch: %+v != %+v", back, ex)
	}
}

func TestExchangeLiveAndClone(t *testing.T) {
	if (Exchange{}).Live() {
		t.Fatalf("zero record must not be live")
	}

	trader := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ex := Exchange{Owner: common.HexToAddress("0x1"), Trader: &trader}
	if !ex.Live() {
		t.Fatalf("exchange with owner should be live")
	}

	clone := ex.Clone()
	*clone.Trader = common.Address{}
	if *ex.Trader != trader {
		t.Fatalf("clone shares trader pointer")
	}
	if (Exchange{}).TraderOrZero() != (common.Address{}) {
		t.Fatalf("unset trader should be the null address")
	}
}

func TestParseTokenID(t *testing.T) {
	id, err := ParseTokenID("0x10")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if id.Uint64() != 16 {
		t.Fatalf("hex id mismatch: %s", FormatTokenID(id))
	}

	if _, err := ParseTokenID("-1"); err == nil {
		t.Fatalf("expected error for negative id")
	}
	if _, err := ParseTokenID("abc"); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
	if _, err := ParseTokenID("0x1" + "0000000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestTokenPairDirectional(t *testing.T) {
	if NewTokenPair(5, 9) == NewTokenPair(9, 5) {
		t.Fatalf("token pairs must be ordered")
	}
	if NewTokenPair(5, 9).String() != "(5, 9)" {
		t.Fatalf("unexpected string: %s", NewTokenPair(5, 9).String())
	}
}
