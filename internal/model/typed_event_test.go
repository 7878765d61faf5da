package model

import (
	"encoding/json"
	"testing"
)

func TestTypedEventFlatLogRef(t *testing.T) {
	record := LogRecord{
		ChainID:     31337,
		BlockNumber: 4,
		LogIndex:    0,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa"},
	}
	ev := TypedEvent{
		LogRef:    record.Ref(),
		EventName: EventTrade,
		Topic0:    record.Topic0(),
		Exchange: ExchangeEventData{
			NFT0:     "0xa000000000000000000000000000000000000001",
			NFT1:     "0xb000000000000000000000000000000000000002",
			TokenID0: "5",
			TokenID1: "9",
		},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["address"] != record.Address {
		t.Fatalf("address should be a top-level field, got %v", decoded["address"])
	}
	if _, ok := decoded["tx_hash"]; ok {
		t.Fatalf("empty tx_hash should be omitted")
	}
	exchange, ok := decoded["exchange"].(map[string]interface{})
	if !ok {
		t.Fatalf("exchange should be an object")
	}
	if _, ok := exchange["token_id0"].(string); !ok {
		t.Fatalf("token_id0 should be string")
	}

	var back TypedEvent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal typed event: %v", err)
	}
	if back.LogRef != ev.LogRef || back.Exchange != ev.Exchange {
		t.Fatalf("round-trip mismatch: %+v != %+v", back, ev)
	}
}

func TestTypedEventPairFallback(t *testing.T) {
	ev := TypedEvent{Exchange: ExchangeEventData{NFT0: "0xa", NFT1: "0xb"}}
	if got := ev.Pair(); got.NFT0 != "0xa" || got.NFT1 != "0xb" {
		t.Fatalf("expected payload pair, got %+v", got)
	}

	ev.PoolMeta = PoolMeta{NFT0: "0xc", NFT1: "0xd"}
	if got := ev.Pair(); got.NFT0 != "0xc" {
		t.Fatalf("expected pool meta pair, got %+v", got)
	}
}
