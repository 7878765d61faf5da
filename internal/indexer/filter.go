package indexer

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Filter selects the pool logs to index: logs emitted by one of Addresses
// whose first topic is one of Topic0. An empty Topic0 matches any event.
type Filter struct {
	Addresses []common.Address
	Topic0    []common.Hash
}

// ParseFilter reads pool addresses and topic0 hashes as given on the command
// line. Blank entries and repeats are dropped; order is kept.
func ParseFilter(pools, topics []string) (Filter, error) {
	var f Filter
	seenPools := mapset.NewThreadUnsafeSet[common.Address]()
	for _, input := range pools {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return Filter{}, fmt.Errorf("invalid address: %s", input)
		}
		if addr := common.HexToAddress(input); seenPools.Add(addr) {
			f.Addresses = append(f.Addresses, addr)
		}
	}

	seenTopics := mapset.NewThreadUnsafeSet[common.Hash]()
	for _, input := range topics {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		raw, err := hexutil.Decode(input)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(raw) != common.HashLength {
			return Filter{}, fmt.Errorf("invalid topic0 length: %s", input)
		}
		if topic := common.BytesToHash(raw); seenTopics.Add(topic) {
			f.Topic0 = append(f.Topic0, topic)
		}
	}
	return f, nil
}
