package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftSwap/internal/model"
)

// TransferHook runs after a token has moved. A hook error fails the transfer
// and the move is undone.
type TransferHook func(ctx context.Context, collection, from, to common.Address, tokenID uint256.Int) error

// Book is an in-memory Custody over any number of collections.
type Book struct {
	mu      sync.RWMutex
	holders map[common.Address]map[uint256.Int]common.Address
	hook    TransferHook
}

func NewBook() *Book {
	return &Book{holders: make(map[common.Address]map[uint256.Int]common.Address)}
}

// SetHook installs a hook invoked after every move. The book lock is not held
// while the hook runs, so hooks may call back into callers.
func (b *Book) SetHook(hook TransferHook) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// Mint assigns a new token to holder.
func (b *Book) Mint(collection common.Address, tokenID uint256.Int, holder common.Address) error {
	if holder == (common.Address{}) {
		return ErrInvalidRecipient
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.holders[collection]
	if tokens == nil {
		tokens = make(map[uint256.Int]common.Address)
		b.holders[collection] = tokens
	}
	if _, ok := tokens[tokenID]; ok {
		return fmt.Errorf("token %s already minted in %s", model.FormatTokenID(tokenID), collection.Hex())
	}
	tokens[tokenID] = holder
	return nil
}

func (b *Book) HolderOf(_ context.Context, collection common.Address, tokenID uint256.Int) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	holder, ok := b.holders[collection][tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%s in %s: %w", model.FormatTokenID(tokenID), collection.Hex(), ErrNonexistentToken)
	}
	return holder, nil
}

func (b *Book) Transfer(ctx context.Context, collection common.Address, from, to common.Address, tokenID uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	b.mu.Lock()
	holder, ok := b.holders[collection][tokenID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%s in %s: %w", model.FormatTokenID(tokenID), collection.Hex(), ErrNonexistentToken)
	}
	if holder != from {
		b.mu.Unlock()
		return fmt.Errorf("%s in %s held by %s: %w", model.FormatTokenID(tokenID), collection.Hex(), holder.Hex(), ErrNotHolder)
	}
	b.holders[collection][tokenID] = to
	hook := b.hook
	b.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, collection, from, to, tokenID); err != nil {
		return b.undo(collection, from, to, tokenID, err)
	}
	return nil
}

// undo hands the token back to from after a rejected hook. A token the hook
// already moved on is left where it is.
func (b *Book) undo(collection, from, to common.Address, tokenID uint256.Int, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.holders[collection][tokenID] != to {
		return errors.Join(cause, fmt.Errorf("%s in %s moved during hook: %w", model.FormatTokenID(tokenID), collection.Hex(), ErrTransferNotUndone))
	}
	b.holders[collection][tokenID] = from
	return cause
}

// Holding is one token assignment, used for snapshots.
type Holding struct {
	Collection common.Address `json:"collection"`
	TokenID    string         `json:"token_id"`
	Holder     common.Address `json:"holder"`
}

// Holdings returns every assignment sorted by collection then token id.
func (b *Book) Holdings() []Holding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type entry struct {
		collection common.Address
		id         uint256.Int
		holder     common.Address
	}
	entries := make([]entry, 0)
	for collection, tokens := range b.holders {
		for id, holder := range tokens {
			entries = append(entries, entry{collection: collection, id: id, holder: holder})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].collection.Cmp(entries[j].collection); c != 0 {
			return c < 0
		}
		return entries[i].id.Lt(&entries[j].id)
	})

	out := make([]Holding, 0, len(entries))
	for _, e := range entries {
		out = append(out, Holding{Collection: e.collection, TokenID: model.FormatTokenID(e.id), Holder: e.holder})
	}
	return out
}

// RestoreBook rebuilds a book from snapshot holdings.
func RestoreBook(holdings []Holding) (*Book, error) {
	book := NewBook()
	for _, h := range holdings {
		id, err := model.ParseTokenID(h.TokenID)
		if err != nil {
			return nil, fmt.Errorf("restore holding: %w", err)
		}
		if err := book.Mint(h.Collection, id, h.Holder); err != nil {
			return nil, fmt.Errorf("restore holding: %w", err)
		}
	}
	return book, nil
}
