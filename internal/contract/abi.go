package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "nft0", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "nft1", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId1", "type": "uint256"}
    ],
    "name": "ExchangeCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "nft0", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "nft1", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId1", "type": "uint256"}
    ],
    "name": "ExchangeUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "nft0", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "nft1", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "receiver", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId1", "type": "uint256"}
    ],
    "name": "ExchangeCancelled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "nft0", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "nft1", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId1", "type": "uint256"}
    ],
    "name": "Trade",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "getNFTPair",
    "outputs": [
      {"internalType": "address", "name": "", "type": "address"},
      {"internalType": "address", "name": "", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "factory",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc721ABIJSON = `[
  {
    "inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
    "name": "ownerOf",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error

	erc721ABI     abi.ABI
	erc721ABIOnce sync.Once
	erc721ABIErr  error
)

// PoolABI returns the parsed swap pool ABI.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}

func erc721ABIInstance() (abi.ABI, error) {
	erc721ABIOnce.Do(func() {
		erc721ABI, erc721ABIErr = abi.JSON(strings.NewReader(erc721ABIJSON))
	})
	return erc721ABI, erc721ABIErr
}
