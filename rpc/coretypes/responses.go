package coretypes

import (
	"encoding/json"
	"errors"

	"github.com/unwalled/unwalled/libs/bytes"
	"github.com/unwalled/unwalled/types"
)

// List of standardized errors used across RPC
var (
	ErrZeroOrNegativePerPage = errors.New("zero or negative per_page")
	ErrPageOutOfRange        = errors.New("page should be within range")
	ErrZeroOrNegativeHeight  = errors.New("height must be greater than zero")
	ErrTxIndexingDisabled    = errors.New("transaction indexing is disabled")
	ErrBidNotFound           = errors.New("bid not found")
	ErrTxNotFound            = errors.New("tx not found")
	ErrTimedOutWaitingForTx  = errors.New("timed out waiting for tx to be committed")
	ErrSettlementDisabled    = errors.New("settlement bridge is disabled")
	ErrInvalidRequest        = errors.New("invalid request")
)

// Info about the node's syncing state
type SyncInfo struct {
	ChainID    string         `json:"chain_id"`
	Height     uint64         `json:"height,string"`
	AppHash    bytes.HexBytes `json:"app_hash"`
	MempoolTxs int            `json:"mempool_txs"`
}

// Node Status
type ResultStatus struct {
	Moniker  string        `json:"moniker"`
	Version  string        `json:"version"`
	Signer   types.Address `json:"signer,omitempty"`
	SyncInfo SyncInfo      `json:"sync_info"`
}

// ResultHealth is an empty answer to a health check.
type ResultHealth struct{}

type ResultAccount struct {
	Address   types.Address `json:"address"`
	Balance   uint64        `json:"balance,string"`
	NextNonce uint64        `json:"next_nonce,string"`
}

type ResultBid struct {
	Bid        *types.Bid    `json:"bid"`
	Advertiser types.Address `json:"advertiser"`
	Seq        uint64        `json:"seq,string"`
}

// CheckTx result
type ResultBroadcastTx struct {
	Code types.Code     `json:"code"`
	Log  string         `json:"log,omitempty"`
	Hash bytes.HexBytes `json:"hash"`
}

// CheckTx and DeliverTx results
type ResultBroadcastTxCommit struct {
	CheckTx  ResultBroadcastTx `json:"check_tx"`
	TxResult *types.TxResult   `json:"tx_result,omitempty"`
	Hash     bytes.HexBytes    `json:"hash"`
	Height   uint64            `json:"height,string"`
}

// Result of querying for a tx
type ResultTx = types.TxResult

// Result of searching for txs
type ResultTxSearch struct {
	Txs        []*types.TxResult `json:"txs"`
	TotalCount int               `json:"total_count,string"`
}

// ResultUnconfirmedTxs reports the size of the mempool.
// Result of broadcasting a batch of txs, one entry per tx in request order
type ResultBroadcastTxBatch struct {
	Results []ResultBroadcastTx `json:"results"`
}

// Open bids ranked as an auction with the requested attributes would rank them
type ResultRankBids struct {
	Bids  []ResultBid `json:"bids"`
	Total int         `json:"total,string"`
}

type ResultUnconfirmedTxs struct {
	Count      int   `json:"n_txs,string"`
	TotalBytes int64 `json:"total_bytes,string"`
}

// ResultSettlement is the outcome of an onboard or offboard.
type ResultSettlement = types.TxResult

type (
	// empty results
	ResultSubscribe   struct{}
	ResultUnsubscribe struct{}
)

// Event data from a subscription
type ResultEvent struct {
	SubscriptionID string              `json:"subscription_id"`
	Query          string              `json:"query"`
	Data           json.RawMessage     `json:"data"`
	Events         map[string][]string `json:"events"`
}

// ResultGenesis is the genesis document the node was started with.
type ResultGenesis struct {
	Genesis *types.GenesisDoc `json:"genesis"`
}

// ResultUnsafeFlushMempool is an empty answer to a mempool flush.
type ResultUnsafeFlushMempool struct{}
