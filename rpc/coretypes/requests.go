package coretypes

import (
	"github.com/unwalled/unwalled/libs/bytes"
	"github.com/unwalled/unwalled/types"
)

type RequestSubscribe struct {
	Query string `json:"query"`
}

type RequestUnsubscribe struct {
	Query string `json:"query"`
}

type RequestAccount struct {
	Address types.Address `json:"address"`
}

type RequestBid struct {
	ID string `json:"id"`
}

type RequestBroadcastTx struct {
	Tx bytes.HexBytes `json:"tx"`
}

type RequestTx struct {
	Hash bytes.HexBytes `json:"hash"`
}

type RequestTxSearch struct {
	Query   string `json:"query"`
	Page    *int   `json:"page,omitempty"`
	PerPage *int   `json:"per_page,omitempty"`
	OrderBy string `json:"order_by,omitempty"`
}

type RequestSettlement struct {
	Address types.Address  `json:"address"`
	Amount  uint64         `json:"amount"`
	Ref     bytes.HexBytes `json:"ref,omitempty"`
}

type RequestBroadcastTxBatch struct {
	Txs []bytes.HexBytes `json:"txs"`
}

type RequestRankBids struct {
	Attributes []string `json:"attributes"`
	Floor      uint64   `json:"floor,omitempty"`
	PerPage    *int     `json:"per_page,omitempty"`
}
