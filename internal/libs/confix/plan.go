package confix

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/tomledit"
	"github.com/creachadair/tomledit/parser"
	"github.com/creachadair/tomledit/transform"
)

// The plan is the sequence of transformation steps that should be applied, in
// the given order, to convert a configuration file to be compatible with the
// current version of the config grammar.
var plan = transform.Plan{
	{
		Desc: "Rename everything from snake_case to kebab-case",
		T:    transform.SnakeToKebab(),
	},
	{
		Desc: "Move top-level withdrawals-file to settlement.withdrawals-file",
		T: transform.Func(func(ctx context.Context, doc *tomledit.Document) error {
			if doc.First("withdrawals-file") == nil {
				return nil
			}
			if transform.FindTable(doc, "settlement") == nil {
				doc.Sections = append(doc.Sections, &tomledit.Section{
					Heading: &parser.Heading{
						Block: parser.Comments{
							"#######################################################",
							"###        Settlement Configuration Options         ###",
							"#######################################################",
						},
						Name: parser.Key{"settlement"},
					},
				})
			}
			return transform.MoveKey(
				parser.Key{"withdrawals-file"},
				parser.Key{"settlement"},
				parser.Key{"withdrawals-file"},
			)(ctx, doc)
		}),
	},
	{
		Desc:    "Remove vestigial mempool.broadcast setting",
		T:       transform.Remove(parser.Key{"mempool", "broadcast"}),
		ErrorOK: true,
	},
	{
		Desc: "Add mempool.check-tx-workers setting",
		T: transform.EnsureKey(parser.Key{"mempool"}, &parser.KeyValue{
			Block: parser.Comments{"Number of goroutines verifying signatures of incoming txs"},
			Name:  parser.Key{"check-tx-workers"},
			Value: parser.MustValue("4"),
		}),
		ErrorOK: true,
	},
	{
		Desc: "Add [sequencer] batching settings",
		T: transform.Func(func(_ context.Context, doc *tomledit.Document) error {
			tab := transform.FindTable(doc, "sequencer")
			if tab == nil {
				return errors.New("sequencer table not found")
			}
			transform.InsertMapping(tab.Section, &parser.KeyValue{
				Block: parser.Comments{"How long the sequencer waits for new txs when the mempool is empty"},
				Name:  parser.Key{"idle-interval"},
				Value: parser.MustValue(`"100ms"`),
			}, false)
			transform.InsertMapping(tab.Section, &parser.KeyValue{
				Block: parser.Comments{"Maximum number of txs delivered per reap; 0 means all available"},
				Name:  parser.Key{"max-batch-txs"},
				Value: parser.MustValue("1000"),
			}, false)
			return nil
		}),
		ErrorOK: true,
	},
	{
		Desc: "Convert tx-index.indexer from a string to a list of strings",
		T: transform.Func(func(ctx context.Context, doc *tomledit.Document) error {
			idx := doc.First("tx-index", "indexer")
			if idx == nil {
				return transform.EnsureKey(parser.Key{"tx-index"}, &parser.KeyValue{
					Block: parser.Comments{"The backend database list to back the indexer."},
					Name:  parser.Key{"indexer"},
					Value: parser.MustValue(`["kv"]`),
				})(ctx, doc)
			}

			switch idx.KeyValue.Value.X.(type) {
			case parser.Array:
				return nil
			case parser.Token:
				idx.KeyValue.Value.X = parser.Array{idx.KeyValue.Value}
				return nil
			}
			return fmt.Errorf("unrecognized value: %v", idx.KeyValue)
		}),
		ErrorOK: true,
	},
}
