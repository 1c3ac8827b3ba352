package node

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/consensus"
	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/internal/mempool"
	"github.com/unwalled/unwalled/internal/settlement"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/internal/state/indexer/sink"
	"github.com/unwalled/unwalled/libs/log"
	uwos "github.com/unwalled/unwalled/libs/os"
	"github.com/unwalled/unwalled/privval"
	"github.com/unwalled/unwalled/types"
	"github.com/unwalled/unwalled/version"
)

// metrics bundles the metrics of every component of a node.
type metrics struct {
	state     *state.Metrics
	mempool   *mempool.Metrics
	consensus *consensus.Metrics
	indexer   *indexer.Metrics
}

// metricsProvider returns the metrics of a node on the given chain.
type metricsProvider func(chainID string) *metrics

// defaultMetricsProvider returns Metrics build using Prometheus client library
// if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func defaultMetricsProvider(cfg *config.InstrumentationConfig) metricsProvider {
	return func(chainID string) *metrics {
		if cfg.Prometheus {
			return &metrics{
				state:     state.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				mempool:   mempool.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				consensus: consensus.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				indexer:   indexer.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
			}
		}
		return &metrics{
			state:     state.NopMetrics(),
			mempool:   mempool.NopMetrics(),
			consensus: consensus.NopMetrics(),
			indexer:   indexer.NopMetrics(),
		}
	}
}

func initDBs(cfg *config.Config, dbProvider config.DBProvider) (stateDB dbm.DB, err error) {
	return dbProvider(&config.DBContext{ID: "state", Config: cfg})
}

func loadGenesisDoc(cfg *config.Config) (*types.GenesisDoc, error) {
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return nil, fmt.Errorf("loading genesis: %w", err)
	}
	return genDoc, nil
}

func createIndexerService(
	cfg *config.Config,
	dbProvider config.DBProvider,
	eventBus *eventbus.EventBus,
	logger log.Logger,
	chainID string,
	m *indexer.Metrics,
) (*indexer.Service, []indexer.EventSink, error) {
	eventSinks, err := sink.EventSinksFromConfig(cfg, dbProvider, chainID)
	if err != nil {
		return nil, nil, err
	}

	indexerService := indexer.NewService(indexer.ServiceArgs{
		Sinks:    eventSinks,
		EventBus: eventBus,
		Logger:   logger.With("module", "txindex"),
		Metrics:  m,
	})

	return indexerService, eventSinks, nil
}

// createWithdrawer returns the journal withdrawals are appended to, or a
// logging stand-in when the journal is disabled.
func createWithdrawer(cfg *config.SettlementConfig, logger log.Logger) (settlement.Withdrawer, error) {
	path := cfg.WithdrawalsPath()
	if path == "" {
		return settlement.LogWithdrawer{Logger: logger}, nil
	}
	return settlement.NewFileWithdrawer(path)
}

// loadSignerAddress returns the address of the signer key, if there is one.
// An encrypted key is not unlocked; its address is stored in the clear.
func loadSignerAddress(cfg *config.Config, logger log.Logger) types.Address {
	keyFile := cfg.SignerKeyFile()
	if !uwos.FileExists(keyFile) {
		return ""
	}
	addr, err := privval.LoadFilePVAddress(keyFile)
	if err != nil {
		logger.Error("unreadable signer key", "file", keyFile, "err", err)
		return ""
	}
	return addr
}

func logNodeStartupInfo(info state.Info, signer types.Address, logger log.Logger) {
	logger.Info("Version info",
		"version", version.Version,
		"commit", version.GitCommit,
		"tx_protocol", version.TxProtocol,
	)
	logger.Info("Applier state",
		"chain_id", info.ChainID,
		"height", info.Height,
		"app_hash", log.Hexadecimal(info.AppHash),
		"signer", signer,
	)
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func startPrometheusServer(cfg *config.InstrumentationConfig, logger log.Logger) *http.Server {
	srv := &http.Server{
		Addr: cfg.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}
