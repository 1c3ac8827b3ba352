package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	dbm "github.com/tendermint/tm-db"
	"golang.org/x/sync/errgroup"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/consensus"
	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/internal/mempool"
	rpccore "github.com/unwalled/unwalled/internal/rpc/core"
	"github.com/unwalled/unwalled/internal/settlement"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/service"
	"github.com/unwalled/unwalled/types"
)

// Node is the highest level interface to a full exchange node.
// It includes all configuration information and running services.
type Node struct {
	service.BaseService
	logger log.Logger

	// config
	config     *config.Config
	genesisDoc *types.GenesisDoc

	// services
	stateDB        dbm.DB
	eventBus       *eventbus.EventBus
	applier        *state.Applier
	mempool        *mempool.TxMempool
	sequencer      *consensus.Sequencer
	indexerService *indexer.Service
	eventSinks     []indexer.EventSink
	withdrawer     settlement.Withdrawer
	rpcEnv         *rpccore.Environment
	prometheusSrv  *http.Server

	rpcListener net.Listener
	rpcDone     chan struct{}
	cancel      context.CancelFunc
	faults      chan error
}

// NewDefault constructs a node from the on-disk config, genesis file and
// databases.
func NewDefault(cfg *config.Config, logger log.Logger) (*Node, error) {
	genDoc, err := loadGenesisDoc(cfg)
	if err != nil {
		return nil, err
	}
	return makeNode(cfg, logger, config.DefaultDBProvider, genDoc, defaultMetricsProvider(cfg.Instrumentation))
}

// New constructs a node from the given genesis, opening databases with
// dbProvider.
func New(cfg *config.Config, logger log.Logger, dbProvider config.DBProvider, genDoc *types.GenesisDoc) (*Node, error) {
	return makeNode(cfg, logger, dbProvider, genDoc, defaultMetricsProvider(cfg.Instrumentation))
}

func makeNode(
	cfg *config.Config,
	logger log.Logger,
	dbProvider config.DBProvider,
	genDoc *types.GenesisDoc,
	metricsProvider metricsProvider,
) (_ *Node, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for _, c := range closers {
			if cerr := c(); cerr != nil {
				logger.Error("error closing after failed construction", "err", cerr)
			}
		}
	}()

	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, fmt.Errorf("error in genesis doc: %w", err)
	}

	n := &Node{
		logger:     logger,
		config:     cfg,
		genesisDoc: genDoc,
		faults:     make(chan error, 1),
	}

	n.stateDB, err = initDBs(cfg, dbProvider)
	if err != nil {
		return nil, err
	}
	closers = append(closers, n.stateDB.Close)

	nodeMetrics := metricsProvider(genDoc.ChainID)

	n.eventBus = eventbus.NewDefault(logger.With("module", "events"))

	n.applier, err = state.NewApplier(logger.With("module", "state"), n.stateDB,
		state.WithMetrics(nodeMetrics.state),
		state.WithEventPublisher(n.eventBus),
		state.WithFaultHandler(n.onFault),
	)
	if err != nil {
		return nil, err
	}
	if err := n.applier.InitChain(genDoc); err != nil {
		return nil, err
	}

	n.indexerService, n.eventSinks, err = createIndexerService(
		cfg, dbProvider, n.eventBus, logger, genDoc.ChainID, nodeMetrics.indexer)
	if err != nil {
		return nil, err
	}
	for _, s := range n.eventSinks {
		closers = append(closers, s.Stop)
	}

	n.mempool = mempool.NewTxMempool(logger.With("module", "mempool"), cfg.Mempool,
		mempool.WithMetrics(nodeMetrics.mempool))

	n.sequencer = consensus.NewSequencer(logger.With("module", "consensus"), cfg.Sequencer,
		n.mempool, n.applier,
		consensus.WithMetrics(nodeMetrics.consensus),
		consensus.WithFaultHandler(n.onFault),
	)

	n.withdrawer, err = createWithdrawer(cfg.Settlement, logger.With("module", "settlement"))
	if err != nil {
		return nil, err
	}

	n.rpcEnv = &rpccore.Environment{
		Applier:    n.applier,
		Mempool:    n.mempool,
		EventBus:   n.eventBus,
		EventSinks: n.eventSinks,
		Bridge:     settlement.NewBridge(logger.With("module", "settlement"), n.applier, n.withdrawer),
		GenDoc:     genDoc,
		Signer:     loadSignerAddress(cfg, logger),
		Moniker:    cfg.Moniker,
		Logger:     logger.With("module", "rpc"),
		Config:     *cfg.RPC,
	}

	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// onFault halts the node on an unrecoverable storage error. It never blocks.
func (n *Node) onFault(err error) {
	n.logger.Error("storage fault, halting", "err", err)
	select {
	case n.faults <- err:
	default:
	}
}

// OnStart starts the node's services in dependency order: events first, then
// the indexer, the sequencer and finally the RPC server.
func (n *Node) OnStart(ctx context.Context) (err error) {
	ctx, n.cancel = context.WithCancel(ctx)
	defer func() {
		// services already started stop with their context
		if err != nil {
			n.cancel()
		}
	}()

	logNodeStartupInfo(n.applier.Info(), n.rpcEnv.Signer, n.logger)

	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = startPrometheusServer(n.config.Instrumentation, n.logger)
	}

	if err := n.eventBus.Start(ctx); err != nil {
		return err
	}
	if err := n.indexerService.Start(ctx); err != nil {
		return err
	}
	if err := n.sequencer.Start(ctx); err != nil {
		return err
	}

	n.rpcDone = make(chan struct{})
	if n.config.RPC.ListenAddress == "" {
		close(n.rpcDone)
	} else {
		listener, serveErr, err := n.rpcEnv.StartService(ctx)
		if err != nil {
			close(n.rpcDone)
			return err
		}
		n.rpcListener = listener

		go func() {
			defer close(n.rpcDone)
			for err := range serveErr {
				n.logger.Error("RPC server stopped", "err", err)
			}
		}()
	}

	go n.watchFaults(ctx)
	return nil
}

// watchFaults stops the node once a component reports a storage fault.
func (n *Node) watchFaults(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-n.faults:
		if err := n.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			n.logger.Error("error stopping node", "err", err)
		}
	}
}

// OnStop stops the node's services in reverse start order and closes the
// databases.
func (n *Node) OnStop() {
	n.logger.Info("Stopping Node")

	for _, s := range []service.Service{n.sequencer, n.indexerService, n.eventBus} {
		if err := s.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			n.logger.Error("problem stopping service", "service", s.String(), "err", err)
		}
	}

	// shuts down the RPC server
	n.cancel()
	<-n.rpcDone

	// the sinks and the state store hold independent handles
	var g errgroup.Group
	for _, es := range n.eventSinks {
		es := es
		g.Go(es.Stop)
	}
	g.Go(n.stateDB.Close)
	if n.prometheusSrv != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return n.prometheusSrv.Shutdown(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		n.logger.Error("problem shutting down", "err", err)
	}
}

// Applier returns the node's state applier.
func (n *Node) Applier() *state.Applier { return n.applier }

// Mempool returns the node's mempool.
func (n *Node) Mempool() *mempool.TxMempool { return n.mempool }

// EventBus returns the node's event bus.
func (n *Node) EventBus() *eventbus.EventBus { return n.eventBus }

// GenesisDoc returns the genesis the node was started from.
func (n *Node) GenesisDoc() *types.GenesisDoc { return n.genesisDoc }

// RPCEnvironment returns the environment the RPC routes are served from.
func (n *Node) RPCEnvironment() *rpccore.Environment { return n.rpcEnv }

// RPCListenAddr returns the address the RPC server is listening on, or nil
// if it is not running.
func (n *Node) RPCListenAddr() net.Addr {
	if n.rpcListener == nil {
		return nil
	}
	return n.rpcListener.Addr()
}
