package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/omniwallet/chain-indexer/broker"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/chain/evm"
	"github.com/omniwallet/chain-indexer/chain/rpcclient"
	"github.com/omniwallet/chain-indexer/chain/utxo"
	"github.com/omniwallet/chain-indexer/consumer"
	"github.com/omniwallet/chain-indexer/internal/config"
	ilog "github.com/omniwallet/chain-indexer/internal/log"
	"github.com/omniwallet/chain-indexer/parser"
	"github.com/omniwallet/chain-indexer/push"
	"github.com/omniwallet/chain-indexer/runner"
	"github.com/omniwallet/chain-indexer/store"
)

var logger = ilog.NewModuleLogger(ilog.CMD)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to the TOML configuration file",
	}
	httpAddrFlag = cli.StringFlag{
		Name:  "http-addr",
		Usage: "address the /healthz, /status and /metrics server listens on",
		Value: ":9100",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "chainindexer"
	app.Usage = "multi-chain wallet indexing and subscription-notification pipeline"
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []cli.Command{
		{
			Name:   "setup",
			Usage:  "declare broker queues/exchanges and apply database migrations, then exit",
			Action: runSetup,
		},
		{
			Name:   "daemon",
			Usage:  "run the indexing pipeline until terminated",
			Flags:  []cli.Flag{httpAddrFlag},
			Action: runDaemon,
		},
		{
			Name:   "api",
			Usage:  "reserved for the read-side HTTP API; not part of this pipeline",
			Action: runAPI,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Crit("exiting with error", "err", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.GlobalString(configFlag.Name))
}

// runSetup implements the `setup` subcommand of §6: declare every
// queue/exchange once and run AutoMigrate, exit 0 on success.
func runSetup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	bc, err := broker.Dial(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer bc.Close()

	var chainQueues []string
	for _, cc := range cfg.Configured() {
		chainQueues = append(chainQueues, broker.PerChainQueue(broker.QueueFetchBlockTransactions, string(cc.Chain)))
	}
	if err := broker.Setup(bc, chainQueues); err != nil {
		return err
	}

	logger.Info("setup complete", "chains", len(cfg.Configured()))
	return nil
}

// runAPI is a placeholder for the wallet read-side HTTP API (balances,
// transaction history, subscription management endpoints). That API
// is a separate service from this pipeline; the subcommand exists so
// operators probing this binary's CLI surface get an explicit answer
// instead of an "unknown command" error.
func runAPI(c *cli.Context) error {
	logger.Info("the read-side HTTP API is not part of chainindexer; run it as its own service")
	return nil
}

// runDaemon implements the `daemon` subcommand: wire every store,
// build a chain.Registry from configured chains, start one Block
// Parser per chain and one consumer task per (queue x chain), and
// block until SIGINT/SIGTERM triggers a graceful shutdown (§4.6, C11).
func runDaemon(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedisClient(os.Getenv("CHAIN_INDEXER_REDIS_ADDR"))
	subIndex, err := store.NewSubscriptionIndex(db, redisClient)
	if err != nil {
		return err
	}
	txStore := store.NewTransactionStore(db)
	deviceStore := store.NewDeviceStore(db)
	assocStore := store.NewAssociationStore(db)
	deadLetters := store.NewDeadLetterStore(db)
	parserStates := store.NewParserStateStore(db)

	registry := buildRegistry(context.Background(), cfg)

	sup := runner.New()

	for _, cc := range cfg.Configured() {
		provider, ok := registry.Get(cc.Chain)
		if !ok {
			logger.Warn("no provider for configured chain, skipping", "chain", cc.Chain)
			continue
		}

		parserPublisher, err := broker.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		p := parser.New(cc, provider, parserStates, parserPublisher, deadLetters, nil)
		sup.Add(runner.Task{
			Name: "parser." + string(cc.Chain),
			Run:  p.Run,
		})

		txConsumerPublisher, err := broker.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		txConsumer := consumer.NewTransactionsConsumer(subIndex, deviceStore, txStore, consumer.ConfigWindows{Cfg: cfg}, txConsumerPublisher, nil)
		sup.Add(consumerTask(cfg.RabbitMQURL, "txs."+string(cc.Chain), broker.PerChainQueue(broker.QueueFetchBlockTransactions, string(cc.Chain)), 1, txConsumer.Handle))

		addTxConsumerBroker, err := broker.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		addrTxConsumer := consumer.NewAddressTransactionsConsumer(registry, addTxConsumerBroker)
		sup.Add(consumerTask(cfg.RabbitMQURL, "addrtxs."+string(cc.Chain), broker.QueueFetchAddressTransactions, 8, addrTxConsumer.Handle))

		tokenBroker, err := broker.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		tokenConsumer := consumer.NewTokenAssociationsConsumer(registry, assocStore)
		sup.Add(consumerTaskWithClient("tokenassoc."+string(cc.Chain), tokenBroker, broker.QueueFetchTokenAddressesAssociations, 8, tokenConsumer.Handle))

		coinBroker, err := broker.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		coinConsumer := consumer.NewCoinAssociationsConsumer(assocStore)
		sup.Add(consumerTaskWithClient("coinassoc."+string(cc.Chain), coinBroker, broker.QueueFetchCoinAddressesAssociations, 8, coinConsumer.Handle))

		if _, ok := provider.(chain.NFTProvider); ok {
			nftBroker, err := broker.Dial(cfg.RabbitMQURL)
			if err != nil {
				return err
			}
			nftConsumer := consumer.NewNFTAssociationsConsumer(registry, assocStore)
			sup.Add(consumerTaskWithClient("nftassoc."+string(cc.Chain), nftBroker, broker.QueueFetchNftAssetsAddressesAssoc, 8, nftConsumer.Handle))
		}
	}

	notifBroker, err := broker.Dial(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	notifConsumer := consumer.NewNotificationsConsumer(push.NoopPusher{})
	sup.Add(consumerTaskWithClient("notifications", notifBroker, broker.QueueNotificationsTransactions, 32, notifConsumer.Handle))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	srv := runner.NewHTTPServer(c.String(httpAddrFlag.Name), sup)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutdown signal received, draining")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	sup.Shutdown()
	logger.Info("shutdown complete")
	return nil
}

// consumerTask builds a runner.Task that dials its own broker
// connection lazily inside Run, matching §4.6's "open a dedicated
// broker connection (one per consumer, to isolate back-pressure)".
func consumerTask(rabbitMQURL, name, queue string, prefetch int, handler broker.Handler) runner.Task {
	return runner.Task{
		Name: name,
		Run: func(ctx context.Context, shutdown <-chan struct{}) error {
			bc, err := broker.Dial(rabbitMQURL)
			if err != nil {
				return err
			}
			defer bc.Close()
			return bc.Consume(ctx, queue, prefetch, shutdown, handler)
		},
	}
}

// consumerTaskWithClient consumes through a client runDaemon has
// already dialed, instead of dialing one inside Run. Run closes that
// client when it returns.
func consumerTaskWithClient(name string, bc *broker.Client, queue string, prefetch int, handler broker.Handler) runner.Task {
	return runner.Task{
		Name: name,
		Run: func(ctx context.Context, shutdown <-chan struct{}) error {
			defer bc.Close()
			return bc.Consume(ctx, queue, prefetch, shutdown, handler)
		},
	}
}

// buildRegistry dials one rpcclient.Client per configured chain and
// wraps it in the matching chain.Provider implementation.
func buildRegistry(ctx context.Context, cfg *config.Config) *chain.Registry {
	var providers []chain.Provider
	for _, cc := range cfg.Configured() {
		client, err := rpcclient.Dial(ctx, cc.URL, rpcclient.DefaultConfig())
		if err != nil {
			logger.Error("failed to dial chain RPC, skipping", "chain", cc.Chain, "err", err)
			continue
		}
		providers = append(providers, newProvider(cc.Chain, client))
	}
	return chain.NewRegistry(providers...)
}

func newProvider(c config.Chain, client *rpcclient.Client) chain.Provider {
	for _, evmChain := range config.EVMChains {
		if evmChain == c {
			return evm.New(evm.Options{Chain: c, NativeSymbol: "ETH", NativeDecimal: 18}, client)
		}
	}
	switch c {
	case config.Bitcoin, config.Litecoin, config.Doge:
		return utxo.New(utxo.Options{Chain: c, NativeSymbol: string(c), Decimals: 8}, client)
	default:
		return evm.New(evm.Options{Chain: c, NativeSymbol: string(c), NativeDecimal: 18}, client)
	}
}

