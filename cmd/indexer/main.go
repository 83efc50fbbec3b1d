package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/schollz/progressbar/v3"

	"github.com/satonomics-go/utxo-indexer/internal/block"
	"github.com/satonomics-go/utxo-indexer/internal/blocksource"
	"github.com/satonomics-go/utxo-indexer/internal/cohort"
	"github.com/satonomics-go/utxo-indexer/internal/config"
	"github.com/satonomics-go/utxo-indexer/internal/dataset"
	"github.com/satonomics-go/utxo-indexer/internal/driver"
	"github.com/satonomics-go/utxo-indexer/internal/exportstore"
	"github.com/satonomics-go/utxo-indexer/internal/notify"
	"github.com/satonomics-go/utxo-indexer/internal/oracle"
	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
	"github.com/satonomics-go/utxo-indexer/internal/state"
	"github.com/satonomics-go/utxo-indexer/internal/store"
	"github.com/satonomics-go/utxo-indexer/internal/syslogs"
)

const vintageYearsFrom, vintageYearsTo = 2009, 2035

func main() {
	fmt.Println("Starting UTXO indexer...")
	defer func() {
		if r := recover(); r != nil {
			log.Printf("global panic: %v", r)
		}
	}()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := syslogs.Open(cfg.DataDir + "/syslogs.db"); err != nil {
		log.Fatalf("failed to open syslogs database: %v", err)
	}
	defer syslogs.Close()

	chainParams, err := cfg.GetChainParams()
	if err != nil {
		log.Fatalf("failed to resolve chain params: %v", err)
	}

	txidStore, err := store.NewTxidStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open txid store: %v", err)
	}
	defer txidStore.Close()

	addressStore, err := store.NewAddressStore(cfg.DataDir, cfg.ShardCount)
	if err != nil {
		log.Fatalf("failed to open address store: %v", err)
	}
	defer addressStore.Close()

	archivedStore, err := store.NewArchivedStore(cfg.DataDir, cfg.ShardCount)
	if err != nil {
		log.Fatalf("failed to open archived store: %v", err)
	}
	defer archivedStore.Close()

	st, err := state.Load(cfg.SnapshotDir)
	if err != nil {
		log.Printf("no usable snapshot at %s (%v), starting fresh", cfg.SnapshotDir, err)
		st = state.New()
	}

	liquidity := cohort.NewAddressLiquiditySplit()
	ages := cohort.NewAgeCohorts(vintageYearsFrom, vintageYearsTo)

	registry := dataset.NewRegistry()
	dataset.RegisterAddressCohortSeries(registry)
	dataset.RegisterAgeCohortSeries(registry, vintageYearsFrom, vintageYearsTo)
	dataset.RegisterCointimeSeries(registry)
	dataset.RegisterMiningSeries(registry)
	dataset.RegisterDateSeries(registry)

	exportStorage := exportstore.NewFileStorage(cfg.DatasetDir)
	if err := registry.Load(exportStorage); err != nil {
		log.Fatalf("failed to load dataset series: %v", err)
	}
	if err := registry.WriteManifest(cfg.DatasetDir); err != nil {
		log.Fatalf("failed to write dataset manifest: %v", err)
	}

	priceOracle, err := oracle.LoadFileOracle(cfg.PriceOracleDir)
	if err != nil {
		log.Fatalf("failed to load price oracle: %v", err)
	}

	source, err := blocksource.NewRPCSource(cfg.RPC.Host, cfg.RPC.Port, cfg.RPC.User, cfg.RPC.Password)
	if err != nil {
		log.Fatalf("failed to connect to node: %v", err)
	}
	defer source.Close()

	classifier := rawaddress.NewClassifier(chainParams)
	processor := block.NewProcessor(classifier, txidStore, addressStore, archivedStore, st, liquidity, ages, priceOracle, cfg.Workers)
	emitter := dataset.NewEmitter(registry, liquidity, ages)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received stop signal, finishing current block before shutdown...")
		cancel()
	}()

	wake := make(chan struct{}, 1)
	if len(cfg.ZMQAddress) > 0 {
		tipCtx, tipCancel := context.WithCancel(context.Background())
		defer tipCancel()
		if notifier, err := notify.Dial(tipCtx, cfg.ZMQAddress); err != nil {
			log.Printf("zmq tip notifier disabled: %v", err)
		} else {
			defer notifier.Close()
			go func() {
				for range notifier.Hashes() {
					// A bare wake-up signal is enough: Run() always re-asks
					// the node for its current tip on entry.
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			}()
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(colorable.NewColorableStdout()),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
	)

	d := driver.New(
		processor,
		source,
		driver.Stores{Txid: txidStore, Address: addressStore, Archived: archivedStore},
		st,
		liquidity,
		ages,
		registry,
		emitter,
		exportStorage,
		driver.Config{
			SnapshotDir:        cfg.SnapshotDir,
			CheckpointInterval: cfg.BatchSize,
			OnProgress: func(height, tip uint32) {
				bar.ChangeMax64(int64(tip))
				bar.Set64(int64(height))
			},
		},
	)

	poll := 10 * time.Second
	for ctx.Err() == nil {
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, block.ErrFatal) {
				log.Printf("indexing run hit a fatal invariant violation, stopping: %v", err)
				break
			}
			log.Printf("indexing run failed: %v, retrying in 3 seconds...", err)
			poll = 3 * time.Second
		} else {
			poll = 10 * time.Second
		}
		select {
		case <-ctx.Done():
		case <-wake:
		case <-time.After(poll):
		}
	}

	fmt.Println("\nUTXO indexer stopped.")
}
