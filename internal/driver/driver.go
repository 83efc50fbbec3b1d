// Package driver implements C5: the resume/replay loop that ties the C1
// keyed stores, C2 live state, C3 cohort aggregates, C4 block processor,
// and C6 dataset emitters into one safety-horizon-gated run.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/satonomics-go/utxo-indexer/internal/block"
	"github.com/satonomics-go/utxo-indexer/internal/blocksource"
	"github.com/satonomics-go/utxo-indexer/internal/cohort"
	"github.com/satonomics-go/utxo-indexer/internal/dataset"
	"github.com/satonomics-go/utxo-indexer/internal/exportstore"
	"github.com/satonomics-go/utxo-indexer/internal/state"
	"github.com/satonomics-go/utxo-indexer/internal/store"
	"github.com/satonomics-go/utxo-indexer/internal/syslogs"
)

// NumberOfUnsafeBlocks mirrors the safety horizon constant shared with the
// C1/C6 packages: a height is only checkpointed once it is this many
// blocks behind the node's current tip.
const NumberOfUnsafeBlocks = 100

// Stores bundles the three C1 collaborators the driver flushes together.
type Stores struct {
	Txid     *store.TxidStore
	Address  *store.AddressStore
	Archived *store.ArchivedStore
}

// ProgressFunc is notified after every processed block; cmd/indexer wires
// a progress bar here. The core driver never imports a UI library itself.
type ProgressFunc func(height, tip uint32)

// Driver owns the full indexing run: replay from the last safe checkpoint
// to the node's current tip, checkpointing again every time it crosses a
// new multiple of checkpointInterval blocks past the safety horizon.
type Driver struct {
	processor *block.Processor
	source    blocksource.Source
	stores    Stores
	st        *state.State
	liquidity *cohort.AddressLiquiditySplit
	ages      *cohort.AgeCohorts
	registry  *dataset.Registry
	emitter   *dataset.Emitter
	export    exportstore.Storage

	snapshotDir         string
	checkpointInterval  int
	onProgress          ProgressFunc
}

type Config struct {
	SnapshotDir        string
	CheckpointInterval int
	OnProgress         ProgressFunc
}

func New(
	processor *block.Processor,
	source blocksource.Source,
	stores Stores,
	st *state.State,
	liquidity *cohort.AddressLiquiditySplit,
	ages *cohort.AgeCohorts,
	registry *dataset.Registry,
	emitter *dataset.Emitter,
	export exportstore.Storage,
	cfg Config,
) *Driver {
	interval := cfg.CheckpointInterval
	if interval < 1 {
		interval = 1000
	}
	return &Driver{
		processor:          processor,
		source:             source,
		stores:             stores,
		st:                 st,
		liquidity:          liquidity,
		ages:               ages,
		registry:           registry,
		emitter:            emitter,
		export:             export,
		snapshotDir:        cfg.SnapshotDir,
		checkpointInterval: interval,
		onProgress:         cfg.OnProgress,
	}
}

// Resume restores every C3 histogram from the C2 state just loaded; the
// histograms themselves are never checkpointed, only the BlockRecords and
// live addresses they are derived from are. It reports the height to
// resume processing at.
func (d *Driver) Resume(tipTimestamp uint32) (uint32, error) {
	for _, rec := range d.st.AddressIndexToLive {
		if err := d.liquidity.RebuildLive(rec.Amount, rec.UTXOCount, rec.MeanPricePaid, rec.Sent, rec.Received, rec.Kind); err != nil {
			return 0, fmt.Errorf("driver: rebuild liquidity cohorts: %w", err)
		}
	}

	// Rebuild age-cohort membership as of the last checkpointed block, not
	// the node's current tip: replay then advances each record's age
	// forward one AdvanceTip call per block, exactly as a continuous run
	// would, instead of freezing every record at tip-age for the whole
	// unsafe tail.
	rebuildTimestamp, haveLastProcessed := d.st.LastProcessedTimestamp()
	if !haveLastProcessed {
		rebuildTimestamp = tipTimestamp
	}
	for _, blocks := range d.st.DateIndexToBlocks {
		for _, rec := range blocks {
			if err := d.ages.RebuildFromRecord(rec, rebuildTimestamp); err != nil {
				return 0, fmt.Errorf("driver: rebuild age cohorts: %w", err)
			}
		}
	}

	stateHeight, haveState := d.st.LastProcessedHeight()
	datasetHeight, haveDataset := d.registry.PersistedHeight()

	switch {
	case haveState && haveDataset:
		if stateHeight < datasetHeight {
			return stateHeight + 1, nil
		}
		return datasetHeight + 1, nil
	case haveState:
		return stateHeight + 1, nil
	case haveDataset:
		return datasetHeight + 1, nil
	default:
		return 0, nil
	}
}

// Run replays blocks from the resume height up to (but not including) the
// node's current tip, checkpointing periodically once blocks cross the
// safety horizon. The current tip itself is always left unprocessed: a
// block's date only closes once a strictly later block is observed, so
// treating the tip as closed would risk prematurely finalizing a
// still-open day. A subsequent Run (e.g. triggered by the next ZMQ
// "hashblock" notification) picks it up once a newer tip exists.
func (d *Driver) Run(ctx context.Context) error {
	tip, err := d.source.BlockCount(ctx)
	if err != nil {
		return fmt.Errorf("driver: get block count: %w", err)
	}
	if tip == 0 {
		return nil
	}

	tipBlk, err := d.source.Block(ctx, tip)
	if err != nil {
		return fmt.Errorf("driver: fetch tip block %d: %w", tip, err)
	}
	tipTimestamp := uint32(tipBlk.Header.Timestamp.Unix())

	resumeHeight, err := d.Resume(tipTimestamp)
	if err != nil {
		return err
	}
	if resumeHeight >= tip {
		return nil
	}

	cur, err := d.source.Block(ctx, resumeHeight)
	if err != nil {
		return fmt.Errorf("driver: fetch block %d: %w", resumeHeight, err)
	}

	sinceCheckpoint := 0

	for h := resumeHeight; h < tip; h++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, err := d.source.Block(ctx, h+1)
		if err != nil {
			return fmt.Errorf("driver: fetch block %d: %w", h+1, err)
		}
		isDateLastBlock := truncateToUTCDay(next.Header.Timestamp) != truncateToUTCDay(cur.Header.Timestamp)

		pb, err := d.processor.ProcessBlock(ctx, cur, isDateLastBlock)
		if err != nil {
			if errors.Is(err, block.ErrFatal) {
				_ = syslogs.InsertErrLog(syslogs.ErrLog{
					ErrType:      "fatal",
					Height:       int(h),
					Timestamp:    time.Now().Unix(),
					ErrorMessage: err.Error(),
				})
			}
			return fmt.Errorf("driver: process block %d: %w", h, err)
		}
		if err := d.emitter.EmitBlock(pb); err != nil {
			return fmt.Errorf("driver: emit block %d: %w", h, err)
		}

		if d.onProgress != nil {
			d.onProgress(h, tip)
		}

		cur = next
		sinceCheckpoint++

		// Checkpoint while the state still ends at h: every interval, and
		// once more at the last height behind the horizon.
		lastSafe := int64(h)+NumberOfUnsafeBlocks+1 == int64(tip)
		if int64(h)+NumberOfUnsafeBlocks < int64(tip) && (sinceCheckpoint >= d.checkpointInterval || lastSafe) {
			if err := d.checkpoint(h); err != nil {
				return err
			}
			sinceCheckpoint = 0
		}
	}
	return nil
}

// checkpoint flushes C1 stores, saves the C2 state snapshot, and flushes
// every C6 dataset series, in that order, then records the run summary. A
// failure at any step leaves every earlier step's on-disk artifact intact;
// the next run simply resumes from whichever collaborator's persisted
// height is lowest.
func (d *Driver) checkpoint(height uint32) error {
	start := time.Now()

	if err := d.stores.Txid.Flush(); err != nil {
		return fmt.Errorf("driver: checkpoint: flush txid store: %w", err)
	}
	if err := d.stores.Address.Flush(); err != nil {
		return fmt.Errorf("driver: checkpoint: flush address store: %w", err)
	}
	if err := d.stores.Archived.Flush(); err != nil {
		return fmt.Errorf("driver: checkpoint: flush archived store: %w", err)
	}
	if err := d.st.Save(d.snapshotDir); err != nil {
		return fmt.Errorf("driver: checkpoint: save state: %w", err)
	}
	if err := d.registry.Flush(d.export); err != nil {
		return fmt.Errorf("driver: checkpoint: flush datasets: %w", err)
	}

	return syslogs.InsertIndexerLog(syslogs.IndexerLog{
		LastHeight:     int(height),
		CompletionTime: time.Now().Unix(),
		ElapsedMillis:  time.Since(start).Milliseconds(),
	})
}

func truncateToUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
