package subchain

import (
	"context"

	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/filteroracle"
	"github.com/openxnode/chaincore/storage/kvstore"
	"github.com/openxnode/chaincore/walletdb"
)

// ScanJob walks filters from last_scanned+1 to the filter tip, emitting
// a process request for every block whose filter matches a registered
// pattern (spec §4.5 Scan). It checks one block at a time and tests its
// context between blocks; handle passes context.Background(), so a
// scan that is already running is not interrupted by Shutdown.
type ScanJob struct {
	*baseJob

	store    kvstore.KV
	cache    *walletdb.Cache
	filters  filteroracle.FilterOracle
	id       ID
	source   ElementSource
	positionAt func(height int64) (chainhash.Position, bool)

	onProcess func(Work)
}

func NewScanJob(chain, subchn string, store kvstore.KV, cache *walletdb.Cache, filters filteroracle.FilterOracle,
	id ID, source ElementSource, positionAt func(int64) (chainhash.Position, bool), onProcess func(Work)) *ScanJob {
	j := &ScanJob{store: store, cache: cache, filters: filters, id: id, source: source, positionAt: positionAt, onProcess: onProcess}
	j.baseJob = newBaseJob("scan", chain, subchn, j)
	return j
}

func (j *ScanJob) handle(w Work) error {
	switch w.Kind {
	case WorkFilter, WorkKey, WorkStartScan:
		return j.scanTo(context.Background(), w.Position)
	default:
		return nil
	}
}

// scanTo walks forward from last_scanned+1 to tip, checking each
// block's filter in turn and persisting last_scanned once per block so
// a crash mid-scan never loses more than one block of progress.
func (j *ScanJob) scanTo(ctx context.Context, tip chainhash.Position) error {
	start := int64(0)
	if pos, ok := j.cache.LastScanned(j.id); ok {
		start = pos.Height + 1
	}

	for height := start; height <= tip.Height; height++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pos, ok := j.positionAt(height)
		if !ok {
			break
		}
		matched, err := j.blockMatches(pos)
		if err != nil {
			return err
		}
		if matched && j.onProcess != nil {
			j.onProcess(Work{Kind: WorkProcess, Position: pos})
		}
		if err := j.store.Update(func(tx kvstore.Tx) error {
			return j.cache.SetLastScanned(tx, j.id, pos)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (j *ScanJob) blockMatches(pos chainhash.Position) (bool, error) {
	candidates := j.source.Elements()
	quick := false
	for _, c := range candidates {
		if j.cache.MayContainPattern(c) {
			quick = true
			break
		}
	}
	if !quick {
		return false, nil
	}
	matcher, ok := j.filters.(filteroracle.Matcher)
	if !ok {
		return false, nil
	}
	matched, err := matcher.Match(pos, candidates)
	if err != nil {
		if err == filteroracle.ErrNotAvailable {
			return false, nil
		}
		return false, err
	}
	return matched, nil
}
