package subchain

import (
	"sync"

	"github.com/openxnode/chaincore/chainhash"
)

// ProgressJob is the fan-in point for scan progress notifications and
// backs CheckCache for readers (spec §4.5 Progress).
type ProgressJob struct {
	*baseJob

	mu      sync.RWMutex
	cursor  chainhash.Position
	onAdvance func(chainhash.Position)
}

func NewProgressJob(chain, subchn string, onAdvance func(chainhash.Position)) *ProgressJob {
	j := &ProgressJob{onAdvance: onAdvance}
	j.baseJob = newBaseJob("progress", chain, subchn, j)
	return j
}

func (j *ProgressJob) handle(w Work) error {
	switch w.Kind {
	case WorkProcess:
		j.mu.Lock()
		if w.Position.Height > j.cursor.Height {
			j.cursor = w.Position
		}
		j.mu.Unlock()
		if j.onAdvance != nil {
			j.onAdvance(w.Position)
		}
	}
	return nil
}

// CheckCache returns the furthest position Progress has observed.
func (j *ProgressJob) CheckCache() chainhash.Position {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cursor
}
