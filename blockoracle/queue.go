package blockoracle

import (
	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/metrics"
)

// job tracks one outstanding GetWork batch so FinishJob/CancelJob can
// locate its hashes.
type job struct {
	hashes []chainhash.BlockHash
}

// GetWork hands the caller up to maxBatch hashes currently waiting and
// not already assigned to another in-flight job, in FIFO order (the
// SUPPLEMENTED FEATURES fairness note: the queue is a single ordered
// list, not per-peer, so no peer can starve another by hoarding
// requests). Returns ok=false if nothing is waiting.
func (o *Oracle) GetWork(maxBatch int) (BlockBatch, bool) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	var hashes []chainhash.BlockHash
	var remaining []chainhash.BlockHash
	for _, h := range o.queue {
		if len(hashes) < maxBatch {
			if _, assigned := o.assigned[h]; !assigned {
				hashes = append(hashes, h)
				continue
			}
		}
		remaining = append(remaining, h)
	}
	if len(hashes) == 0 {
		return BlockBatch{}, false
	}
	o.queue = remaining

	o.nextJobID++
	id := o.nextJobID
	for _, h := range hashes {
		o.assigned[h] = id
	}
	o.jobs[id] = &job{hashes: hashes}
	metrics.DownloadQueueDepth.WithLabelValues(o.chainID.String()).Set(float64(len(o.queue)))

	return BlockBatch{
		Hashes: hashes,
		JobID:  id,
		Cancel: func() { o.CancelJob(id) },
		Done:   func() { o.FinishJob(id) },
	}, true
}

// CancelJob releases a job's hashes back to the front of the queue, so
// a dropped peer's work is retried before newly-enqueued hashes.
func (o *Oracle) CancelJob(id uint64) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return
	}
	delete(o.jobs, id)
	for _, h := range j.hashes {
		delete(o.assigned, h)
	}
	o.queue = append(append([]chainhash.BlockHash(nil), j.hashes...), o.queue...)
	metrics.DownloadQueueDepth.WithLabelValues(o.chainID.String()).Set(float64(len(o.queue)))
}

// FinishJob clears the bookkeeping for a completed job. Hashes whose
// futures were never resolved via SubmitBlock (the peer returned fewer
// blocks than requested) are re-enqueued, same as CancelJob.
func (o *Oracle) FinishJob(id uint64) error {
	o.queueMu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.queueMu.Unlock()
		return ErrUnknownJob
	}
	delete(o.jobs, id)
	var unresolved []chainhash.BlockHash
	for _, h := range j.hashes {
		delete(o.assigned, h)
		o.futuresMu.RLock()
		f, waiting := o.futures[h]
		o.futuresMu.RUnlock()
		if waiting && !f.Ready() {
			unresolved = append(unresolved, h)
		}
	}
	if len(unresolved) > 0 {
		o.queue = append(append([]chainhash.BlockHash(nil), unresolved...), o.queue...)
	}
	metrics.DownloadQueueDepth.WithLabelValues(o.chainID.String()).Set(float64(len(o.queue)))
	o.queueMu.Unlock()
	return nil
}

// DownloadQueue returns the number of hashes currently waiting
// (enqueued but not assigned to any in-flight job).
func (o *Oracle) DownloadQueue() int {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	n := 0
	for _, h := range o.queue {
		if _, assigned := o.assigned[h]; !assigned {
			n++
		}
	}
	return n
}

// enqueue adds hash to the back of the wait queue if it is not already
// present, enforcing "at most one in-flight download per hash" (spec
// §8) at the queue-membership level.
func (o *Oracle) enqueue(hash chainhash.BlockHash) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	for _, h := range o.queue {
		if h == hash {
			return
		}
	}
	if _, assigned := o.assigned[hash]; assigned {
		return
	}
	o.queue = append(o.queue, hash)
	metrics.DownloadQueueDepth.WithLabelValues(o.chainID.String()).Set(float64(len(o.queue)))
}
