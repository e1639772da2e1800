package subchain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/openxnode/chaincore/chainhash"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/metrics"
)

// Handler is implemented by each of the five concrete jobs to process
// work once baseJob's routing table has decided it should run now.
type Handler interface {
	handle(w Work) error
}

// baseJob implements the shared state machine, epoch gating, deferred
// queue, and watchdog every job carries (spec §4.5). Concrete jobs
// embed it and supply a Handler.
type baseJob struct {
	jobType string
	chain   string
	subchn  string
	log     log.Logger

	mu       sync.Mutex
	state    JobState
	epoch    uint64
	deferred []Work
	handler  Handler

	lastAck atomic.Int64 // unix nanos of the last watchdog ack
}

func newBaseJob(jobType, chain, subchn string, handler Handler) *baseJob {
	j := &baseJob{
		jobType: jobType,
		chain:   chain,
		subchn:  subchn,
		state:   StateNormal,
		handler: handler,
		log:     log.New("component", "subchain", "job", jobType, "chain", chain, "subchain", subchn),
	}
	j.lastAck.Store(time.Now().UnixNano())
	return j
}

func (j *baseJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Dispatch routes w per the state/work-kind table, running it
// synchronously, deferring it, dropping it, or transitioning state
// (spec §4.5).
func (j *baseJob) Dispatch(w Work) error {
	j.mu.Lock()

	if epochBearing(w.Kind) && w.Epoch != 0 && w.Epoch < j.epoch {
		j.mu.Unlock()
		return ErrStaleEpoch // stale epoch: silently dropped per spec, but surfaced to the caller for logging
	}

	switch route(j.state, w.Kind) {
	case RouteIgnore:
		j.mu.Unlock()
		return nil
	case RouteDefer:
		j.deferred = append(j.deferred, w)
		j.mu.Unlock()
		return nil
	case RouteError:
		j.mu.Unlock()
		return ErrWrongState
	case RouteAck:
		j.lastAck.Store(time.Now().UnixNano())
		j.mu.Unlock()
		return nil
	case RouteTransition:
		return j.transition(w)
	default: // RouteProcess
		j.mu.Unlock()
		return j.handler.handle(w)
	}
}

// transition runs under j.mu (already held by Dispatch) and performs
// the prepare_reorg / finish_reorg / prepare_shutdown state changes.
func (j *baseJob) transition(w Work) error {
	defer j.mu.Unlock()
	switch w.Kind {
	case WorkPrepareReorg:
		j.epoch = w.Epoch
		j.state = StateReorg
	case WorkFinishReorg:
		j.state = StateNormal
		deferred := j.deferred
		j.deferred = nil
		j.mu.Unlock()
		for _, dw := range deferred {
			if err := j.Dispatch(dw); err != nil {
				j.log.Warn("deferred work failed after reorg", "err", err)
			}
		}
		j.mu.Lock()
	case WorkPrepareShutdown:
		j.state = StatePreShutdown
	case WorkShutdown:
		j.state = StateShutdown
	}
	return nil
}

// Shutdown drives the job through its terminal prepare_shutdown ->
// shutdown sequence (spec §4.5, §5 "Jobs honor a global prepare_shutdown
// -> shutdown sequence"). Callers typically fan this out to all five
// jobs from the coordinator.
func (j *baseJob) Shutdown() error {
	if err := j.Dispatch(Work{Kind: WorkPrepareShutdown}); err != nil {
		return err
	}
	return j.Dispatch(Work{Kind: WorkShutdown})
}

func epochBearing(kind WorkKind) bool {
	switch kind {
	case WorkUpdate, WorkProcess, WorkReprocess, WorkBlock:
		return true
	default:
		return false
	}
}

// Watchdog reports whether the job has acked within the last two
// WatchdogIntervals;
// the coordinator polls this to find stuck jobs (spec §4.5, SPEC_FULL's
// stuck_job_total metric).
func (j *baseJob) Watchdog() bool {
	last := time.Unix(0, j.lastAck.Load())
	ok := time.Since(last) < 2*WatchdogInterval
	if !ok {
		metrics.StuckJobTotal.WithLabelValues(j.chain, j.subchn, j.jobType).Inc()
	}
	return ok
}

// acknowledgePrepareReorg dispatches prepare_reorg to this job and
// reports whether it was accepted (false is a veto). Reorg does not
// call it: Reorg.AcknowledgePrepareReorg dispatches WorkPrepareReorg to
// each job itself.
func (j *baseJob) acknowledgePrepareReorg(epoch uint64, forkPoint chainhash.Position, rollback []chainhash.Position) bool {
	return j.Dispatch(Work{Kind: WorkPrepareReorg, Epoch: epoch, Position: forkPoint, Rollback: rollback}) == nil
}
