// Copyright 2024 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package builder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("builder")

// RestartJobInterval is RESTART_JOB_INTERVAL from spec.md section 4.2.
const RestartJobInterval = 60 * time.Second

// Config holds the periods the seven jobs run at, per spec.md section 4.2
// and the BLOCK_BUILDER_* environment variables of section 6.
type Config struct {
	HeartBeatInterval       time.Duration
	InitialHeartBeatDelay   time.Duration
	EnqueueEmptyBlockPeriod time.Duration
	ProcessRequestsPeriod   time.Duration
	ProcessSignaturesPeriod time.Duration
	FeeCollectionPeriod     time.Duration
	PostBlockPeriod         time.Duration

	SignatureWaitWindow time.Duration
	RequestCountTrigger int
	RequestTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartBeatInterval:       5 * time.Minute,
		InitialHeartBeatDelay:   5 * time.Second,
		EnqueueEmptyBlockPeriod: 2 * time.Second,
		ProcessRequestsPeriod:   2 * time.Second,
		ProcessSignaturesPeriod: 2 * time.Second,
		FeeCollectionPeriod:     2 * time.Second,
		PostBlockPeriod:         2 * time.Second,
		SignatureWaitWindow:     10 * time.Second,
		RequestCountTrigger:     NumSendersInBlock,
		RequestTimeout:          10 * time.Second,
	}
}

// Registry provides the external effects a job needs: announcing liveness,
// checking deposit indices, and the queue a finalized proposal is handed
// off to.
type Registry interface {
	EmitHeartBeat(ctx context.Context, builderURL string) error
	NextDepositIndex(ctx context.Context) (uint64, error)
	LatestIncludedDepositIndex(ctx context.Context) (uint64, error)
}

// PostQueue is the durable hand-off point between the FSM/job pipeline and
// post_block: spec.md section 5 requires posted-block tasks to survive a
// builder restart, so this is expected to be backed by persistent storage
// in production, not an in-memory channel.
type PostQueue interface {
	Enqueue(ctx context.Context, task BlockPostTask) error
	Dequeue(ctx context.Context) (*BlockPostTask, error)
}

// Jobs bundles the FSM, nonce manager, registry and queue that the seven
// periodic jobs of spec.md section 4.2 operate over.
type Jobs struct {
	cfg      Config
	fsm      *FSM
	registry Registry
	queue    PostQueue
	poster   *Poster
	builderURL string

	proposedAt map[bool]time.Time // keyed by isRegistration, set each time AcceptingTxs starts
}

func NewJobs(cfg Config, fsm *FSM, registry Registry, queue PostQueue, poster *Poster, builderURL string) *Jobs {
	return &Jobs{
		cfg:        cfg,
		fsm:        fsm,
		registry:   registry,
		queue:      queue,
		poster:     poster,
		builderURL: builderURL,
		proposedAt: make(map[bool]time.Time),
	}
}

// Supervise wraps fn in the uniform supervise-and-restart behavior of
// spec.md section 4.2: on error or panic, log and sleep
// RestartJobInterval before relaunching.
func Supervise(ctx context.Context, name string, fn func(ctx context.Context) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorw("job panicked", "job", name, "panic", r)
				}
			}()
			if err := fn(ctx); err != nil {
				logger.Errorw("job failed", "job", name, "err", err)
			}
		}()

		metrics.GetOrRegisterCounter("builder.job_restarts."+name, metrics.DefaultRegistry).Inc(1)

		select {
		case <-ctx.Done():
			return
		case <-time.After(RestartJobInterval):
		}
	}
}

// RunAll launches all seven jobs, each under Supervise, and returns once
// ctx is cancelled and every job goroutine has exited.
func (j *Jobs) RunAll(ctx context.Context) {
	done := make(chan struct{}, 7)
	launch := func(name string, fn func(ctx context.Context) error) {
		go func() {
			Supervise(ctx, name, fn)
			done <- struct{}{}
		}()
	}

	launch("emit_heart_beat", j.emitHeartBeatLoop)
	launch("enqueue_empty_block", j.enqueueEmptyBlockLoop)
	launch("process_requests_registration", func(ctx context.Context) error { return j.processRequestsLoop(ctx, true) })
	launch("process_requests_non_registration", func(ctx context.Context) error { return j.processRequestsLoop(ctx, false) })
	launch("process_signatures", j.processSignaturesLoop)
	launch("process_fee_collection", j.processFeeCollectionLoop)
	launch("post_block", j.postBlockLoop)

	time.AfterFunc(j.cfg.InitialHeartBeatDelay, func() {
		_ = j.registry.EmitHeartBeat(ctx, j.builderURL)
	})

	for i := 0; i < 7; i++ {
		<-done
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// emitHeartBeatLoop is the emit_heart_beat job.
func (j *Jobs) emitHeartBeatLoop(ctx context.Context) error {
	for {
		if err := j.registry.EmitHeartBeat(ctx, j.builderURL); err != nil {
			return err
		}
		if !sleepOrDone(ctx, j.cfg.HeartBeatInterval) {
			return nil
		}
	}
}

// enqueueEmptyBlockLoop is enqueue_empty_block: if next_deposit_index >
// latest_included_deposit_index + 1, enqueue a force_post empty block task.
func (j *Jobs) enqueueEmptyBlockLoop(ctx context.Context) error {
	for {
		next, err := j.registry.NextDepositIndex(ctx)
		if err != nil {
			return err
		}
		latest, err := j.registry.LatestIncludedDepositIndex(ctx)
		if err != nil {
			return err
		}
		if next > latest+1 {
			task := BlockPostTask{ForcePost: true, BlockID: uuid.New().String()}
			if err := j.queue.Enqueue(ctx, task); err != nil {
				return err
			}
		}
		if !sleepOrDone(ctx, j.cfg.EnqueueEmptyBlockPeriod) {
			return nil
		}
	}
}

// processRequestsLoop is process_requests(is_registration): when the
// accumulated request count or elapsed timeout is met, transition the FSM
// to ProposingBlock.
func (j *Jobs) processRequestsLoop(ctx context.Context, isRegistration bool) error {
	for {
		if j.fsm.State() == Pausing {
			j.fsm.StartAcceptingTxs()
			j.proposedAt[isRegistration] = time.Now()
		}

		if j.fsm.State() == AcceptingTxs {
			count := j.fsm.PendingCount()
			elapsed := time.Now().Sub(j.proposedAt[isRegistration])
			if count >= j.cfg.RequestCountTrigger || elapsed >= j.cfg.RequestTimeout {
				j.fsm.ProposeBlock(isRegistration)
			}
		}

		if !sleepOrDone(ctx, j.cfg.ProcessRequestsPeriod) {
			return nil
		}
	}
}

// processSignaturesLoop is process_signatures: move ProposingBlock memos
// whose signature-wait window elapsed into the post queue.
func (j *Jobs) processSignaturesLoop(ctx context.Context) error {
	windowStart := time.Now()
	for {
		if j.fsm.State() == ProposingBlock && time.Now().Sub(windowStart) >= j.cfg.SignatureWaitWindow {
			memo := j.fsm.FinalizeBlock()
			task := buildPostTask(memo, false)
			if err := j.queue.Enqueue(ctx, task); err != nil {
				return err
			}
			windowStart = time.Now()
		}
		if !sleepOrDone(ctx, j.cfg.ProcessSignaturesPeriod) {
			return nil
		}
	}
}

// processFeeCollectionLoop is process_fee_collection: reconcile collected
// fee transfers against the store-vault. Fee-proof verification itself is
// out of scope; this loop's seam is the FeeCollector interface.
func (j *Jobs) processFeeCollectionLoop(ctx context.Context) error {
	for {
		if j.poster.feeCollector != nil {
			if err := j.poster.feeCollector.ReconcileFees(ctx); err != nil {
				return err
			}
		}
		if !sleepOrDone(ctx, j.cfg.FeeCollectionPeriod) {
			return nil
		}
	}
}

// postBlockLoop is post_block: dequeue one BlockPostTask, run the
// procedure in postblock.go.
func (j *Jobs) postBlockLoop(ctx context.Context) error {
	for {
		task, err := j.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if task != nil {
			if err := j.poster.PostBlock(ctx, *task); err != nil {
				logger.Errorw("post_block failed", "err", err)
			}
		}
		if !sleepOrDone(ctx, j.cfg.PostBlockPeriod) {
			return nil
		}
	}
}

func buildPostTask(memo *ProposalMemo, forcePost bool) BlockPostTask {
	if memo == nil {
		return BlockPostTask{ForcePost: forcePost, BlockID: uuid.New().String()}
	}
	return BlockPostTask{
		ForcePost:           forcePost,
		IsRegistrationBlock: memo.IsRegistrationBlock,
		PubKeys:             memo.SortedPubKeys,
		PubKeyHash:          memo.PubKeyHash,
		TxTreeRoot:          memo.TxTreeRoot,
		Signatures:          memo.Signatures,
		BlockID:             uuid.New().String(),
	}
}
