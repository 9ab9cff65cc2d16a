package autonetwork

import (
	"context"
	"fmt"
	"time"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/dpa/coordparams"
	"github.com/iqrf/iqmesh-gateway/internal/lease"
	"github.com/iqrf/iqmesh-gateway/internal/publisher"
	"go.uber.org/zap"
)

// interStepPause is the unconditional inter-wave pacing sleep (spec.md §5).
const interStepPause = 500 * time.Millisecond

// Orchestrator runs one Autonetwork request end to end: pre-flight,
// wave x N, cleanup (spec.md §4.4). One Orchestrator serves one request;
// it is not reused across requests.
type Orchestrator struct {
	client  dpa.Client
	lease   *lease.Lease
	pub     publisher.Publisher
	log     *zap.SugaredLogger
	params  InputParams
	timeout time.Duration

	nodes       map[uint8]*NodeRecord
	authMode    AuthMode
	dpaVersion  uint16
	bondedCount int

	wave     WaveState
	prevSeed uint8

	unbondQueue map[uint8]bool // addresses to zero-MID in the next duplicate-MID cleanup pass

	history []publisher.TransactionRecord

	saved      coordparams.Snapshot
	savedValid bool
}

// New constructs an Orchestrator for one run.
func New(client dpa.Client, l *lease.Lease, pub publisher.Publisher, params InputParams, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	timeout := time.Duration(params.Timeout) * time.Millisecond

	return &Orchestrator{
		client:      client,
		lease:       l,
		pub:         pub,
		log:         log,
		params:      params,
		timeout:     timeout,
		nodes:       make(map[uint8]*NodeRecord, 240),
		unbondQueue: make(map[uint8]bool),
	}
}

// Run executes the full request lifecycle, acquiring the exclusive-access
// lease for its duration (spec.md §4.3) and guaranteeing its release on
// every exit path, including panics (spec.md §8 "lease release" property).
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	release, err := o.lease.Acquire()
	if err != nil {
		return fmt.Errorf("autonetwork: %w", err)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("autonetwork: recovered from panic mid-run", "panic", r)
			o.runCleanup(ctx)
			err = fmt.Errorf("autonetwork: panic: %v", r)
		}
	}()

	code, preflightErr := o.preflight(ctx)
	if code != WaveFinished {
		o.publishTerminal(ctx, code, true)
		o.runCleanup(ctx)
		return preflightErr
	}

	if o.params.DiscoveryBeforeStart {
		if err := o.runDiscovery(ctx); err != nil {
			o.log.Warnw("autonetwork: discovery-before-start failed", "error", err)
		}
		o.publishProgress(ctx, DiscoveryBeforeStart, 0)
	}

	for {
		o.wave.WaveIndex++
		o.wave.NewNodesThisWave = 0
		o.wave.ProgressPercent = 0
		o.wave.RespondedNew = nil

		stop, waveErr := o.runWave(ctx)
		if waveErr != nil {
			o.log.Warnw("autonetwork: wave ended with error", "wave", o.wave.WaveIndex, "error", waveErr)
		}

		last := stop.IsTerminal() || waveErr != nil
		o.publishResult(ctx, stop, last)

		if last {
			break
		}

		time.Sleep(interStepPause)
	}

	o.runCleanup(ctx)
	return nil
}

// publishTerminal emits a single result message, with no preceding progress
// message, for a pre-flight refusal (no wave body, spec.md §4.4.6).
func (o *Orchestrator) publishTerminal(ctx context.Context, code WaveStateCode, last bool) {
	o.wave.StateCode = code
	o.wave.ProgressPercent = 100
	o.publishResult(ctx, code, last)
}

// publishProgress emits one progress message and advances the progress
// counter (spec.md §4.5, §8 "monotone progress").
func (o *Orchestrator) publishProgress(ctx context.Context, code WaveStateCode, steps int) {
	o.wave.StateCode = code
	if steps > 0 {
		inc := uint8(100 / steps)
		if o.wave.ProgressPercent+inc > 100 {
			o.wave.ProgressPercent = 100
		} else {
			o.wave.ProgressPercent += inc
		}
	}

	msg := publisher.ProgressMessage{
		Wave:      o.wave.WaveIndex,
		StateCode: int(code),
		Progress:  o.wave.ProgressPercent,
	}
	if err := o.pub.Progress(ctx, msg); err != nil {
		o.log.Warnw("autonetwork: failed to publish progress", "error", err)
	}
}

func (o *Orchestrator) publishResult(ctx context.Context, code WaveStateCode, last bool) {
	o.wave.StateCode = code
	progress := o.wave.ProgressPercent
	if last {
		progress = 100
	}

	newNodes := make([]publisher.NewNodeMsg, 0, len(o.wave.RespondedNew))
	for _, addr := range o.wave.RespondedNew {
		if n, ok := o.nodes[addr]; ok {
			newNodes = append(newNodes, publisher.NewNodeMsg{Address: addr, MID: fmt.Sprintf("%06X", n.MID)})
		}
	}

	msg := publisher.ResultMessage{
		ProgressMessage: publisher.ProgressMessage{
			Wave:      o.wave.WaveIndex,
			StateCode: int(code),
			Progress:  progress,
		},
		NodesNr:    o.bondedCount,
		NewNodesNr: int(o.wave.NewNodesTotal),
		NewNodes:   newNodes,
		LastWave:   last,
	}

	if o.params.ReturnVerbose {
		wire := make([]publisher.WireTransaction, 0, len(o.history))
		for _, t := range o.history {
			wire = append(wire, t.Wire())
		}
		msg.WaveState = &publisher.WaveState{Raw: wire}
	}
	o.history = o.history[:0]

	if err := o.pub.Result(ctx, msg); err != nil {
		o.log.Warnw("autonetwork: failed to publish result", "error", err)
	}
}

// record appends one DPA exchange to the verbose transaction-history ring
// (SPEC_FULL.md §7).
func (o *Orchestrator) record(t publisher.TransactionRecord) {
	const maxHistory = 4096
	if len(o.history) >= maxHistory {
		o.history = o.history[1:]
	}
	o.history = append(o.history, t)
}

// nextSeed computes the next wave seed byte (spec.md §4.4.3: "(previous
// seed + 1) mod 256").
func (o *Orchestrator) nextSeed() uint8 {
	o.prevSeed++
	return o.prevSeed
}

// progressSteps recomputes the per-wave step divisor (spec.md §4.4.3:
// "adds one step if hwpid-filtering is on; adds one if DPA >= 4.14; adds
// one if per-wave discovery is enabled").
func (o *Orchestrator) progressSteps() int {
	steps := 7 // prebond, alive, readMID, enumeration/auth, authorize, ping, discovery(-ish base)
	if len(o.params.HWPIDFiltering) > 0 {
		steps++
	}
	if o.dpaVersion >= 0x0414 {
		steps++
	}
	if !o.params.SkipDiscoveryEachWave {
		steps++
	}
	return steps
}
