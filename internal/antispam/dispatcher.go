package antispam

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/guardbot-dev/guardbot/internal/platform"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Dispatcher is the entry point of the pipeline. Every inbound guild
// message flows through it: bypass gating, the detector chain, mass-attack
// aggregation, the flag ledger, enforcement, and notification.
type Dispatcher struct {
	adapter    platform.Adapter
	policies   *PolicyStore
	gate       *Gate
	states     *stateMap
	aggregator *Aggregator
	enforcer   *Enforcer
	ledger     *Ledger
	notifier   *Notifier
	clock      Clock
	logger     *zap.Logger

	token     *tokenDetector
	detectors []Detector

	// detectMu serializes the detection phase. The buffers are cheap to
	// update, and strict ordering is what makes cross-user clustering and
	// the mass log deterministic.
	detectMu sync.Mutex

	// Messages are sharded by author onto worker queues, so one author's
	// messages are always handled in order, one at a time.
	queueMu sync.Mutex
	queues  []chan *platform.Message
	workers sync.WaitGroup
	stopped bool
}

const (
	dispatchShards     = 8
	dispatchQueueDepth = 64
)

// New assembles the full pipeline on top of the given adapter and stores.
func New(adapter platform.Adapter, store kv.Store, cooldowns CooldownStore, clock Clock, params Params, logger *zap.Logger) *Dispatcher {
	logger = logger.Named("antispam")

	states := newStateMap()
	policies := NewPolicyStore(store, logger)

	token := &tokenDetector{
		clusters: newClusterMap(),
		states:   states,
		params:   params,
	}

	d := &Dispatcher{
		adapter:    adapter,
		policies:   policies,
		gate:       NewGate(policies, logger),
		states:     states,
		aggregator: NewAggregator(clock, logger),
		enforcer:   NewEnforcer(adapter, clock, params, states, logger),
		ledger:     NewLedger(store, adapter, clock, logger),
		notifier:   NewNotifier(adapter, cooldowns, clock, params, logger),
		clock:      clock,
		logger:     logger.Named("dispatcher"),
		token:      token,

		// Inspection order is deliberate: the cheap counting detectors run
		// before the text heuristics, and the first verdict wins.
		detectors: []Detector{
			mediaDetector{},
			mentionDetector{},
			timebaseDetector{},
			textDetector{},
			token,
			forwardDetector{},
			typingDetector{},
		},
	}

	d.queues = make([]chan *platform.Message, dispatchShards)
	for i := range d.queues {
		queue := make(chan *platform.Message, dispatchQueueDepth)
		d.queues[i] = queue

		d.workers.Add(1)

		go d.work(queue)
	}

	return d
}

// Policies exposes the policy store for configuration tooling.
func (d *Dispatcher) Policies() *PolicyStore { return d.policies }

// Flags exposes the flag ledger for moderation tooling.
func (d *Dispatcher) Flags() *Ledger { return d.ledger }

// Dispatch queues a message for handling on its author's shard. Safe to
// call from gateway handlers; a stopped dispatcher drops the message.
func (d *Dispatcher) Dispatch(msg *platform.Message) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	if d.stopped {
		return
	}

	d.queues[uint64(msg.AuthorID)%dispatchShards] <- msg
}

// work drains one shard queue. All messages from a given author land on
// the same shard, which is what serializes their handling.
func (d *Dispatcher) work(queue <-chan *platform.Message) {
	defer d.workers.Done()

	for msg := range queue {
		recovered := panics.Try(func() {
			d.HandleMessage(context.Background(), msg)
		})
		if recovered != nil {
			d.logger.Error("Panic while handling message",
				zap.Uint64("message_id", uint64(msg.MessageID)),
				zap.Any("panic", recovered.Value))
		}
	}
}

// Shutdown drains the dispatch queues and stops background work, waiting
// for pending restores.
func (d *Dispatcher) Shutdown() {
	d.queueMu.Lock()
	if !d.stopped {
		d.stopped = true

		for _, queue := range d.queues {
			close(queue)
		}
	}
	d.queueMu.Unlock()

	d.workers.Wait()
	d.enforcer.Shutdown()
}

// HandleMessage runs one message through the pipeline.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *platform.Message) {
	if msg.AuthorIsBot || msg.GuildID == 0 {
		return
	}

	policy := d.policies.Get(ctx, msg.GuildID)
	if !policy.Enabled {
		return
	}

	now := d.clock.Now()

	// Soft-blocked authors get their messages removed without re-running
	// detection; the block lapses on its own.
	if until := d.states.blockedUntil(msg.GuildID, msg.AuthorID); until > 0 {
		if until > now {
			d.deleteCurrent(ctx, msg)
			return
		}

		d.states.unblock(msg.GuildID, msg.AuthorID)
	}

	if d.gate.Bypassed(ctx, msg, policy) {
		return
	}

	verdict, clusterAuthors, hit := d.inspect(now, msg, policy)
	if !hit {
		return
	}

	d.logger.Info("Detection verdict",
		zap.Uint64("guild_id", uint64(msg.GuildID)),
		zap.Uint64("user_id", uint64(msg.AuthorID)),
		zap.String("kind", string(verdict.Kind)),
		zap.Float64("score", verdict.Score))

	// Feed the cross-user log. Token verdicts register every cluster
	// author, so a coordinated token raid reaches the mass threshold even
	// when only one message tipped the detector.
	massActive := false

	if len(clusterAuthors) > 0 {
		for _, author := range clusterAuthors {
			massActive = d.aggregator.Record(msg.GuildID, author, verdict.Kind)
		}
	} else {
		massActive = d.aggregator.Record(msg.GuildID, msg.AuthorID, verdict.Kind)
	}

	if massActive {
		verdict.Kind = verdict.Kind.Mass()
	}

	if _, err := d.ledger.AddFlag(ctx, msg, verdict, policy); err != nil {
		d.logger.Error("Failed to record violation flag",
			zap.Uint64("guild_id", uint64(msg.GuildID)),
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))
	}

	result, err := d.enforcer.Enforce(ctx, msg, verdict, massActive)
	if err != nil {
		return
	}

	d.deleteCurrent(ctx, msg)
	d.notifier.Notify(ctx, msg, verdict, result, policy)
}

// HandleTyping records a typing event for the typing-bypass detector.
func (d *Dispatcher) HandleTyping(guildID, userID snowflake.ID) {
	d.detectMu.Lock()
	defer d.detectMu.Unlock()

	state := d.states.get(guildID, userID)
	state.typingLast = d.clock.Now()
	state.hasTyping = true
}

// inspect runs the detector chain, returning the first verdict. Disabled
// detectors are skipped; a panicking detector is contained and skipped.
func (d *Dispatcher) inspect(now int64, msg *platform.Message, policy *Policy) (Verdict, []snowflake.ID, bool) {
	d.detectMu.Lock()
	defer d.detectMu.Unlock()

	state := d.states.get(msg.GuildID, msg.AuthorID)

	for _, detector := range d.detectors {
		if !policy.DetectorEnabled(detector.Kind()) {
			continue
		}

		var (
			verdict Verdict
			hit     bool
		)

		recovered := panics.Try(func() {
			verdict, hit = detector.Inspect(now, msg, state)
		})
		if recovered != nil {
			d.logger.Error("Detector panicked",
				zap.String("kind", string(detector.Kind())),
				zap.Any("panic", recovered.Value))

			continue
		}

		if !hit {
			continue
		}

		var clusterAuthors []snowflake.ID
		if verdict.Kind == KindToken {
			clusterAuthors = d.token.verdictAuthors()
		}

		return verdict, clusterAuthors, true
	}

	return Verdict{}, nil, false
}

// deleteCurrent removes the triggering message. A missing message means
// the purge already took it.
func (d *Dispatcher) deleteCurrent(ctx context.Context, msg *platform.Message) {
	err := d.adapter.DeleteMessage(ctx, msg.ChannelID, msg.MessageID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		d.logger.Warn("Failed to delete offending message",
			zap.Uint64("message_id", uint64(msg.MessageID)),
			zap.Error(err))
	}
}
