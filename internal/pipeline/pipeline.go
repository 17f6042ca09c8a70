// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/alertfeed/internal/ack"
	"github.com/tomtom215/alertfeed/internal/cache"
	"github.com/tomtom215/alertfeed/internal/catchup"
	"github.com/tomtom215/alertfeed/internal/config"
	"github.com/tomtom215/alertfeed/internal/connection"
	"github.com/tomtom215/alertfeed/internal/identity"
	"github.com/tomtom215/alertfeed/internal/ingest"
	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/liveness"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/models"
	"github.com/tomtom215/alertfeed/internal/notify"
	"github.com/tomtom215/alertfeed/internal/sequence"
	"github.com/tomtom215/alertfeed/internal/store"
	"github.com/tomtom215/alertfeed/internal/subscriptions"
	"github.com/tomtom215/alertfeed/internal/supervisor"
	"github.com/tomtom215/alertfeed/internal/uibridge"
)

// ErrAlreadyStarted is returned by Start on a running or stopped pipeline.
var ErrAlreadyStarted = errors.New("pipeline: already started")

// Pipeline owns every service of one alert feed client.
type Pipeline struct {
	cfg *config.Config

	kv       *kvstore.Store
	clientID string
	registry *subscriptions.MemoryRegistry
	recent   *cache.RecentIDs
	tracker  *sequence.Tracker
	store    *store.Store

	bus       *notify.Bus
	notifier  *notify.Dispatcher
	forwarder *notify.Forwarder // nil unless NATS is enabled

	queue     *ingest.Queue
	processor *ingest.Processor
	pool      *ingest.Pool
	conn      *connection.Supervisor
	acks      *ack.Batcher
	monitor   *catchup.Monitor
	liveness  *liveness.Writer

	hub    *uibridge.Hub
	server *uibridge.Server // nil unless HTTP is enabled

	tree *supervisor.SupervisorTree

	killed  bool
	cameras atomic.Pointer[string]

	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	treeDone <-chan error
}

// New opens the state store and wires every service. Nothing runs until
// Start.
func New(cfg *config.Config) (*Pipeline, error) {
	kv, err := kvstore.Open(kvstore.Config{
		Path:        cfg.Storage.Path,
		InMemory:    cfg.Storage.InMemory,
		SyncWrites:  cfg.Storage.SyncWrites,
		Compression: cfg.Storage.Compression,
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	p, err := build(cfg, kv)
	if err != nil {
		if cerr := kv.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close state store after setup error")
		}
		return nil, err
	}
	return p, nil
}

func build(cfg *config.Config, kv *kvstore.Store) (*Pipeline, error) {
	clientID, err := identity.Load(kv)
	if err != nil {
		return nil, fmt.Errorf("load client id: %w", err)
	}
	registry, err := subscriptions.FromChannels(cfg.Subscriptions.Channels, cfg.Subscriptions.Muted, cfg.Subscriptions.Pinned)
	if err != nil {
		return nil, fmt.Errorf("build subscription registry: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg,
		kv:       kv,
		clientID: clientID,
		registry: registry,
		recent:   cache.NewRecentIDs(cfg.Recent.Capacity, cfg.Recent.TTL),
		tracker:  sequence.NewTracker(kv, cfg.Sequence.SaveDebounce),
	}

	// Persisted state is a best-effort cache; a corrupt blob starts empty.
	if err := p.tracker.Load(); err != nil {
		logging.Warn().Err(err).Msg("Discarding unreadable sync state")
	}
	p.store = store.New(kv, store.Config{
		Retention:          cfg.Store.Retention,
		SweepSchedule:      cfg.Store.SweepSchedule,
		ForceSaveThreshold: cfg.Store.ForceSaveThreshold,
		BusyThreshold:      cfg.Store.BusyThreshold,
		SteadyDebounce:     cfg.Store.SteadyDebounce,
		BusyDebounce:       cfg.Store.BusyDebounce,
	}, p.tracker.AnyInCatchUp)
	if err := p.store.Load(); err != nil {
		logging.Warn().Err(err).Msg("Discarding unreadable event store")
	}

	p.recover()

	p.bus = notify.NewBus(cfg.Notify.BusBuffer)
	p.notifier = notify.NewDispatcher(p.bus, p.tracker.IsCatchUp, notify.Config{
		CoalesceWindow: cfg.Notify.CoalesceWindow,
	})

	p.queue = ingest.NewQueue()
	p.conn = connection.NewSupervisor(connection.Config{
		URL:                  cfg.Connection.URL,
		HandshakeTimeout:     cfg.Connection.HandshakeTimeout,
		SettleDelay:          cfg.Connection.SettleDelay,
		SubscribeDedupWindow: cfg.Connection.SubscribeDedupWindow,
		PingInterval:         cfg.Connection.PingInterval,
		PongWait:             cfg.Connection.PongWait,
		WriteWait:            cfg.Connection.WriteWait,
		ReconnectBase:        cfg.Connection.ReconnectBase,
		MaxBackoffSteps:      cfg.Connection.MaxBackoffSteps,
	}, p, p.queue.Push)
	p.conn.OnStateChange(p.connectionChanged)

	p.acks = ack.NewBatcher(p.conn, clientID, ack.Config{
		BatchSize:       cfg.Ack.BatchSize,
		FlushInterval:   cfg.Ack.FlushInterval,
		MaxPerMessage:   cfg.Ack.MaxPerMessage,
		BreakerFailures: cfg.Ack.BreakerFailures,
		BreakerTimeout:  cfg.Ack.BreakerTimeout,
	})

	p.processor = ingest.NewProcessor(ingest.Deps{
		Registry: registry,
		Recent:   p.recent,
		Tracker:  p.tracker,
		Store:    p.store,
		Acks:     p.acks,
		Notifier: p.notifier,
		Cameras:  p,
	})
	p.pool = ingest.NewPool(p.queue, p.processor, cfg.Ingest.Workers, cfg.Ingest.IdleWait)

	p.monitor = catchup.NewMonitor(p.tracker, p.pool, catchup.Config{
		PollInterval: cfg.CatchUp.PollInterval,
		QuietPolls:   cfg.CatchUp.QuietPolls,
	})
	p.monitor.OnLive(p.notifier.ChannelUpdated)

	p.liveness = liveness.NewWriter(kv, cfg.Liveness.Interval)
	p.liveness.OnTick(func() {
		if err := p.persistRecent(); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist recent event ids")
		}
	})

	p.hub = uibridge.NewHub()
	p.hub.OnCommand(func(msg uibridge.ClientMessage) {
		if msg.Type == uibridge.MessageTypeMarkRead && msg.Channel != "" {
			p.MarkRead(msg.Channel)
		}
	})
	if cfg.HTTP.Enabled {
		p.server = uibridge.NewServer(uibridge.Config{
			Addr:              cfg.HTTP.Addr,
			AllowedOrigins:    cfg.HTTP.AllowedOrigins,
			RateLimitRequests: cfg.HTTP.RateLimitRequests,
			RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		}, p.hub, p)
	}

	if cfg.Notify.NATS.Enabled {
		p.forwarder, err = notify.NewForwarder(p.bus, notify.NATSConfig{
			URL:           cfg.Notify.NATS.URL,
			SubjectPrefix: cfg.Notify.NATS.SubjectPrefix,
			MaxReconnects: cfg.Notify.NATS.MaxReconnects,
			ReconnectWait: cfg.Notify.NATS.ReconnectWait,
		})
		if err != nil {
			_ = p.bus.Close()
			return nil, fmt.Errorf("create NATS forwarder: %w", err)
		}
	}

	if err := p.buildTree(); err != nil {
		_ = p.bus.Close()
		return nil, err
	}

	logging.Info().
		Str("client_id", clientID).
		Int("subscriptions", len(registry.List())).
		Int("workers", p.pool.Workers()).
		Bool("killed", p.killed).
		Msg("Pipeline ready")
	return p, nil
}

// recover inspects the liveness marker. After a kill the recent-id cache
// is left empty and every known channel that is still subscribed re-enters
// catch-up, so replayed events are deduplicated by the sequence set instead
// of the high-water mark. Unsubscribed channels never receive events and
// would never leave catch-up.
func (p *Pipeline) recover() {
	verdict, err := liveness.Check(p.kv, p.cfg.Liveness.KillGap, time.Now())
	if err != nil {
		logging.Warn().Err(err).Msg("Liveness marker unreadable, assuming unclean exit")
		verdict.Killed = true
	}

	if verdict.Killed {
		p.killed = true
		p.recent.Clear()
		if err := p.kv.Delete(kvstore.KeyRecentIDs); err != nil {
			logging.Warn().Err(err).Msg("Failed to drop recent id snapshot")
		}
		var channels []string
		for _, channel := range p.tracker.Channels() {
			if _, ok := p.registry.Lookup(channel); !ok {
				continue
			}
			p.tracker.EnableCatchUpMode(channel)
			channels = append(channels, channel)
		}
		logging.Warn().
			Dur("gap", verdict.Gap).
			Time("last_marker", verdict.Last.Time).
			Int("channels", len(channels)).
			Msg("Previous run was killed, re-entering catch-up for all channels")
		return
	}

	var snapshot []cache.SnapshotEntry
	if err := p.kv.Get(kvstore.KeyRecentIDs, &snapshot); err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			logging.Warn().Err(err).Msg("Discarding unreadable recent id snapshot")
		}
		return
	}
	restored := p.recent.Restore(snapshot)
	logging.Debug().Int("restored", restored).Msg("Recent event ids restored")
}

func (p *Pipeline) buildTree() error {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: p.cfg.Supervisor.FailureThreshold,
		FailureBackoff:   p.cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  p.cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddStorageService(store.NewSweeper(p.store))
	tree.AddStorageService(p.liveness)

	tree.AddIngestService(p.pool)
	tree.AddIngestService(p.acks)
	tree.AddIngestService(p.monitor)
	tree.AddIngestService(p.notifier)
	if p.forwarder != nil {
		tree.AddIngestService(p.forwarder)
	}

	tree.AddUIService(p.hub)
	tree.AddUIService(uibridge.NewRelay(p.bus, p.hub))
	if p.server != nil {
		tree.AddUIService(p.server)
	}

	p.tree = tree
	return nil
}

// SubscribeRequest implements connection.SubscriptionProvider. Every
// subscribed channel enters catch-up before the request goes out, so the
// first replayed event is already deduplicated by sequence set.
func (p *Pipeline) SubscribeRequest() (models.SubscribeRequest, bool) {
	subs := p.registry.List()
	if len(subs) == 0 {
		logging.Warn().Msg("No subscriptions configured, not subscribing")
		return models.SubscribeRequest{}, false
	}

	channels := make([]string, 0, len(subs))
	for _, s := range subs {
		channels = append(channels, s.Channel())
		p.tracker.EnableCatchUpMode(s.Channel())
	}
	req := subscriptions.BuildRequest(p.clientID, subs, p.tracker.SyncPositions(channels))
	logging.Info().
		Strs("channels", channels).
		Bool("reset_consumers", req.ResetConsumers).
		Msg("Subscribing")
	return req, true
}

func (p *Pipeline) connectionChanged(connected bool) {
	if !connected {
		return
	}
	// acks held over from the previous socket go out right away
	go func() {
		if err := p.acks.Flush(); err != nil {
			logging.Debug().Err(err).Msg("Ack flush after reconnect deferred")
		}
	}()
}

// HandleCameraList implements ingest.CameraHandler by keeping the latest
// inventory for whoever renders it.
func (p *Pipeline) HandleCameraList(rawJSON string) {
	p.cameras.Store(&rawJSON)
	logging.Debug().Int("bytes", len(rawJSON)).Msg("Camera inventory updated")
}

// CameraInventory returns the most recent camera inventory payload.
func (p *Pipeline) CameraInventory() (string, bool) {
	raw := p.cameras.Load()
	if raw == nil {
		return "", false
	}
	return *raw, true
}

// Start runs the supervisor tree and opens the feed socket. A failed first
// dial is not an error; the connection supervisor keeps retrying.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.startServices(ctx); err != nil {
		return err
	}
	if err := p.conn.Connect(ctx); err != nil {
		logging.Warn().Err(err).Msg("Initial connection failed, retrying in background")
	}
	return nil
}

func (p *Pipeline) startServices(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return ErrAlreadyStarted
	}
	treeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.treeDone = p.tree.ServeBackground(treeCtx)
	p.started = true
	return nil
}

// Run starts the pipeline, blocks until ctx is canceled, then shuts down.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logging.Info().Msg("Shutdown requested")
	return p.Shutdown()
}

// Shutdown stops the pipeline in dependency order: services first, then
// a synchronous ack flush while the socket is still open, then forced
// saves and the clean liveness marker, and only then the socket and the
// state store. Safe to call more than once.
func (p *Pipeline) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, done := p.cancel, p.treeDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Msg("Supervisor tree stopped with error")
		}
		if report, err := p.tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
			logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
		}
	}

	var errs []error
	if pending := p.acks.Pending(); pending > 0 {
		if err := p.acks.Flush(); err != nil {
			logging.Warn().Err(err).Int("pending", p.acks.Pending()).Msg("Pending acks not delivered before shutdown")
		}
	}
	if err := p.ForceSave(); err != nil {
		errs = append(errs, err)
	}
	if err := p.persistRecent(); err != nil {
		errs = append(errs, fmt.Errorf("persist recent ids: %w", err))
	}
	if err := p.liveness.MarkClean(); err != nil {
		errs = append(errs, err)
	}

	p.conn.Disconnect()
	p.tracker.Close()
	p.store.Close()
	if err := p.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notification bus: %w", err))
	}
	if err := p.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state store: %w", err))
	}

	logging.Info().Interface("stats", p.processor.Stats()).Msg("Pipeline stopped")
	return errors.Join(errs...)
}

// ForceSave writes sync state and stored events synchronously.
func (p *Pipeline) ForceSave() error {
	var errs []error
	if err := p.tracker.ForceSave(); err != nil {
		errs = append(errs, fmt.Errorf("save sync state: %w", err))
	}
	if err := p.store.ForceSave(); err != nil {
		errs = append(errs, fmt.Errorf("save events: %w", err))
	}
	return errors.Join(errs...)
}

func (p *Pipeline) persistRecent() error {
	return p.kv.Put(kvstore.KeyRecentIDs, p.recent.Snapshot())
}

// Submit hands a raw message to the worker pool, exactly as the socket
// does.
func (p *Pipeline) Submit(raw []byte) {
	p.queue.Push(raw)
}

// Process runs one raw message through the processor on the calling
// goroutine.
func (p *Pipeline) Process(raw []byte) models.Outcome {
	return p.processor.Process(raw)
}

// Stats returns processing counters.
func (p *Pipeline) Stats() ingest.Stats {
	return p.processor.Stats()
}

// ClientID returns the device-stable client id.
func (p *Pipeline) ClientID() string {
	return p.clientID
}

// Killed reports whether startup detected an unclean exit.
func (p *Pipeline) Killed() bool {
	return p.killed
}

// Tracker exposes the sequence tracker.
func (p *Pipeline) Tracker() *sequence.Tracker {
	return p.tracker
}

// Store exposes the event store.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Subscribe adds a channel and resubscribes the open socket.
func (p *Pipeline) Subscribe(area, eventType string) {
	p.registry.Add(subscriptions.Subscription{Area: area, EventType: eventType})
	p.conn.Resubscribe()
}

// Unsubscribe removes a channel, clears its state and resubscribes.
func (p *Pipeline) Unsubscribe(channel string) error {
	if !p.registry.Remove(channel) {
		return nil
	}
	if err := p.ClearChannel(channel); err != nil {
		return err
	}
	p.conn.Resubscribe()
	return nil
}

// ClearChannel deletes a channel's sync state, events and unread count.
func (p *Pipeline) ClearChannel(channel string) error {
	p.tracker.ClearChannel(channel)
	p.store.ClearChannel(channel)
	p.notifier.ChannelUpdated(channel)
	return p.ForceSave()
}

// ClearAll deletes every channel's state and the recent-id cache.
func (p *Pipeline) ClearAll() error {
	p.tracker.ClearAll()
	p.store.ClearAll()
	p.recent.Clear()
	if err := p.persistRecent(); err != nil {
		return fmt.Errorf("persist recent ids: %w", err)
	}
	return p.ForceSave()
}

// MarkRead zeroes a channel's unread count.
func (p *Pipeline) MarkRead(channel string) {
	p.store.MarkRead(channel)
	p.notifier.ChannelUpdated(channel)
}

// Events returns up to limit stored events for channel, newest first.
func (p *Pipeline) Events(channel string, limit int) []models.Event {
	return p.store.Events(channel, limit)
}

// Channels summarizes every subscribed or stored channel.
func (p *Pipeline) Channels() []uibridge.ChannelSummary {
	seen := make(map[string]bool)
	var names []string
	add := func(list []string) {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
	}
	add(subscriptions.Channels(p.registry))
	add(p.store.Channels())
	add(p.tracker.Channels())
	sort.Strings(names)

	out := make([]uibridge.ChannelSummary, 0, len(names))
	for _, channel := range names {
		row := uibridge.ChannelSummary{
			Channel: channel,
			Stored:  p.store.Count(channel),
			Unread:  p.store.UnreadCount(channel),
			CatchUp: p.tracker.IsCatchUp(channel),
		}
		if sub, ok := p.registry.Lookup(channel); ok {
			row.Muted = sub.Muted
			row.Pinned = sub.Pinned
		}
		if info, ok := p.tracker.SyncInfo(channel); ok {
			row.LastEventID = info.LastEventID
			row.LastEventTimestamp = info.LastEventTimestamp
			row.LastSeq = info.LastEventSeq
			row.HighestSeq = info.HighestSeq
		}
		out = append(out, row)
	}
	return out
}

// Health reports connection and backlog state.
func (p *Pipeline) Health() uibridge.Health {
	catchUp := p.tracker.CatchUpChannels()
	if catchUp == nil {
		catchUp = []string{}
	}
	return uibridge.Health{
		Connected:       p.conn.IsConnected(),
		Subscribed:      p.conn.Subscribed(),
		ClientID:        p.clientID,
		CatchUpChannels: catchUp,
		QueueDepth:      p.queue.Len(),
		UIClients:       p.hub.ClientCount(),
	}
}
