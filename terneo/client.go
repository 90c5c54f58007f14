package terneo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/opaluk/terneod/internal/cache"
	"github.com/opaluk/terneod/internal/dispatcher"
)

const (
	minPollInterval = 10 * time.Second
	maxPollInterval = 300 * time.Second
	maxBackoff      = 5 * time.Minute

	stateCacheKey = "state"
)

// Phase is the coordinator's lifecycle position.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseDetecting
	PhasePolling
	PhaseDegraded
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseDetecting:
		return "detecting"
	case PhasePolling:
		return "polling"
	case PhaseDegraded:
		return "degraded"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Health reports whether the cached snapshot can still be trusted.
type Health struct {
	Phase    Phase
	Fresh    bool
	StaleFor time.Duration
	Reason   string
}

// Config describes one thermostat session.
type Config struct {
	Host         string
	SerialNumber string
	// PollInterval is clamped to [10s, 300s]; zero selects 30s.
	PollInterval time.Duration
	// StaleAfter defaults to three poll intervals.
	StaleAfter time.Duration
}

// Client owns one device session: it detects the hardware generation once,
// polls state on a fixed cadence and applies commands. The last good
// snapshot survives outages; readers always see either it or nothing.
type Client struct {
	cfg        Config
	transport  *Transport
	ctx        context.Context
	cancel     context.CancelFunc
	cache      *cache.Cache
	dispatcher *dispatcher.Dispatcher

	gen      atomic.Int32
	phase    atomic.Int32
	revision atomic.Uint64

	mu     sync.Mutex
	reason string
}

// NewClient validates the configuration and starts the session goroutine.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("device host is required")
	}
	if cfg.SerialNumber == "" {
		return nil, fmt.Errorf("device serial number is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PollInterval < minPollInterval {
		log.Warnf("poll interval %s below device rate limit, clamping to %s", cfg.PollInterval, minPollInterval)
		cfg.PollInterval = minPollInterval
	}
	if cfg.PollInterval > maxPollInterval {
		cfg.PollInterval = maxPollInterval
	}
	return newClient(ctx, cfg, NewTransport(cfg.Host, cfg.SerialNumber)), nil
}

func newClient(ctx context.Context, cfg Config, tr *Transport) *Client {
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 3 * cfg.PollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:       cfg,
		transport: tr,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.dispatcher = dispatcher.New(ctx)
	c.cache = cache.New(
		func(_ string, old, new any) bool {
			prev, _ := old.(*Snapshot)
			next, _ := new.(*Snapshot)
			return next.contentEqual(prev)
		},
		c.dispatcher.BroadcastEvent,
	)
	go c.run()
	return c
}

// Stop ends the session. The cached snapshot stays readable.
func (c *Client) Stop() {
	c.cancel()
}

// Generation reports the detected hardware revision, GenerationUnknown
// until detection has completed.
func (c *Client) Generation() Generation {
	return Generation(c.gen.Load())
}

// Snapshot returns the last good device state, nil before the first poll.
func (c *Client) Snapshot() *Snapshot {
	snap, _ := c.cache.Get(stateCacheKey).(*Snapshot)
	return snap
}

// Health combines the coordinator phase with snapshot age.
func (c *Client) Health() Health {
	h := Health{Phase: Phase(c.phase.Load())}
	c.mu.Lock()
	h.Reason = c.reason
	c.mu.Unlock()

	snap := c.Snapshot()
	if snap == nil {
		return h
	}
	age := time.Since(snap.UpdatedAt)
	if age <= c.cfg.StaleAfter {
		h.Fresh = true
	} else {
		h.StaleFor = age - c.cfg.StaleAfter
	}
	return h
}

// NewListener subscribes to state-change events. The caller must drain the
// listener or it will be dropped.
func (c *Client) NewListener() *dispatcher.Listener {
	return c.dispatcher.NewListener()
}

// IssueCommand validates and sends one intent. Writes are never retried: a
// failed or timed-out write leaves the device state unknown until the next
// poll. On success the cached snapshot is updated optimistically and
// reconciled by the following poll.
func (c *Client) IssueCommand(ctx context.Context, intent Intent) error {
	gen := c.Generation()
	if gen == GenerationUnknown {
		return ErrNotReady
	}
	snap := c.Snapshot()

	writes, err := buildIntent(intent, SchemaFor(gen), snap)
	if err != nil {
		return err
	}
	par := encodeWrites(writes, gen)
	log.Infof("command %s: writing %d parameter(s) to %s", intent.Name, len(par), c.cfg.SerialNumber)
	if err := c.transport.SetParams(ctx, par); err != nil {
		return err
	}
	if snap != nil {
		c.cache.Update(stateCacheKey, snap.withWrites(writes, c.revision.Add(1)))
	}
	return nil
}

// Restart asks the device to reboot. State polling resumes automatically
// once the device comes back.
func (c *Client) Restart(ctx context.Context) error {
	if c.Generation() == GenerationUnknown {
		return ErrNotReady
	}
	log.Warnf("restarting device %s", c.cfg.SerialNumber)
	return c.transport.Restart(ctx)
}

func (c *Client) setPhase(p Phase, reason string) {
	c.phase.Store(int32(p))
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
}

func (c *Client) run() {
	defer c.setPhase(PhaseStopped, "session ended")

	gen, par, ok := c.detectLoop()
	if !ok {
		return
	}
	c.gen.Store(int32(gen))

	// The probe telegram already carries the full parameter table; only the
	// status fetch is left to complete the first snapshot.
	schema := SchemaFor(gen)
	seeded := false
	if err := c.publishSnapshot(schema, decodeParams(par, schema)); err != nil {
		log.Warnf("seeding first snapshot of %s failed: %s", c.cfg.SerialNumber, err)
	} else {
		c.setPhase(PhasePolling, "")
		seeded = true
	}
	c.pollLoop(schema, seeded)
}

// detectLoop probes until the hardware generation is known. Detection
// failures back off exponentially; the session never gives up on its own.
func (c *Client) detectLoop() (Generation, []parEntry, bool) {
	backoff := c.cfg.PollInterval
	for {
		c.setPhase(PhaseDetecting, "")
		err := c.transport.Probe(c.ctx)
		if err == nil {
			var gen Generation
			var par []parEntry
			if gen, par, err = detect(c.ctx, c.transport); err == nil {
				return gen, par, true
			}
		}
		log.Warnf("generation detection for %s failed: %s", c.cfg.SerialNumber, err)
		c.setPhase(PhaseDegraded, err.Error())
		if !c.sleep(backoff) {
			return GenerationUnknown, nil, false
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Client) pollLoop(schema *Schema, skipFirst bool) {
	backoff := c.cfg.PollInterval
	for {
		if skipFirst {
			skipFirst = false
			if !c.sleep(c.cfg.PollInterval) {
				return
			}
		}
		if err := c.poll(schema); err != nil {
			log.Warnf("poll of %s failed: %s", c.cfg.SerialNumber, err)
			c.setPhase(PhaseDegraded, err.Error())
			if !c.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		c.setPhase(PhasePolling, "")
		backoff = c.cfg.PollInterval
		if !c.sleep(c.cfg.PollInterval) {
			return
		}
	}
}

// poll fetches parameters and status and publishes a fresh snapshot. A
// telegram contradicting the detected generation rejects the whole poll;
// the previous snapshot stays in place.
func (c *Client) poll(schema *Schema) error {
	resp, err := c.transport.GetParams(c.ctx)
	if err != nil {
		return err
	}
	if got := classifyPar(resp.Par); got != schema.Generation() {
		return &DecodeError{
			What: "parameter telegram",
			Err:  fmt.Errorf("device now presents as %s, detected as %s", got, schema.Generation()),
		}
	}
	return c.publishSnapshot(schema, decodeParams(resp.Par, schema))
}

// publishSnapshot completes a snapshot with a status fetch and swaps it in.
func (c *Client) publishSnapshot(schema *Schema, params map[string]Value) error {
	rawStatus, err := c.transport.GetStatus(c.ctx)
	if err != nil {
		return err
	}
	status := decodeStatus(rawStatus, schema.Generation())

	snap := newSnapshot(schema.Generation(), c.revision.Add(1), time.Now(), params, status)
	c.cache.Update(stateCacheKey, snap)
	return nil
}

func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
