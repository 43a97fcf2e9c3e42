package renderloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one worker is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// Pool defaults applied by PoolConfig when a field is zero.
const (
	DefaultAcquireTimeout     = 30 * time.Second
	DefaultStartTimeout       = 30 * time.Second
	DefaultPingTimeout        = 5 * time.Second
	DefaultRespawnBackoff     = 500 * time.Millisecond
	DefaultRespawnMaxBackoff  = 30 * time.Second
	DefaultMaxRespawnAttempts = 5
)

// ErrPoolStartup is returned by NewPool when fewer than MinSize processes start.
var ErrPoolStartup = errors.New("worker pool failed to start")

// PoolConfig configures a Pool. Zero values use the defaults above.
type PoolConfig struct {
	// Size is the number of handles kept live. 0 resolves from GOMAXPROCS.
	Size int
	// MinSize is the startup floor; construction fails below it. 0 means Size.
	MinSize int
	// RecycleAfter retires a handle after this many uses. 0 disables.
	RecycleAfter int
	// HealthInterval pings a handle on acquire when its last check is older.
	// 0 disables.
	HealthInterval time.Duration
	PingTimeout    time.Duration
	// AcquireTimeout is used when Acquire is called with a zero timeout.
	AcquireTimeout time.Duration
	// StartTimeout bounds each process start, including its first ping.
	StartTimeout time.Duration
	// Respawn backoff doubles from RespawnBackoff up to RespawnMaxBackoff.
	// After MaxRespawnAttempts failed starts the pool reports degraded
	// capacity but keeps retrying until it recovers or closes.
	RespawnBackoff     time.Duration
	RespawnMaxBackoff  time.Duration
	MaxRespawnAttempts int

	Logger *slog.Logger
}

func (c PoolConfig) withDefaults() (PoolConfig, error) {
	if c.Size < 0 || c.MinSize < 0 || c.RecycleAfter < 0 || c.MaxRespawnAttempts < 0 {
		return c, fmt.Errorf("%w: negative size or count", ErrInvalidPoolConfig)
	}
	if c.Size == 0 {
		c.Size = ResolvePoolSize(0)
	}
	if c.MinSize == 0 {
		c.MinSize = c.Size
	}
	if c.MinSize > c.Size {
		return c, fmt.Errorf("%w: minimum %d exceeds size %d", ErrInvalidPoolConfig, c.MinSize, c.Size)
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.RespawnBackoff <= 0 {
		c.RespawnBackoff = DefaultRespawnBackoff
	}
	if c.RespawnMaxBackoff < c.RespawnBackoff {
		c.RespawnMaxBackoff = max(DefaultRespawnMaxBackoff, c.RespawnBackoff)
	}
	if c.MaxRespawnAttempts == 0 {
		c.MaxRespawnAttempts = DefaultMaxRespawnAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// PoolStats is a point-in-time snapshot of pool state.
type PoolStats struct {
	Size      int  `json:"size"`
	Live      int  `json:"live"`
	Idle      int  `json:"idle"`
	InUse     int  `json:"in_use"`
	Starting  int  `json:"starting"`
	Degraded  bool `json:"degraded"`
	Recycled  int  `json:"recycled"`
	Exhausted int  `json:"exhausted"`
}

// Pool hands out exclusive access to a fixed number of rendering processes.
//
// Idle handles travel through a buffered channel whose capacity equals the
// pool size, so a send never blocks. Waiting acquirers are served in the
// order they started receiving. Drained handles are removed from the live set
// before their replacement is started; a replacement becomes available only
// after it passes a health check.
type Pool struct {
	cfg     PoolConfig
	factory ProcessFactory
	logger  *slog.Logger

	idle chan *WorkerHandle
	done chan struct{}

	// life is canceled by Close to abort in-flight process starts.
	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	handles   map[string]*WorkerHandle // live handles by id
	starting  int                      // replacements being started
	failing   int                      // respawners past MaxRespawnAttempts
	closed    bool
	recycled  int
	exhausted int
}

// NewPool starts cfg.Size processes concurrently and returns once they have
// all been attempted. It fails if fewer than cfg.MinSize started; handles that
// failed above the floor are respawned in the background.
func NewPool(ctx context.Context, factory ProcessFactory, cfg PoolConfig) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil process factory", ErrInvalidPoolConfig)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	life, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		logger:  cfg.Logger,
		idle:    make(chan *WorkerHandle, cfg.Size),
		done:    make(chan struct{}),
		life:    life,
		cancel:  cancel,
		handles: make(map[string]*WorkerHandle, cfg.Size),
	}

	started := make([]*WorkerHandle, cfg.Size)
	startErrs := make([]error, cfg.Size)
	var wg sync.WaitGroup
	for i := range cfg.Size {
		wg.Go(func() {
			started[i], startErrs[i] = p.start(ctx)
		})
	}
	wg.Wait()

	live := 0
	for _, h := range started {
		if h != nil {
			live++
		}
	}
	if live < cfg.MinSize {
		cancel()
		for _, h := range started {
			if h != nil {
				_ = h.proc.Close()
			}
		}
		return nil, fmt.Errorf("%w: %d of %d workers started (minimum %d): %w",
			ErrPoolStartup, live, cfg.Size, cfg.MinSize, errors.Join(startErrs...))
	}

	for _, h := range started {
		if h != nil {
			p.handles[h.id] = h
			p.idle <- h
		}
	}
	missing := cfg.Size - live
	if missing > 0 {
		p.logger.Warn("worker pool started below size",
			"live", live, "size", cfg.Size, "error", errors.Join(startErrs...))
		p.starting = missing
		for range missing {
			p.wg.Add(1)
			go p.respawn()
		}
	}
	p.logger.Debug("worker pool started", "size", cfg.Size, "live", live)
	return p, nil
}

// Acquire blocks until a handle is idle, the timeout elapses, ctx is done, or
// the pool closes. A zero timeout uses PoolConfig.AcquireTimeout.
//
// Errors: ErrPoolExhausted on timeout, ErrDegradedCapacity when the pool could
// not restore its capacity, ErrPoolClosed, or the context's error.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*WorkerHandle, error) {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return nil, ErrPoolClosed
	case p.failing > 0 && len(p.handles) == 0:
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: no live workers", ErrDegradedCapacity)
	}
	p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case h := <-p.idle:
			if err := p.checkout(h); err != nil {
				return nil, err
			}
			err := p.healthy(ctx, h, deadline)
			if err == nil {
				return h, nil
			}
			if ctx.Err() != nil {
				p.putBack(h)
				return nil, ctx.Err()
			}
			p.drain(h, "health check failed")
			if !time.Now().Before(deadline) {
				return nil, p.timedOut(timeout)
			}
		case <-p.done:
			return nil, ErrPoolClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, p.timedOut(timeout)
		}
	}
}

// timedOut counts an expired acquire and reports it as exhausted, or as
// degraded when the pool is failing to restore capacity.
func (p *Pool) timedOut(timeout time.Duration) error {
	p.mu.Lock()
	p.exhausted++
	degraded := p.failing > 0
	live, starting := len(p.handles), p.starting
	p.mu.Unlock()
	if degraded {
		return fmt.Errorf("%w: %d live, %d restarting after %s",
			ErrDegradedCapacity, live, starting, timeout)
	}
	return fmt.Errorf("%w: waited %s", ErrPoolExhausted, timeout)
}

// Release returns a checked-out handle. A faulted outcome, or a handle that
// reached RecycleAfter uses, is drained and replaced instead of reused.
func (p *Pool) Release(h *WorkerHandle, outcome Outcome) error {
	if h == nil {
		return ErrHandleNotInUse
	}

	p.mu.Lock()
	if cur, ok := p.handles[h.id]; !ok || cur != h || h.State() != StateInUse {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandleNotInUse, h.id)
	}

	if p.closed {
		delete(p.handles, h.id)
		h.setState(StateDead)
		p.mu.Unlock()
		p.closeProcess(h, "pool closed")
		return nil
	}

	reason := ""
	switch {
	case outcome == OutcomeFaulted:
		reason = "faulted"
	case p.cfg.RecycleAfter > 0 && h.Uses() >= p.cfg.RecycleAfter:
		reason = "use threshold reached"
	}
	if reason != "" {
		p.drainLocked(h, reason)
		p.mu.Unlock()
		return nil
	}

	h.setState(StateIdle)
	// Capacity equals the number of live handles, so this never blocks.
	p.idle <- h
	p.mu.Unlock()
	return nil
}

// With runs fn with an exclusively held handle and always releases it.
// The release is faulted when fn fails, panics, or ctx is done; a panic is
// returned as ErrWorkerFaulted.
func (p *Pool) With(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, h *WorkerHandle) error) (err error) {
	h, err := p.Acquire(ctx, timeout)
	if err != nil {
		return err
	}

	outcome := OutcomeFaulted
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrWorkerFaulted, r)
			outcome = OutcomeFaulted
		}
		if relErr := p.Release(h, outcome); relErr != nil && err == nil {
			err = relErr
		}
	}()

	err = fn(ctx, h)
	if err == nil && ctx.Err() == nil {
		outcome = OutcomeOK
	}
	return err
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		Size:      p.cfg.Size,
		Live:      len(p.handles),
		Idle:      len(p.idle),
		Starting:  p.starting,
		Degraded:  p.failing > 0,
		Recycled:  p.recycled,
		Exhausted: p.exhausted,
	}
	for _, h := range p.handles {
		if h.State() == StateInUse {
			s.InUse++
		}
	}
	return s
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.cfg.Size
}

// Close stops the pool. Idle processes are closed immediately, handles still
// checked out are closed when released, and pending replacements are
// abandoned. Close is idempotent and returns the joined close errors.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.cancel()

	var idle []*WorkerHandle
drain:
	for {
		select {
		case h := <-p.idle:
			delete(p.handles, h.id)
			h.setState(StateDead)
			idle = append(idle, h)
		default:
			break drain
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, h := range idle {
		if err := h.proc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing worker %s: %w", h.id, err))
		}
	}
	p.wg.Wait()
	return errors.Join(errs...)
}

// checkout marks a handle taken from the idle channel as InUse.
func (p *Pool) checkout(h *WorkerHandle) error {
	p.mu.Lock()
	if p.closed {
		delete(p.handles, h.id)
		h.setState(StateDead)
		p.mu.Unlock()
		p.closeProcess(h, "pool closed")
		return ErrPoolClosed
	}
	h.checkout()
	p.mu.Unlock()
	return nil
}

// healthy pings a checked-out handle when its last check is due. The ping
// ends at PingTimeout or at the acquire deadline, whichever comes first.
func (p *Pool) healthy(ctx context.Context, h *WorkerHandle, deadline time.Time) error {
	now := time.Now()
	if !h.checkDue(p.cfg.HealthInterval, now) {
		return nil
	}
	pctx, cancel := context.WithDeadline(ctx, earliest(deadline, now.Add(p.cfg.PingTimeout)))
	defer cancel()
	if err := h.proc.Ping(pctx); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("worker failed health check", "handle_id", h.id, "error", err)
		}
		return err
	}
	h.markChecked(time.Now())
	return nil
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// putBack returns a handle whose check was interrupted by the caller. The
// use is not counted.
func (p *Pool) putBack(h *WorkerHandle) {
	p.mu.Lock()
	if _, ok := p.handles[h.id]; !ok {
		p.mu.Unlock()
		return
	}
	if p.closed {
		delete(p.handles, h.id)
		p.mu.Unlock()
		p.closeProcess(h, "pool closed")
		return
	}
	h.uncheckout()
	p.idle <- h
	p.mu.Unlock()
}

// drain recycles a checked-out handle.
func (p *Pool) drain(h *WorkerHandle, reason string) {
	p.mu.Lock()
	if _, ok := p.handles[h.id]; !ok {
		p.mu.Unlock()
		return
	}
	if p.closed {
		delete(p.handles, h.id)
		p.mu.Unlock()
		p.closeProcess(h, "pool closed")
		return
	}
	p.drainLocked(h, reason)
	p.mu.Unlock()
}

// drainLocked removes h from the live set and starts its replacement.
// Caller must hold p.mu.
func (p *Pool) drainLocked(h *WorkerHandle, reason string) {
	delete(p.handles, h.id)
	h.setState(StateDraining)
	p.recycled++
	p.starting++
	p.logger.Debug("recycling worker", "handle_id", h.id, "uses", h.Uses(), "reason", reason)

	p.wg.Add(1)
	go func() {
		p.closeProcess(h, reason)
		p.respawn()
	}()
}

// closeProcess tears down a handle's process and marks it dead.
func (p *Pool) closeProcess(h *WorkerHandle, reason string) {
	if err := h.proc.Close(); err != nil {
		p.logger.Warn("closing worker failed", "handle_id", h.id, "reason", reason, "error", err)
	}
	h.setState(StateDead)
}

// respawn starts one replacement, retrying with doubling backoff until it
// succeeds or the pool closes. Caller must have counted it in p.starting and
// added it to p.wg.
func (p *Pool) respawn() {
	defer p.wg.Done()

	backoff := p.cfg.RespawnBackoff
	counted := false
	defer func() {
		if counted {
			p.mu.Lock()
			p.failing--
			p.mu.Unlock()
		}
	}()

	for attempt := 1; ; attempt++ {
		h, err := p.start(p.life)
		if err == nil {
			p.insert(h)
			return
		}
		if p.life.Err() != nil {
			p.mu.Lock()
			p.starting--
			p.mu.Unlock()
			return
		}

		p.logger.Warn("worker respawn failed", "attempt", attempt, "backoff", backoff, "error", err)
		if attempt == p.cfg.MaxRespawnAttempts && !counted {
			counted = true
			p.mu.Lock()
			p.failing++
			live := len(p.handles)
			p.mu.Unlock()
			p.logger.Error("worker pool degraded", "live", live, "size", p.cfg.Size, "attempts", attempt)
		}

		select {
		case <-p.done:
			p.mu.Lock()
			p.starting--
			p.mu.Unlock()
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.cfg.RespawnMaxBackoff)
	}
}

// insert makes a freshly started handle available.
func (p *Pool) insert(h *WorkerHandle) {
	p.mu.Lock()
	p.starting--
	if p.closed {
		p.mu.Unlock()
		p.closeProcess(h, "pool closed")
		return
	}
	p.handles[h.id] = h
	p.idle <- h
	p.mu.Unlock()
	p.logger.Debug("worker ready", "handle_id", h.id)
}

// start launches a process and requires it to answer a ping before use.
func (p *Pool) start(ctx context.Context) (*WorkerHandle, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StartTimeout)
	defer cancel()

	proc, err := p.factory(sctx)
	if err != nil {
		return nil, err
	}
	if err := proc.Ping(sctx); err != nil {
		_ = proc.Close()
		return nil, fmt.Errorf("%w: initial health check: %v", ErrWorkerFaulted, err)
	}
	return newWorkerHandle(uuid.New().String(), proc), nil
}

// ResolvePoolSize determines the optimal pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
// Exported for use by servers and CLIs.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
