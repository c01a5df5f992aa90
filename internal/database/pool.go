package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPoolClosed      = errors.New("database: pool is closed")
	ErrTxAlreadyOpen   = errors.New("database: transaction already open on connection")
	ErrNoOpenTx        = errors.New("database: no open transaction on connection")
	ErrConnReleased    = errors.New("database: connection already released")
	defaultPingTimeout = time.Second
)

// PoolObserver receives one call per successful Acquire.
type PoolObserver interface {
	ObserveAcquire(wait time.Duration, spilled bool)
}

type PoolOptions struct {
	Size           int
	AcquireTimeout time.Duration
	PingTimeout    time.Duration
	Logger         *zap.Logger
	Observer       PoolObserver
}

// Pool keeps a fixed number of dedicated connections ready for request
// handlers. When all of them are busy for longer than AcquireTimeout the
// caller gets a supplementary connection instead of an error.
type Pool struct {
	db    *gorm.DB
	sqlDB *sql.DB
	idle  chan *Conn
	opts  PoolOptions
	log   *zap.Logger

	mu     sync.Mutex
	closed bool

	acquires atomic.Int64
	spilled  atomic.Int64
	recycled atomic.Int64
	dropped  atomic.Int64
}

// Conn is a single connection handed out by the pool.
type Conn struct {
	raw  *sql.Conn
	pool *Pool
	tx   *gorm.DB
}

type PoolStats struct {
	Size     int   `json:"size"`
	Idle     int   `json:"idle"`
	Acquires int64 `json:"acquires"`
	Spilled  int64 `json:"spilled"`
	Recycled int64 `json:"recycled"`
	Dropped  int64 `json:"dropped"`
}

// NewPool opens opts.Size connections up front.
func NewPool(ctx context.Context, db *gorm.DB, opts PoolOptions) (*Pool, error) {
	if opts.Size < 1 {
		opts.Size = 5
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}

	p := &Pool{
		db:    db,
		sqlDB: sqlDB,
		idle:  make(chan *Conn, opts.Size),
		opts:  opts,
		log:   opts.Logger.Named("pool"),
	}

	for i := 0; i < opts.Size; i++ {
		raw, err := sqlDB.Conn(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("database: open pooled connection %d/%d: %w", i+1, opts.Size, err)
		}
		p.idle <- &Conn{raw: raw, pool: p}
	}

	p.log.Info("Connection pool ready",
		zap.Int("size", opts.Size),
		zap.Duration("acquire_timeout", opts.AcquireTimeout))
	return p, nil
}

// Acquire returns an idle connection, waiting up to AcquireTimeout. After
// the timeout a fresh connection is opened on demand.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	p.acquires.Add(1)

	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.observe(start, false)
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	raw, err := p.sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("database: open ad hoc connection: %w", err)
	}
	p.spilled.Add(1)
	p.log.Warn("Connection pool exhausted, opened ad hoc connection",
		zap.Duration("waited", time.Since(start)))
	p.observe(start, true)
	return &Conn{raw: raw, pool: p}, nil
}

// Release hands c back. A connection with an open transaction, or one that
// fails a ping, is closed instead of being recycled. c is unusable afterwards
// and releasing it again is a no-op.
func (p *Pool) Release(c *Conn) {
	if c == nil || c.raw == nil {
		return
	}

	if c.InTransaction() {
		p.log.Warn("Connection released inside a transaction, discarding it")
		if err := c.Rollback(); err != nil {
			p.log.Debug("Rollback on release failed", zap.Error(err))
		}
		p.discard(c)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.PingTimeout)
	err := c.raw.PingContext(ctx)
	cancel()
	if err != nil {
		p.log.Warn("Connection failed liveness check, discarding it", zap.Error(err))
		p.discard(c)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.discard(c)
		return
	}
	// The idle queue gets a fresh handle so a stale c never aliases the next holder.
	select {
	case p.idle <- &Conn{raw: c.raw, pool: p}:
		c.raw = nil
		p.recycled.Add(1)
	default:
		p.discard(c)
	}
}

// WithTx runs fn inside a transaction on a pooled connection. An error or
// panic from fn rolls back, a nil return commits. The connection is released
// on every path.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := conn.Rollback(); rbErr != nil {
				p.log.Error("Rollback after panic failed", zap.Error(rbErr))
			}
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := conn.Rollback(); rbErr != nil {
			p.log.Error("Rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err = conn.Commit(); err != nil {
		return fmt.Errorf("database: commit: %w", err)
	}
	return nil
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:     p.opts.Size,
		Idle:     len(p.idle),
		Acquires: p.acquires.Load(),
		Spilled:  p.spilled.Load(),
		Recycled: p.recycled.Load(),
		Dropped:  p.dropped.Load(),
	}
}

// Close drains and closes the idle connections. Connections still checked
// out are closed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	for c := range p.idle {
		p.discard(c)
	}
}

// Ping checks the database without taking a pooled connection, so it answers
// even while every dedicated connection is checked out.
func (p *Pool) Ping(ctx context.Context) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	return p.sqlDB.PingContext(ctx)
}

// Shutdown closes the pool and then the database handle underneath it.
func (p *Pool) Shutdown() error {
	p.Close()
	return p.sqlDB.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) observe(start time.Time, spilled bool) {
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveAcquire(time.Since(start), spilled)
	}
}

// discard closes the driver connection for good rather than returning it to
// database/sql's own idle list. Errors are swallowed.
func (p *Pool) discard(c *Conn) {
	if c.raw == nil {
		return
	}
	err := c.raw.Raw(func(any) error { return driver.ErrBadConn })
	if err != nil && !errors.Is(err, driver.ErrBadConn) {
		p.log.Debug("Close connection failed", zap.Error(err))
	}
	_ = c.raw.Close()
	c.raw = nil
	p.dropped.Add(1)
}

// Session returns a gorm handle bound to this connection, outside any
// transaction. It must not be used after Release.
func (c *Conn) Session(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	s := c.pool.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	s.Statement.ConnPool = c.raw
	return s
}

// Begin opens a transaction on the connection and returns a gorm handle for it.
func (c *Conn) Begin(ctx context.Context) (*gorm.DB, error) {
	if c.raw == nil {
		return nil, ErrConnReleased
	}
	if c.tx != nil {
		return nil, ErrTxAlreadyOpen
	}
	tx := c.Session(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("database: begin: %w", tx.Error)
	}
	c.tx = tx
	return tx, nil
}

func (c *Conn) Commit() error {
	if c.tx == nil {
		return ErrNoOpenTx
	}
	err := c.tx.Commit().Error
	c.tx = nil
	return err
}

func (c *Conn) Rollback() error {
	if c.tx == nil {
		return ErrNoOpenTx
	}
	err := c.tx.Rollback().Error
	c.tx = nil
	return err
}

func (c *Conn) InTransaction() bool { return c.tx != nil }

// Ping checks that the connection is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	if c.raw == nil {
		return ErrConnReleased
	}
	return c.raw.PingContext(ctx)
}
