package connection

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

func sqliteConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dialect:    DialectSQLite,
		Connection: Connection{Path: filepath.Join(t.TempDir(), "provider.db")},
	}
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, ctx)
}

func (r *recordingObserver) operations() []observability.OperationContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observability.OperationContext(nil), r.ops...)
}

func TestProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	p := NewProvider(sqliteConfig(t)).WithObserver(obs)

	_, err := p.Conn(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.False(t, p.IsOpen())

	require.NoError(t, p.Open(ctx))
	assert.True(t, p.IsOpen())
	assert.NotNil(t, p.DB())
	assert.NotNil(t, p.Gorm())
	assert.Equal(t, DialectSQLite, p.Dialect())

	// a second Open keeps the existing pool
	db := p.DB()
	require.NoError(t, p.Open(ctx))
	assert.Same(t, db, p.DB())

	conn, err := p.Conn(ctx)
	require.NoError(t, err)
	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
	require.NoError(t, conn.Close())

	ops := obs.operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "connection", ops[0].Component)
	assert.Equal(t, "acquire", ops[0].Operation)
	assert.Equal(t, DialectSQLite, ops[0].SubResource)
	assert.NoError(t, ops[0].Error)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())
	assert.Nil(t, p.DB())

	_, err = p.Conn(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Open(ctx), ErrClosed)
}

func TestProviderOpenFailure(t *testing.T) {
	p := NewProvider(Config{Dialect: "oracle"})
	assert.ErrorIs(t, p.Open(context.Background()), ErrUnsupportedDialect)
	assert.False(t, p.IsOpen())

	// gorm opens the pool, then fails its first ping.
	p = NewProvider(Config{
		Dialect:    DialectSQLite,
		Connection: Connection{Path: filepath.Join(t.TempDir(), "missing", "dir", "x.db")},
	})
	assert.ErrorIs(t, p.Open(context.Background()), ErrConnectionFailed)
	assert.False(t, p.IsOpen())
}

func TestCloseGormPool(t *testing.T) {
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "half-open.db"))
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())

	closeGormPool(&gorm.DB{Config: &gorm.Config{ConnPool: sqlDB}})
	assert.ErrorContains(t, sqlDB.Ping(), "database is closed")

	assert.NotPanics(t, func() { closeGormPool(nil) })
}

func TestProviderReconnectSwapsPool(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(sqliteConfig(t))
	require.NoError(t, p.Open(ctx))
	defer p.Close()

	old := p.DB()
	require.NoError(t, p.reconnect(ctx))
	assert.NotSame(t, old, p.DB())
	assert.Error(t, old.PingContext(ctx), "replaced pool must be closed")
	require.NoError(t, p.healthCheck(ctx))
}

func TestRetryConnectionRecovers(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.HealthCheck.RetryBackoff = 10 * time.Millisecond
	p := NewProvider(cfg)
	require.NoError(t, p.Open(context.Background()))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.RetryConnection(ctx)
		close(done)
	}()

	broken := p.DB()
	require.NoError(t, broken.Close())
	p.retryChanSignal <- assert.AnError

	assert.Eventually(t, func() bool {
		db := p.DB()
		return db != nil && db != broken && db.Ping() == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestMonitorConnectionStopsOnClose(t *testing.T) {
	p := NewProvider(sqliteConfig(t))
	require.NoError(t, p.Open(context.Background()))

	done := make(chan struct{})
	go func() {
		p.MonitorConnection(context.Background())
		close(done)
	}()

	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MonitorConnection did not stop after Close")
	}
}

func TestFXModule(t *testing.T) {
	var p *Provider
	app := fxtest.New(t,
		FXModule,
		fx.Supply(sqliteConfig(t)),
		fx.Populate(&p),
	)
	app.RequireStart()
	assert.True(t, p.IsOpen())
	app.RequireStop()
	assert.False(t, p.IsOpen())
}
