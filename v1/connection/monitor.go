package connection

import (
	"context"
	"fmt"
	"time"
)

// MonitorConnection pings the database every HealthCheck.Interval and signals
// RetryConnection when a ping fails. It returns when ctx is done or the provider
// is closed.
func (p *Provider) MonitorConnection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthCheck.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownSignal:
			if p.logger != nil {
				p.logger.Debug("Stopping MonitorConnection loop due to shutdown signal", nil, nil)
			}
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.healthCheck(ctx); err != nil {
				if p.logger != nil {
					p.logger.Warn("Database health check failed", err, map[string]interface{}{"dialect": p.cfg.Dialect})
				}
				select {
				case p.retryChanSignal <- err:
				default:
				}
			}
		}
	}
}

// RetryConnection waits for a signal from MonitorConnection and then reconnects,
// retrying every HealthCheck.RetryBackoff until it succeeds. The new pool replaces
// the old one atomically; the old pool is closed afterwards.
func (p *Provider) RetryConnection(ctx context.Context) {
outerLoop:
	for {
		select {
		case <-p.shutdownSignal:
			if p.logger != nil {
				p.logger.Debug("Stopping RetryConnection loop due to shutdown signal", nil, nil)
			}
			return
		case <-ctx.Done():
			return
		case <-p.retryChanSignal:
		innerLoop:
			for {
				select {
				case <-p.shutdownSignal:
					return
				case <-ctx.Done():
					return
				default:
					if err := p.reconnect(ctx); err != nil {
						p.logError("Database reconnection failed", err)
						select {
						case <-time.After(p.cfg.HealthCheck.RetryBackoff):
						case <-p.shutdownSignal:
							return
						case <-ctx.Done():
							return
						}
						continue innerLoop
					}
					p.logInfo("Successfully reconnected to database")
					continue outerLoop
				}
			}
		}
	}
}

func (p *Provider) reconnect(ctx context.Context) error {
	h, err := connect(ctx, p.cfg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = h.db.Close()
		return ErrClosed
	}
	old := p.current.Swap(h)
	p.mu.Unlock()

	if old != nil {
		_ = old.db.Close()
	}
	return nil
}

// healthCheck pings a snapshot of the current pool without holding any lock.
func (p *Provider) healthCheck(ctx context.Context) error {
	db := p.DB()
	if db == nil {
		return fmt.Errorf("database client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheck.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed during health check: %w", err)
	}
	return nil
}
