package replica

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Member is a named database handle in the pool
type Member struct {
	Name string
	DB   *sql.DB
}

// Pool manages a primary database and multiple read replicas
type Pool struct {
	primary  Member
	replicas []Member
	healthy  map[string]bool
	current  int // round-robin index
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewPool creates a new replica pool
func NewPool(primary Member, replicas []Member, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		primary:  primary,
		replicas: replicas,
		healthy:  make(map[string]bool),
		logger:   logger,
	}

	// Initially mark all replicas as healthy
	for _, replica := range replicas {
		p.healthy[replica.Name] = true
	}

	return p
}

// UpdateReplicas replaces the replica list.
// Existing replicas keep their health status.
func (p *Pool) UpdateReplicas(primary Member, replicas []Member) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.primary = primary

	newHealthy := make(map[string]bool)
	for _, r := range replicas {
		if status, exists := p.healthy[r.Name]; exists {
			newHealthy[r.Name] = status
		} else {
			newHealthy[r.Name] = true
		}
	}

	p.replicas = replicas
	p.healthy = newHealthy

	// Reset round-robin index if it's now out of bounds
	if len(replicas) > 0 {
		p.current = p.current % len(replicas)
	} else {
		p.current = 0
	}
}

// GetPrimary returns the primary database
func (p *Pool) GetPrimary() Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.primary
}

// GetReplica returns the next healthy replica using round-robin,
// or the primary if no replicas are healthy.
func (p *Pool) GetReplica() Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.replicas) == 0 {
		return p.primary
	}

	attempts := 0
	for attempts < len(p.replicas) {
		replica := p.replicas[p.current]
		p.current = (p.current + 1) % len(p.replicas)
		attempts++

		if p.healthy[replica.Name] {
			return replica
		}
	}

	p.logger.Warn("no healthy replicas available, using primary")
	return p.primary
}

// Members returns the primary followed by all replicas
func (p *Pool) Members() []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	members := make([]Member, 0, len(p.replicas)+1)
	members = append(members, p.primary)
	return append(members, p.replicas...)
}

// MarkUnhealthy marks a replica as unhealthy
func (p *Pool) MarkUnhealthy(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if healthy, exists := p.healthy[name]; exists {
		p.healthy[name] = false
		if healthy {
			p.logger.Warn("replica marked unhealthy", zap.String("replica", name))
		}
	}
}

// MarkHealthy marks a replica as healthy
func (p *Pool) MarkHealthy(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if healthy, exists := p.healthy[name]; exists {
		p.healthy[name] = true
		if !healthy {
			p.logger.Info("replica marked healthy", zap.String("replica", name))
		}
	}
}

// IsHealthy returns whether a replica is healthy
func (p *Pool) IsHealthy(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy[name]
}

// GetHealthyCount returns the number of healthy replicas
func (p *Pool) GetHealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, healthy := range p.healthy {
		if healthy {
			count++
		}
	}
	return count
}

// StartHealthChecks begins periodic health checks for all replicas
func (p *Pool) StartHealthChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial health check immediately
	p.CheckNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckNow(ctx)
		}
	}
}

// CheckNow pings every replica concurrently and waits for all checks
func (p *Pool) CheckNow(ctx context.Context) {
	p.mu.RLock()
	replicas := append([]Member(nil), p.replicas...)
	p.mu.RUnlock()

	var g errgroup.Group
	for _, replica := range replicas {
		g.Go(func() error {
			p.checkReplica(ctx, replica)
			return nil
		})
	}
	g.Wait()
}

func (p *Pool) checkReplica(ctx context.Context, replica Member) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := replica.DB.PingContext(ctx); err != nil {
		p.MarkUnhealthy(replica.Name)
		return
	}
	p.MarkHealthy(replica.Name)
}
