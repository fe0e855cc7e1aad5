package connectivity

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// ProbeConfig holds configuration for a Probe.
type ProbeConfig struct {
	// Addr is the host:port dialed to test reachability.
	Addr string

	// Interval between checks (default: 15s)
	Interval time.Duration

	// Timeout for each dial (default: 3s)
	Timeout time.Duration

	// Logger for state changes (default: stderr logger)
	Logger *log.Logger
}

// Probe decides connectivity by dialing a TCP address on a timer.
type Probe struct {
	hub
	config *ProbeConfig
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProbe creates a probe. Start must be called to begin periodic checks.
func NewProbe(config *ProbeConfig) (*Probe, error) {
	if config == nil || config.Addr == "" {
		return nil, fmt.Errorf("probe address cannot be empty")
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	d := &net.Dialer{Timeout: config.Timeout}
	return &Probe{config: config, dial: d.DialContext}, nil
}

// Fetch implements Observer. It runs a check when the state is still unknown.
func (p *Probe) Fetch(ctx context.Context) (Event, error) {
	if e := p.snapshot(); e.IsKnown() {
		return e, nil
	}
	return p.Check(ctx), nil
}

// Subscribe implements Observer.
func (p *Probe) Subscribe(fn func(Event)) func() {
	return p.subscribe(fn)
}

// Check dials once, publishes the result and returns it. A check cut short
// by ctx publishes nothing and returns the last known state.
func (p *Probe) Check(ctx context.Context) Event {
	dialCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.config.Addr)
	if err != nil && ctx.Err() != nil {
		return p.snapshot()
	}
	e := Known(err == nil)
	if err == nil {
		_ = conn.Close()
	}
	if p.publish(e) {
		if err != nil {
			p.config.Logger.Printf("Remote %s unreachable: %v", p.config.Addr, err)
		} else {
			p.config.Logger.Printf("Remote %s reachable", p.config.Addr)
		}
	}
	return e
}

// Start begins periodic checks until Stop or ctx is cancelled.
func (p *Probe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("probe already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
	return nil
}

// Stop ends periodic checks and waits for the loop to exit.
func (p *Probe) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
