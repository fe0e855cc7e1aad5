package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Marker reports offline while a marker file exists and online otherwise.
// Creating or removing the file flips the state, which lets scripts and
// operators force the engine offline without touching the network.
type Marker struct {
	hub
	path   string
	logger *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewMarker creates a marker observer for path. The state is read from disk
// immediately; Start begins watching for changes.
func NewMarker(path string, logger *log.Logger) (*Marker, error) {
	if path == "" {
		return nil, fmt.Errorf("marker path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve marker path: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	m := &Marker{path: abs, logger: logger}
	m.current = m.read()
	return m, nil
}

// Path returns the absolute marker location.
func (m *Marker) Path() string {
	return m.path
}

// Fetch implements Observer.
func (m *Marker) Fetch(context.Context) (Event, error) {
	return m.snapshot(), nil
}

// Subscribe implements Observer.
func (m *Marker) Subscribe(fn func(Event)) func() {
	return m.subscribe(fn)
}

func (m *Marker) read() Event {
	_, err := os.Stat(m.path)
	return Known(os.IsNotExist(err))
}

// Start watches the marker's directory for the file appearing or vanishing.
func (m *Marker) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("marker watcher already running")
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	m.watcher = watcher
	m.done = make(chan struct{})
	m.running = true

	// The file may have changed between NewMarker and the watch being added.
	m.publish(m.read())

	m.wg.Add(1)
	go m.processEvents()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (m *Marker) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.done)
	if err := m.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	m.wg.Wait()
	return nil
}

func (m *Marker) processEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			e := m.read()
			if m.publish(e) {
				m.logger.Printf("Connectivity forced %s by %s", e, filepath.Base(m.path))
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Printf("Watcher error: %v", err)
		}
	}
}
