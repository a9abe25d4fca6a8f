package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/agentrund/internal/logging"
)

// Watcher reloads the merged Catalog whenever the user's providers.toml or
// models.toml overlay changes, grounded on telnet2-opencode's
// internal/vcs.Watcher (same fsnotify.Watcher-plus-stop-channel shape,
// applied here to the config directory instead of .git/HEAD).
type Watcher struct {
	watcher *fsnotify.Watcher
	paths   *Paths
	onReload func(*Catalog)

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
}

// NewWatcher constructs a Watcher on paths.Config. It does not start
// watching until Start is called.
func NewWatcher(paths *Paths, onReload func(*Catalog)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(paths.Config); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		paths:    paths,
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	providerCatalog := filepath.Clean(w.paths.ProviderCatalogPath())
	modelCatalog := filepath.Clean(w.paths.ModelCatalogPath())

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Clean(ev.Name)
			if name != providerCatalog && name != modelCatalog {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	catalog, err := Load(w.paths)
	if err != nil {
		logging.Warn().Err(err).Msg("config: reload failed, keeping previous catalog")
		return
	}
	logging.Info().Msg("config: catalog overlay reloaded")
	w.onReload(catalog)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if started {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}
