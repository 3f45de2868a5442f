package analytics

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/scribedocs/scribe/pkg/observability"
)

// builtinCatalog maps well-known event names to their category. Names not
// listed here (or in the override file) fall back to CategorySystem so
// forward-compatible events are never dropped.
var builtinCatalog = map[string]Category{
	EventSessionStart:      CategoryWorkflow,
	EventSessionEnd:        CategoryWorkflow,
	EventCodeInput:         CategoryWorkflow,
	EventDocGeneration:     CategoryWorkflow,
	EventDocExport:         CategoryWorkflow,
	EventSignupCompleted:   CategoryBusiness,
	EventCheckoutCompleted: CategoryBusiness,
	EventTierChange:        CategoryBusiness,
	EventFeatureUsed:       CategoryUsage,
	EventError:             CategorySystem,
}

// Catalog resolves event names to categories. Product teams can register
// additional names through a YAML override file that is hot-reloaded on
// change, so a new event kind does not require a deploy.
type Catalog struct {
	path    string
	logger  *observability.Logger
	mu      sync.RWMutex
	entries map[string]Category
	watcher *fsnotify.Watcher
}

type catalogFile struct {
	Events map[string]string `yaml:"events"`
}

// NewCatalog returns a catalog backed only by the built-in mapping.
func NewCatalog() *Catalog {
	return &Catalog{entries: builtinCatalog}
}

// NewCatalogFromFile returns a catalog with the override file applied on
// top of the built-ins, and performs the initial load.
func NewCatalogFromFile(path string, logger *observability.Logger) (*Catalog, error) {
	c := &Catalog{path: path, logger: logger}
	entries, err := c.load()
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// CategoryFor resolves an event name. The second return reports whether the
// name is registered; unregistered names resolve to CategorySystem.
func (c *Catalog) CategoryFor(name string) (Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cat, ok := c.entries[name]; ok {
		return cat, true
	}
	return CategorySystem, false
}

// Watch starts a background goroutine that hot-reloads the override file on
// changes. Call the returned stop function to clean up. A parse failure
// keeps the previous catalog in place.
func (c *Catalog) Watch() (stop func(), err error) {
	if c.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog watcher: %w", err)
	}
	if err := w.Add(c.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalog watcher add %s: %w", c.path, err)
	}
	c.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					entries, err := c.load()
					if err != nil {
						if c.logger != nil {
							c.logger.WithError(err).Warn("event catalog reload failed, keeping previous catalog")
						}
						continue
					}
					c.mu.Lock()
					c.entries = entries
					c.mu.Unlock()
					if c.logger != nil {
						c.logger.WithField("entries", len(entries)).Info("event catalog reloaded")
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the override file.
func (c *Catalog) Reload() error {
	entries, err := c.load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

func (c *Catalog) load() (map[string]Category, error) {
	entries := make(map[string]Category, len(builtinCatalog))
	for name, cat := range builtinCatalog {
		entries[name] = cat
	}
	if c.path == "" {
		return entries, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read event catalog %s: %w", c.path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse event catalog %s: %w", c.path, err)
	}
	for name, cat := range file.Events {
		switch Category(cat) {
		case CategoryWorkflow, CategoryBusiness, CategoryUsage, CategorySystem:
			entries[name] = Category(cat)
		default:
			return nil, fmt.Errorf("event catalog %s: unknown category %q for event %q", c.path, cat, name)
		}
	}
	return entries, nil
}
