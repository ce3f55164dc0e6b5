package dns

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// ErrUnknownProvider is returned by NewProvider for unregistered names.
var ErrUnknownProvider = errors.New("unsupported DNS provider")

// Options carries everything a provider needs to construct itself.
type Options struct {
	Domain     string            // zone managed by the provider
	Settings   map[string]string // provider-specific settings and credentials
	HTTPClient *http.Client      // per-target client, already proxied if required
	Timeout    time.Duration     // per-call timeout for non-HTTP transports
}

// Factory is a constructor function that providers register to create themselves.
type Factory func(log logr.Logger, opts Options) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dns: provider %q already registered", name))
	}
	factories[name] = f
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider looks up the named provider in the registry and creates it.
func NewProvider(name string, log logr.Logger, opts Options) (Provider, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, name, Names())
	}
	if opts.Domain == "" {
		return nil, fmt.Errorf("dns: provider %q: missing domain", name)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Settings == nil {
		opts.Settings = map[string]string{}
	}
	return f(log, opts)
}
