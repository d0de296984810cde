package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateStrategy = errors.New("duplicate strategy")
	ErrUnknownStrategy   = errors.New("unknown strategy")
)

// Factory constructs a fresh Strategy.
type Factory func() Strategy

// Info describes a registered strategy.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Lookback    int    `json:"lookback"`
}

// Registry maps case-sensitive names to strategy factories. It is filled once
// at startup and only read during analysis.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("register strategy: empty name")
	}
	if f == nil {
		return fmt.Errorf("register strategy %s: nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.factories[name] = f
	return nil
}

// Resolve builds strategies in the order requested. Repeated names are
// resolved once. The first unknown name fails the whole call.
func (r *Registry) Resolve(names []string) ([]Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		f, ok := r.factories[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, n)
		}
		seen[n] = struct{}{}
		out = append(out, f())
	}
	return out, nil
}

// Names returns all registered names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe lists every registered strategy sorted by name.
func (r *Registry) Describe() []Info {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(names))
	for _, n := range names {
		s := r.factories[n]()
		out = append(out, Info{Name: n, Description: s.Description(), Lookback: s.Lookback()})
	}
	return out
}

// Builtins returns the factories of the shipped strategies keyed by name.
func Builtins() map[string]Factory {
	return map[string]Factory{
		ADXTrendName:    func() Strategy { return NewADXTrend() },
		MACDName:        func() Strategy { return NewMACD() },
		RSIName:         func() Strategy { return NewRSI() },
		BollingerName:   func() Strategy { return NewBollinger() },
		MACrossoverName: func() Strategy { return NewMACrossover() },
		KDJName:         func() Strategy { return NewKDJ() },
	}
}

// RegisterBuiltins registers every shipped strategy on r.
func RegisterBuiltins(r *Registry) error {
	b := Builtins()
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := r.Register(n, b[n]); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry holding the builtin strategies.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		return nil, err
	}
	return r, nil
}
