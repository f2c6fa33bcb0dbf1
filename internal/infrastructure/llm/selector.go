package llm

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"TrendsScanner/internal/ports"
)

// Selection strategy names accepted by Resolve.
const (
	StrategyRandom     = "random"
	StrategyRoundRobin = "round-robin"
	StrategyFixed      = "fixed"
)

// SelectorFactory builds a selector over a non-empty model list.
type SelectorFactory func(models []string) ports.ModelSelector

// SelectorRegistry maps strategy names to selector factories.
type SelectorRegistry struct {
	factories map[string]SelectorFactory
}

// NewSelectorRegistry returns a registry with the built-in strategies.
func NewSelectorRegistry() *SelectorRegistry {
	r := &SelectorRegistry{factories: map[string]SelectorFactory{}}
	r.Register(StrategyRandom, func(models []string) ports.ModelSelector { return randomSelector(models) })
	r.Register(StrategyRoundRobin, func(models []string) ports.ModelSelector { return &roundRobinSelector{models: models} })
	r.Register(StrategyFixed, func(models []string) ports.ModelSelector { return fixedSelector(models[0]) })
	return r
}

// Register adds or replaces a strategy.
func (r *SelectorRegistry) Register(name string, factory SelectorFactory) {
	if r.factories == nil {
		r.factories = map[string]SelectorFactory{}
	}
	r.factories[name] = factory
}

// Resolve builds the named selector over models.
func (r *SelectorRegistry) Resolve(name string, models []string) (ports.ModelSelector, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("model list is empty")
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("model strategy %s is not registered", name)
	}
	return factory(append([]string(nil), models...)), nil
}

type randomSelector []string

func (s randomSelector) Next() string {
	return s[rand.IntN(len(s))]
}

type roundRobinSelector struct {
	models []string
	next   atomic.Uint64
}

func (s *roundRobinSelector) Next() string {
	n := s.next.Add(1) - 1
	return s.models[n%uint64(len(s.models))]
}

type fixedSelector string

func (s fixedSelector) Next() string {
	return string(s)
}
