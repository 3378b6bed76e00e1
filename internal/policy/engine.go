package policy

import (
	"fmt"
	"slices"
)

const (
	mandatoryMissingFormat = "Mandatory Control %s not configured"
	failedToComplyPrefix   = "Failed to comply with control "
)

// GroupedControls maps a control name to the values configured for a card,
// in insertion order.
type GroupedControls map[string][]string

// Has reports whether at least one value is configured for name.
func (g GroupedControls) Has(name string) bool {
	return len(g[name]) > 0
}

// Names returns the configured control names in ascending order.
func (g GroupedControls) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rejection describes why a transaction did not pass evaluation.
type Rejection struct {
	Message       string   `json:"message"`
	FailedControl string   `json:"failedControl,omitempty"`
	Alternatives  []string `json:"alternatives,omitempty"`
}

// Decision is the outcome of evaluating a transaction. Rejection is set iff
// Allowed is false.
type Decision struct {
	Allowed   bool
	Rejection *Rejection
}

func allow() Decision {
	return Decision{Allowed: true}
}

func reject(r Rejection) Decision {
	return Decision{Rejection: &r}
}

// Engine evaluates transactions against a card's configured controls.
type Engine struct {
	registry *Registry
}

// NewEngine creates an engine bound to registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Registry returns the registry the engine evaluates with.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Evaluate runs the mandatory check, then each configured control in name
// order, stopping at the first failure. A stored control the registry does
// not define is returned as ErrUnknownControl.
func (e *Engine) Evaluate(txn TransactionData, controls GroupedControls) (Decision, error) {
	if entry, missing := e.registry.Mandatory().FirstMissing(controls.Has); missing {
		r := Rejection{
			Message:       fmt.Sprintf(mandatoryMissingFormat, entry),
			FailedControl: entry.String(),
		}
		if entry.Group {
			r.Alternatives = slices.Clone(entry.Names)
		}
		return reject(r), nil
	}

	for _, name := range controls.Names() {
		proc, err := e.registry.Processor(name)
		if err != nil {
			return Decision{}, err
		}
		if !anyPasses(proc, controls[name], txn) {
			return reject(Rejection{
				Message:       failedToComplyPrefix + name,
				FailedControl: name,
			}), nil
		}
	}

	return allow(), nil
}

func anyPasses(p Processor, values []string, txn TransactionData) bool {
	for _, v := range values {
		if p.Evaluate(v, txn) {
			return true
		}
	}
	return false
}
