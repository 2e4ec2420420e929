package core

import (
	"fmt"
	"sort"
	"sync"
)

// LayerDefinition describes one selection layer of a project. A layer with
// a SuperSet only offers the indicators selected in that layer.
type LayerDefinition struct {
	Key      string
	Label    string
	SuperSet string
	// Order places supersets before the layers that depend on them.
	Order int
	// Validate lists the selection rules checked for this layer.
	Validate []Rule
}

var (
	registry   = make(map[string]LayerDefinition)
	registryMu sync.RWMutex
)

// Register adds a layer definition to the registry.
// Panics if the key is taken or the superset is not registered with a
// lower Order.
func Register(def LayerDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("layer already registered: %s", def.Key))
	}
	if def.SuperSet != "" {
		super, ok := registry[def.SuperSet]
		if !ok {
			panic(fmt.Sprintf("layer %s: superset %s is not registered", def.Key, def.SuperSet))
		}
		if super.Order >= def.Order {
			panic(fmt.Sprintf("layer %s: order %d must be greater than superset %s order %d",
				def.Key, def.Order, super.Key, super.Order))
		}
	}

	registry[def.Key] = def
}

// Get returns a layer definition by key.
// Returns false if not found.
func Get(key string) (LayerDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered layers, supersets first.
// Sorted by order then by key for consistent ordering.
func All() []LayerDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]LayerDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Key < result[j].Key
	})

	return result
}

// Dependents returns every layer restricted by key, directly or through
// another layer, in dependency order.
func Dependents(key string) []LayerDefinition {
	affected := map[string]bool{key: true}
	var result []LayerDefinition
	for _, def := range All() {
		if def.SuperSet != "" && affected[def.SuperSet] {
			affected[def.Key] = true
			result = append(result, def)
		}
	}
	return result
}

// LayerCount returns the number of registered layers.
func LayerCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered layers.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]LayerDefinition)
}
