package catalog

import (
	"sync"

	"github.com/guileen/objectql/types"
)

// Registry is a thread-safe in-memory metadata and statistics provider.
// Registered snapshots are treated as immutable: callers must not mutate an
// ObjectMetadata after handing it to Register.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*types.ObjectMetadata
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[string]*types.ObjectMetadata),
	}
}

// Register adds or replaces an object's metadata.
func (r *Registry) Register(meta *types.ObjectMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[meta.ObjectName] = meta
}

// Object implements MetadataProvider.
func (r *Registry) Object(name string) (*types.ObjectMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if meta, ok := r.objects[name]; ok {
		return meta, nil
	}
	// Tolerate casing differences between DSQL text and registration.
	for k, meta := range r.objects {
		if equalFold(k, name) {
			return meta, nil
		}
	}
	return nil, &types.MetadataError{Object: name, Detail: "unknown object"}
}

// RowCount implements StatisticsProvider.
func (r *Registry) RowCount(object string) int64 {
	meta, err := r.Object(object)
	if err != nil {
		return 0
	}
	return meta.EstimatedRowCount
}

// FieldSelectivity implements StatisticsProvider.
func (r *Registry) FieldSelectivity(object, field string) float64 {
	meta, err := r.Object(object)
	if err != nil {
		return 0
	}
	if f := meta.Field(field); f != nil {
		return f.Selectivity
	}
	return 0
}

// ObjectNames returns the registered object names.
func (r *Registry) ObjectNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	return names
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
