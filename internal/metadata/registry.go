package metadata

import "sync"

type Registry struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
	}
}

// GetCollection returns the collection with the given name, or nil.
func (r *Registry) GetCollection(name string) *Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collections[name]
}

// AllCollections returns all registered collections.
func (r *Registry) AllCollections() []*Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	collections := make([]*Collection, 0, len(r.collections))
	for _, c := range r.collections {
		collections = append(collections, c)
	}
	return collections
}

// FindActionByEndpoint resolves the smart action a request targets on
// collectionName, or nil when the collection or action is unknown.
func (r *Registry) FindActionByEndpoint(collectionName, endpoint, httpMethod string) *Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.collections[collectionName]
	if c == nil {
		return nil
	}
	for i := range c.Actions {
		if c.Actions[i].MatchesEndpoint(endpoint, httpMethod) {
			return &c.Actions[i]
		}
	}
	return nil
}

// Load replaces all collections in the registry.
func (r *Registry) Load(collections []*Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collections = make(map[string]*Collection, len(collections))
	for _, c := range collections {
		r.collections[c.Name] = c
	}
}
