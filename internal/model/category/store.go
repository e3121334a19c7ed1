package category

// Store exposes category retrieval for handlers and the chat controller.
type Store interface {
	List() []Category
	Find(key Key) (Category, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Category
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied categories.
func NewMemoryStore(items []Category) *MemoryStore {
	return &MemoryStore{items: append([]Category(nil), items...)}
}

// List returns the configured categories in display order.
func (s *MemoryStore) List() []Category {
	return append([]Category(nil), s.items...)
}

// Find looks up a category by key.
func (s *MemoryStore) Find(key Key) (Category, bool) {
	for _, item := range s.items {
		if item.Key == key {
			return item, true
		}
	}
	return Category{}, false
}
