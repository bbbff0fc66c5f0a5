package overlay

import "sync"

// MemoryTarget keeps the latest region per key in memory. The dashboard uses
// it to mirror what pages are showing, and tests use it to inspect output.
type MemoryTarget struct {
	mu      sync.RWMutex
	regions map[string]Region
	updates int
	removes int
}

// NewMemoryTarget creates an empty target.
func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{regions: make(map[string]Region)}
}

// Update implements Target.
func (m *MemoryTarget) Update(region Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[region.Key] = region
	m.updates++
	return nil
}

// Remove implements Target.
func (m *MemoryTarget) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, key)
	m.removes++
	return nil
}

// Region returns the current region for key.
func (m *MemoryTarget) Region(key string) (Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[key]
	return r, ok
}

// Regions returns a snapshot of every region.
func (m *MemoryTarget) Regions() []Region {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	return out
}

// Counts returns how many updates and removes were received.
func (m *MemoryTarget) Counts() (updates, removes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates, m.removes
}

// Tee fans every call out to several targets and returns the first error.
type Tee []Target

// Update implements Target.
func (t Tee) Update(region Region) error {
	var first error
	for _, target := range t {
		if err := target.Update(region); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Remove implements Target.
func (t Tee) Remove(key string) error {
	var first error
	for _, target := range t {
		if err := target.Remove(key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
