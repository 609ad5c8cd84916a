// Package memory holds active layout indices in process memory only.
// Used in tests and with -store none semantics for a single run.
package memory

type LayoutStore struct {
	layouts map[string]int
}

func NewLayoutStore() *LayoutStore {
	return &LayoutStore{
		layouts: make(map[string]int),
	}
}

func (s *LayoutStore) ActiveLayout(fingerprint string) (int, bool, error) {
	idx, ok := s.layouts[fingerprint]
	return idx, ok, nil
}

func (s *LayoutStore) SetActiveLayout(fingerprint string, idx int) error {
	s.layouts[fingerprint] = idx
	return nil
}
