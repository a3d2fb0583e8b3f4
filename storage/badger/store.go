package badger

// Store bundles the repositories sharing one backend.
type Store struct {
	backend  *Backend
	Policies *PolicyRepository
	Chunks   *ChunkRepository
	History  *HistoryRepository
	Runs     *RunRepository
}

// NewStore opens an on-disk store at path, creating the directory if needed.
func NewStore(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend), nil
}

func newStore(backend *Backend) *Store {
	return &Store{
		backend:  backend,
		Policies: NewPolicyRepository(backend),
		Chunks:   NewChunkRepository(backend),
		History:  NewHistoryRepository(backend),
		Runs:     NewRunRepository(backend),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// Close closes the backend. Repositories must not be used afterwards.
func (s *Store) Close() error {
	return s.backend.Close()
}

