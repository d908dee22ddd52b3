package store

import (
	"main/internal/model"

	"gorm.io/gorm"
)

// Store bundles the gorm-backed repositories sharing one connection pool.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm pool.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the pipeline tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&model.RawRecord{},
		&model.UnifiedRecord{},
		&model.Checkpoint{},
		&model.SchemaDrift{},
		&model.Run{},
		&model.RunSource{},
	)
}

// Checkpoints returns the checkpoint repository.
func (s *Store) Checkpoints() *CheckpointStore {
	return &CheckpointStore{db: s.db}
}

// Loader returns the batch loader.
func (s *Store) Loader() *Loader {
	return &Loader{db: s.db}
}

// Runs returns the run repository.
func (s *Store) Runs() *RunStore {
	return &RunStore{db: s.db}
}

// Drifts returns the drift log.
func (s *Store) Drifts() *DriftLog {
	return &DriftLog{db: s.db}
}
