package store

import (
	"errors"
	"time"

	"github.com/inferd/inferd/pkg/models"
)

var (
	ErrWorkloadNotFound    = errors.New("workload not found")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Store defines the interface for data persistence.
// SQLite, PostgreSQL and the in-memory store implement this interface.
type Store interface {
	// Workload operations
	CreateWorkload(w *models.Workload) error
	GetWorkload(id int) (*models.Workload, error)
	GetAllWorkloads() []*models.Workload
	GetWorkloadsByStatus(status models.WorkloadStatus) ([]*models.Workload, error)
	UpdateWorkload(w *models.Workload) error
	UpdateWorkloadStatus(id int, status models.WorkloadStatus, errorMsg string) error
	UpdateWorkloadPort(id int, port int) error
	DeleteWorkload(id int) error

	// Utilization samples for charts and report export
	AddSample(s *models.UtilizationSample) error
	RecentSamples(limit int) ([]models.UtilizationSample, error)
	PruneSamples(olderThan time.Duration) error

	// Lifecycle
	Close() error
	HealthCheck() error
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite", "postgres" or "memory"
	DSN  string // connection string (postgres)
	Path string // database file (sqlite)

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates a store based on configuration
func New(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgresStore(config)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "inferd.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}
