package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inferd/inferd/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// WAL and a busy timeout keep the single-writer connection usable while the
// sampler and the API write concurrently.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writes to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT NOT NULL,
		usecase TEXT NOT NULL,
		model TEXT NOT NULL,
		devices TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_value TEXT,
		metadata TEXT,
		status TEXT NOT NULL,
		port INTEGER DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS utilization_samples (
		ts INTEGER PRIMARY KEY,
		cpu_percent REAL NOT NULL,
		per_core TEXT,
		memory_percent REAL NOT NULL,
		memory_used INTEGER NOT NULL,
		memory_total INTEGER NOT NULL,
		gpu_percent REAL NOT NULL,
		npu_percent REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workloads_status ON workloads(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateWorkload inserts a workload and assigns its ID
func (s *SQLiteStore) CreateWorkload(w *models.Workload) error {
	devices, err := json.Marshal(w.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	metadata, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO workloads
		(task, usecase, model, devices, source_kind, source_value, metadata,
		 status, port, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.Task, w.Usecase, w.Model, string(devices), w.Source.Kind, w.Source.Value,
		string(metadata), w.Status, w.Port, w.Error, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = int(id)
	return nil
}

func (s *SQLiteStore) scanWorkload(scan func(dest ...interface{}) error) (*models.Workload, error) {
	var w models.Workload
	var devicesJSON, metadataJSON sql.NullString
	var sourceValue, errorMsg sql.NullString

	err := scan(&w.ID, &w.Task, &w.Usecase, &w.Model, &devicesJSON, &w.Source.Kind,
		&sourceValue, &metadataJSON, &w.Status, &w.Port, &errorMsg,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if devicesJSON.Valid && devicesJSON.String != "" {
		if err := json.Unmarshal([]byte(devicesJSON.String), &w.Devices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &w.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	w.Source.Value = sourceValue.String
	w.Error = errorMsg.String
	return &w, nil
}

const workloadColumns = `id, task, usecase, model, devices, source_kind, source_value,
	metadata, status, port, error, created_at, updated_at`

// GetWorkload retrieves a workload by ID
func (s *SQLiteStore) GetWorkload(id int) (*models.Workload, error) {
	row := s.db.QueryRow(`SELECT `+workloadColumns+` FROM workloads WHERE id = ?`, id)
	w, err := s.scanWorkload(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrWorkloadNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetAllWorkloads returns all workloads, newest first
func (s *SQLiteStore) GetAllWorkloads() []*models.Workload {
	rows, err := s.db.Query(`SELECT ` + workloadColumns + ` FROM workloads ORDER BY created_at DESC`)
	if err != nil {
		return []*models.Workload{}
	}
	defer rows.Close()

	var workloads []*models.Workload
	for rows.Next() {
		w, err := s.scanWorkload(rows.Scan)
		if err != nil {
			continue
		}
		workloads = append(workloads, w)
	}
	return workloads
}

// GetWorkloadsByStatus returns workloads in the given status
func (s *SQLiteStore) GetWorkloadsByStatus(status models.WorkloadStatus) ([]*models.Workload, error) {
	rows, err := s.db.Query(`SELECT `+workloadColumns+` FROM workloads WHERE status = ? ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workloads []*models.Workload
	for rows.Next() {
		w, err := s.scanWorkload(rows.Scan)
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, w)
	}
	return workloads, rows.Err()
}

// UpdateWorkload replaces all mutable fields of a workload
func (s *SQLiteStore) UpdateWorkload(w *models.Workload) error {
	devices, err := json.Marshal(w.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	metadata, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE workloads
		SET task = ?, usecase = ?, model = ?, devices = ?, source_kind = ?,
		    source_value = ?, metadata = ?, status = ?, port = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, w.Task, w.Usecase, w.Model, string(devices), w.Source.Kind, w.Source.Value,
		string(metadata), w.Status, w.Port, w.Error, time.Now(), w.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateWorkloadStatus updates only the status and error message
func (s *SQLiteStore) UpdateWorkloadStatus(id int, status models.WorkloadStatus, errorMsg string) error {
	result, err := s.db.Exec(`
		UPDATE workloads SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, errorMsg, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateWorkloadPort records the port the worker reported
func (s *SQLiteStore) UpdateWorkloadPort(id int, port int) error {
	result, err := s.db.Exec(`
		UPDATE workloads SET port = ?, updated_at = ? WHERE id = ?
	`, port, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteWorkload removes a workload
func (s *SQLiteStore) DeleteWorkload(id int) error {
	result, err := s.db.Exec(`DELETE FROM workloads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AddSample stores one utilization sample
func (s *SQLiteStore) AddSample(sample *models.UtilizationSample) error {
	perCore, err := json.Marshal(sample.PerCore)
	if err != nil {
		return fmt.Errorf("failed to marshal per_core: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO utilization_samples
		(ts, cpu_percent, per_core, memory_percent, memory_used, memory_total, gpu_percent, npu_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sample.Timestamp, sample.CPUPercent, string(perCore), sample.MemoryPercent,
		sample.MemoryUsed, sample.MemoryTotal, sample.GPUPercent, sample.NPUPercent)
	return err
}

// RecentSamples returns up to limit samples, oldest first
func (s *SQLiteStore) RecentSamples(limit int) ([]models.UtilizationSample, error) {
	rows, err := s.db.Query(`
		SELECT ts, cpu_percent, per_core, memory_percent, memory_used, memory_total, gpu_percent, npu_percent
		FROM utilization_samples ORDER BY ts DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.UtilizationSample
	for rows.Next() {
		var sample models.UtilizationSample
		var perCoreJSON sql.NullString
		if err := rows.Scan(&sample.Timestamp, &sample.CPUPercent, &perCoreJSON,
			&sample.MemoryPercent, &sample.MemoryUsed, &sample.MemoryTotal,
			&sample.GPUPercent, &sample.NPUPercent); err != nil {
			return nil, err
		}
		if perCoreJSON.Valid && perCoreJSON.String != "" && perCoreJSON.String != "null" {
			if err := json.Unmarshal([]byte(perCoreJSON.String), &sample.PerCore); err != nil {
				return nil, fmt.Errorf("failed to unmarshal per_core: %w", err)
			}
		}
		samples = append(samples, sample)
	}
	// Reverse to oldest-first for chart rendering
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, rows.Err()
}

// PruneSamples deletes samples older than the given age
func (s *SQLiteStore) PruneSamples(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	_, err := s.db.Exec(`DELETE FROM utilization_samples WHERE ts < ?`, cutoff)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrWorkloadNotFound
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
