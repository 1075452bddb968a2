package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/devops-hub/agenthub/types"
)

// DBConfig selects the SQL backend for execution persistence.
type DBConfig struct {
	// Driver is one of "sqlite", "mysql", "postgres".
	Driver string `json:"driver" yaml:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is the
	// database file path (":memory:" for an in-memory database).
	DSN string `json:"dsn" yaml:"dsn"`
}

// executionRecord is the GORM row model. Step results, context, and errors
// are stored as JSON columns so the schema stays stable as step shapes
// evolve.
type executionRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	WorkflowID       string `gorm:"index;size:128"`
	Status           string `gorm:"size:16"`
	CurrentStepIndex int
	ContextJSON      []byte `gorm:"type:blob"`
	ResultsJSON      []byte `gorm:"type:blob"`
	ErrorsJSON       []byte `gorm:"type:blob"`
	StartedAt        time.Time
	CompletedAt      *time.Time
}

func (executionRecord) TableName() string { return "workflow_executions" }

// GormExecutionStore persists execution snapshots in a SQL database.
type GormExecutionStore struct {
	db *gorm.DB
}

// OpenDB opens a GORM connection for the configured driver.
func OpenDB(cfg DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// NewGormExecutionStore migrates the execution table and returns the store.
func NewGormExecutionStore(db *gorm.DB) (*GormExecutionStore, error) {
	if err := db.AutoMigrate(&executionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormExecutionStore{db: db}, nil
}

func (s *GormExecutionStore) SaveExecution(ctx context.Context, exec *Execution) error {
	rec, err := toRecord(exec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *GormExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var rec executionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrCodeWorkflowNotFound, "execution %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

func (s *GormExecutionStore) ListExecutions(ctx context.Context, workflowID string) ([]*Execution, error) {
	q := s.db.WithContext(ctx).Order("started_at")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	var recs []executionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Execution, 0, len(recs))
	for i := range recs {
		exec, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *GormExecutionStore) DeleteExecution(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&executionRecord{}, "id = ?", id).Error
}

func (s *GormExecutionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(exec *Execution) (*executionRecord, error) {
	ctxJSON, err := json.Marshal(exec.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	resultsJSON, err := json.Marshal(exec.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	errorsJSON, err := json.Marshal(exec.Errors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal errors: %w", err)
	}
	return &executionRecord{
		ID:               exec.ID,
		WorkflowID:       exec.WorkflowID,
		Status:           string(exec.Status),
		CurrentStepIndex: exec.CurrentStepIndex,
		ContextJSON:      ctxJSON,
		ResultsJSON:      resultsJSON,
		ErrorsJSON:       errorsJSON,
		StartedAt:        exec.StartedAt,
		CompletedAt:      exec.CompletedAt,
	}, nil
}

func fromRecord(rec *executionRecord) (*Execution, error) {
	exec := &Execution{
		ID:               rec.ID,
		WorkflowID:       rec.WorkflowID,
		Status:           Status(rec.Status),
		CurrentStepIndex: rec.CurrentStepIndex,
		StartedAt:        rec.StartedAt,
		CompletedAt:      rec.CompletedAt,
	}
	if err := json.Unmarshal(rec.ContextJSON, &exec.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	if err := json.Unmarshal(rec.ResultsJSON, &exec.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if len(rec.ErrorsJSON) > 0 {
		if err := json.Unmarshal(rec.ErrorsJSON, &exec.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}
	return exec, nil
}
