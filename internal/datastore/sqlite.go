package datastore

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/transcriptor-go/internal/errors"
)

// SQLiteStore implements Interface backed by an embedded SQLite database.
type SQLiteStore struct {
	DB       *gorm.DB
	dataPath string
	debug    bool
	mu       sync.Mutex // serializes mutations; Update's read-modify-write must never interleave with Create or Delete
}

// Open sets up the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	dbPath := filepath.Join(store.dataPath, "sessions.db")

	logLevel := gormlogger.Warn
	if store.debug {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("path", dbPath).
			Build()
	}

	if err := db.AutoMigrate(&Session{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	store.DB = db
	return nil
}

// Close releases the underlying database handle.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a new session. Returns ErrAlreadyExists when the ID is taken.
func (store *SQLiteStore) Create(session *Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if session.ID == "" {
		return errors.Newf("session ID must not be empty").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	var count int64
	if err := store.DB.Model(&Session{}).Where("id = ?", session.ID).Count(&count).Error; err != nil {
		return store.dbError(err, "create")
	}
	if count > 0 {
		return ErrAlreadyExists
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = StatusQueued
	}

	if err := store.DB.Create(session).Error; err != nil {
		return store.dbError(err, "create")
	}
	return nil
}

// Get returns the session with the given ID or ErrNotFound.
func (store *SQLiteStore) Get(id string) (*Session, error) {
	var session Session
	err := store.DB.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, store.dbError(err, "get")
	}
	return &session, nil
}

// Update merges non-nil update fields into the stored session and returns
// the updated row. Returns ErrNotFound for unknown IDs.
func (store *SQLiteStore) Update(id string, update *SessionUpdate) (*Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	session, err := store.Get(id)
	if err != nil {
		return nil, err
	}

	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.ErrorMessage != nil {
		session.ErrorMessage = *update.ErrorMessage
	}
	if update.TranscriptionJobID != nil {
		session.TranscriptionJobID = *update.TranscriptionJobID
	}
	if update.AudioExtracted != nil {
		session.AudioExtracted = *update.AudioExtracted
	}
	if update.ExtractedFormat != nil {
		session.ExtractedFormat = *update.ExtractedFormat
	}
	if update.Result != nil {
		session.Result = update.Result
	}
	if update.DetectedCodes != nil {
		session.DetectedCodes = update.DetectedCodes
	}
	if update.DetectionRanAt != nil {
		session.DetectionRanAt = update.DetectionRanAt
	}
	if update.DetectionFailed != nil {
		session.DetectionFailed = *update.DetectionFailed
	}
	if update.ExpectedCodeCount != nil {
		session.ExpectedCodeCount = update.ExpectedCodeCount
	}
	session.UpdatedAt = time.Now()

	if err := store.DB.Save(session).Error; err != nil {
		return nil, store.dbError(err, "update")
	}
	return session, nil
}

// List returns sessions newest first, optionally filtered by status and
// capped to a limit.
func (store *SQLiteStore) List(filter *ListFilter) ([]Session, error) {
	query := store.DB.Model(&Session{}).Order("created_at DESC")
	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var sessions []Session
	if err := query.Find(&sessions).Error; err != nil {
		return nil, store.dbError(err, "list")
	}
	return sessions, nil
}

// Delete removes the session with the given ID. Returns false when no such
// session exists. Holding the store lock here keeps a delete from landing
// between Update's read and its save, which would re-insert the row.
func (store *SQLiteStore) Delete(id string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	result := store.DB.Where("id = ?", id).Delete(&Session{})
	if result.Error != nil {
		return false, store.dbError(result.Error, "delete")
	}
	return result.RowsAffected > 0, nil
}

// Summary aggregates session counts per status along with detection totals.
func (store *SQLiteStore) Summary() (*SessionSummary, error) {
	summary := &SessionSummary{}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := store.DB.Model(&Session{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, store.dbError(err, "summary")
	}

	for _, c := range counts {
		summary.Total += c.Count
		switch c.Status {
		case StatusQueued:
			summary.Queued = c.Count
		case StatusProcessing:
			summary.Processing = c.Count
		case StatusCompleted:
			summary.Completed = c.Count
		case StatusError:
			summary.Error = c.Count
		}
	}

	// Detection counts live inside the JSON column, count them in Go
	sessions, err := store.List(nil)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if n := len(sessions[i].DetectedCodes); n > 0 {
			summary.WithDetections++
			summary.TotalCodes += int64(n)
		}
	}

	return summary, nil
}

func (store *SQLiteStore) dbError(err error, operation string) error {
	return errors.New(fmt.Errorf("database %s failed: %w", operation, err)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
