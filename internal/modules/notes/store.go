package notes

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/smartnotes/core/internal/models"
	"github.com/smartnotes/core/internal/pkg/pagination"
	"github.com/smartnotes/core/internal/pkg/response"
)

// Store keeps finished runs. Get and Latest return (nil, nil) when nothing
// matches.
type Store interface {
	Save(ctx context.Context, rec *models.NotesRecord) error
	Get(ctx context.Context, id string) (*models.NotesRecord, error)
	Latest(ctx context.Context, videoID, language string) (*models.NotesRecord, error)
	List(ctx context.Context, q pagination.Query) ([]models.NotesRecord, response.Pagination, error)
}

// GormStore keeps records in the SQL database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, rec *models.NotesRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.NotesRecord, error) {
	var rec models.NotesRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Latest(ctx context.Context, videoID, language string) (*models.NotesRecord, error) {
	var rec models.NotesRecord
	err := s.latestQuery(s.db.WithContext(ctx), videoID, language).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) latestQuery(db *gorm.DB, videoID, language string) *gorm.DB {
	return db.Where("hash = ?", models.NotesHash(videoID, language)).Order("created_at DESC")
}

// List pages through records newest first, without the large text columns.
func (s *GormStore) List(ctx context.Context, q pagination.Query) ([]models.NotesRecord, response.Pagination, error) {
	var recs []models.NotesRecord
	query := s.db.WithContext(ctx).Model(&models.NotesRecord{}).Omit("transcript", "notes").Order("created_at DESC")
	meta, err := pagination.Paginate(query, q, &recs)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	return recs, meta, nil
}

// MemoryStore keeps records in process memory. It is used when no database
// is configured and is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.NotesRecord // insertion order
	byID    map[string]*models.NotesRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*models.NotesRecord), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, rec *models.NotesRecord) error {
	if err := rec.BeforeCreate(nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return errors.New("duplicate notes record id " + rec.ID)
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	stored := *rec
	s.records = append(s.records, &stored)
	s.byID[stored.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.NotesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) Latest(_ context.Context, videoID, language string) (*models.NotesRecord, error) {
	hash := models.NotesHash(videoID, language)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Hash == hash {
			out := *s.records[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) List(_ context.Context, q pagination.Query) ([]models.NotesRecord, response.Pagination, error) {
	s.mu.RLock()
	sorted := make([]models.NotesRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := *s.records[i]
		rec.Transcript, rec.Notes = "", ""
		sorted = append(sorted, rec)
	}
	s.mu.RUnlock()
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	total := int64(len(sorted))
	start := q.Offset()
	if start >= len(sorted) {
		return []models.NotesRecord{}, pagination.Meta(total, q), nil
	}
	end := start + q.Size
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end], pagination.Meta(total, q), nil
}
