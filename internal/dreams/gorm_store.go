package dreams

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/database"
)

// GormStore persists dreams in the dreams table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Create inserts d; a clash on (owner, idempotency key) yields ErrDuplicate.
func (s *GormStore) Create(ctx context.Context, d Dream) error {
	row := toRow(d)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Dream, error) {
	var row database.Dream
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Dream{}, ErrNotFound
		}
		return Dream{}, err
	}
	return fromRow(row), nil
}

func (s *GormStore) FindByIdempotencyKey(ctx context.Context, owner, key string) (Dream, error) {
	var row database.Dream
	err := s.db.WithContext(ctx).
		Where("owner_email = ? AND idempotency_key = ?", owner, key).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Dream{}, ErrNotFound
		}
		return Dream{}, err
	}
	return fromRow(row), nil
}

// Transition is a single UPDATE ... WHERE id = ? AND status = ?; zero rows
// affected means another writer moved the job first (or it does not exist).
func (s *GormStore) Transition(ctx context.Context, id string, from Status, t Transition) (Dream, error) {
	if err := t.Validate(from); err != nil {
		return Dream{}, err
	}

	updates := map[string]any{
		"status":       string(t.To),
		"video_ref":    t.VideoRef,
		"error_detail": t.ErrorDetail,
		"updated_at":   s.now().UTC(),
	}
	if t.JobHandle != "" {
		updates["job_handle"] = t.JobHandle
	}

	res := s.db.WithContext(ctx).
		Model(&database.Dream{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return Dream{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return Dream{}, err
		}
		return Dream{}, ErrStaleTransition
	}
	return s.Get(ctx, id)
}

func (s *GormStore) ListByOwner(ctx context.Context, owner string) ([]Dream, error) {
	var rows []database.Dream
	if err := s.db.WithContext(ctx).
		Where("owner_email = ?", owner).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// ListPending returns non-terminal dreams, least recently touched first.
func (s *GormStore) ListPending(ctx context.Context, limit int) ([]Dream, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []database.Dream
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(StatusSubmitted), string(StatusProcessing)}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&database.Dream{}).Error
}

func toRow(d Dream) database.Dream {
	row := database.Dream{
		ID:            d.ID,
		OwnerEmail:    d.OwnerEmail,
		CharacterID:   d.CharacterID,
		CharacterName: d.CharacterName,
		Prompt:        d.Prompt,
		JobHandle:     d.JobHandle,
		Status:        string(d.Status),
		VideoRef:      d.VideoRef,
		ErrorDetail:   d.ErrorDetail,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.IdempotencyKey != "" {
		key := d.IdempotencyKey
		row.IdempotencyKey = &key
	}
	return row
}

func fromRow(row database.Dream) Dream {
	d := Dream{
		ID:            row.ID,
		OwnerEmail:    row.OwnerEmail,
		CharacterID:   row.CharacterID,
		CharacterName: row.CharacterName,
		Prompt:        row.Prompt,
		JobHandle:     row.JobHandle,
		Status:        Status(row.Status),
		VideoRef:      row.VideoRef,
		ErrorDetail:   row.ErrorDetail,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.IdempotencyKey != nil {
		d.IdempotencyKey = *row.IdempotencyKey
	}
	return d
}

func fromRows(rows []database.Dream) []Dream {
	out := make([]Dream, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out
}
