package characters

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/database"
)

// GormStore persists characters in the characters table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, c Character) error {
	row := database.Character{
		ID:          c.ID,
		OwnerEmail:  c.OwnerEmail,
		Name:        c.Name,
		Description: c.Description,
		ImageKeys:   c.ImageKeys,
		CreatedAt:   c.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) Get(ctx context.Context, owner, id string) (Character, error) {
	var row database.Character
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_email = ?", id, owner).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Character{}, ErrNotFound
		}
		return Character{}, err
	}
	return fromRow(row), nil
}

func (s *GormStore) ListByOwner(ctx context.Context, owner string) ([]Character, error) {
	var rows []database.Character
	if err := s.db.WithContext(ctx).
		Where("owner_email = ?", owner).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Character, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, owner, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_email = ?", id, owner).
		Delete(&database.Character{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func fromRow(row database.Character) Character {
	keys := make([]string, len(row.ImageKeys))
	copy(keys, row.ImageKeys)
	return Character{
		ID:          row.ID,
		OwnerEmail:  row.OwnerEmail,
		Name:        row.Name,
		Description: row.Description,
		ImageKeys:   keys,
		CreatedAt:   row.CreatedAt,
	}
}
