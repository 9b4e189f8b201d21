package characters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
)

// MaxImages caps the reference images kept per character; extras are dropped.
const MaxImages = 3

var (
	ErrNotFound = errors.New("character not found")
	ErrInfected = errors.New("image rejected by malware scan")
)

// Character is a user-owned bundle of up to MaxImages reference images.
type Character struct {
	ID          string
	OwnerEmail  string
	Name        string
	Description string
	ImageKeys   []string
	CreatedAt   time.Time
}

// View is a character with its images resolved to signed URLs.
type View struct {
	ID          string    `json:"character_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists character records.
type Store interface {
	Create(ctx context.Context, c Character) error
	Get(ctx context.Context, owner, id string) (Character, error)
	ListByOwner(ctx context.Context, owner string) ([]Character, error)
	Delete(ctx context.Context, owner, id string) (bool, error)
}

// ObjectStore is where image bytes go.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	DeleteObject(ctx context.Context, objectKey string) error
}

// Scanner inspects uploaded bytes; it returns ErrInfected for rejected content.
type Scanner interface {
	Scan(ctx context.Context, data []byte) error
}

// Purger schedules removal of a deleted character's objects.
type Purger interface {
	EnqueuePurge(ctx context.Context, prefix string) error
}

// Service is the character image manager.
type Service struct {
	store   Store
	objects ObjectStore
	issuer  *storage.Issuer
	scanner Scanner
	purger  Purger
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

// WithScanner enables malware scanning of uploads.
func WithScanner(s Scanner) Option { return func(svc *Service) { svc.scanner = s } }

// WithPurger enables background purge of deleted characters' images.
func WithPurger(p Purger) Option { return func(svc *Service) { svc.purger = p } }

func NewService(store Store, objects ObjectStore, issuer *storage.Issuer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:   store,
		objects: objects,
		issuer:  issuer,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ObjectPrefix is the namespace holding one character's images.
func ObjectPrefix(owner, characterID string) string {
	return fmt.Sprintf("characters/%s/%s/", owner, characterID)
}

// Create stores up to MaxImages images in submission order and then writes the
// record. Zero images are accepted. On any failure the objects written so far
// are removed and no record is created.
func (s *Service) Create(ctx context.Context, owner, name, description string, images [][]byte) (string, error) {
	if owner == "" || name == "" {
		return "", errcode.Validation("Missing fields")
	}
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	type prepared struct {
		data        []byte
		contentType string
		ext         string
	}
	items := make([]prepared, 0, len(images))
	for i, img := range images {
		if len(img) == 0 {
			return "", errcode.Validation(fmt.Sprintf("image %d is empty", i))
		}
		contentType, ext := imageType(img)
		if s.scanner != nil {
			if err := s.scanner.Scan(ctx, img); err != nil {
				if errors.Is(err, ErrInfected) {
					return "", errcode.Validation("Malicious file detected")
				}
				return "", errcode.Persistence("scan image", err)
			}
		}
		items = append(items, prepared{data: img, contentType: contentType, ext: ext})
	}

	id := s.newID()
	prefix := ObjectPrefix(owner, id)
	keys := make([]string, 0, len(items))
	for i, item := range items {
		key := fmt.Sprintf("%simg_%d.%s", prefix, i, item.ext)
		if err := s.objects.UploadFile(ctx, key, bytes.NewReader(item.data), int64(len(item.data)), item.contentType); err != nil {
			s.rollback(ctx, keys)
			return "", errcode.Persistence("upload character image", err)
		}
		keys = append(keys, key)
	}

	c := Character{
		ID:          id,
		OwnerEmail:  owner,
		Name:        name,
		Description: description,
		ImageKeys:   keys,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		s.rollback(ctx, keys)
		return "", errcode.Persistence("create character", err)
	}

	s.logger.InfoContext(ctx, "character created",
		slog.String("character_id", id),
		slog.Int("image_count", len(keys)),
	)
	return id, nil
}

func (s *Service) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.objects.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
			s.logger.WarnContext(ctx, "rollback character image failed",
				slog.String("object_key", key),
				slog.Any("error", err),
			)
		}
	}
}

// List returns the owner's characters with freshly signed image URLs.
func (s *Service) List(ctx context.Context, owner string) ([]View, error) {
	if owner == "" {
		return nil, errcode.Validation("Missing fields")
	}
	chars, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, errcode.Persistence("list characters", err)
	}
	views := make([]View, 0, len(chars))
	for _, c := range chars {
		views = append(views, View{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			ImageURLs:   s.issuer.IssueAll(ctx, c.ImageKeys),
			CreatedAt:   c.CreatedAt,
		})
	}
	return views, nil
}

// Get returns one of the owner's characters.
func (s *Service) Get(ctx context.Context, owner, id string) (Character, error) {
	c, err := s.store.Get(ctx, owner, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return Character{}, errcode.NotFound("Character not found")
	case err != nil:
		return Character{}, errcode.Persistence("get character", err)
	}
	return c, nil
}

// Delete removes the record. Deleting a missing character succeeds. Stored
// images are purged in the background when a Purger is configured.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if owner == "" || id == "" {
		return errcode.Validation("Missing fields")
	}
	deleted, err := s.store.Delete(ctx, owner, id)
	if err != nil {
		return errcode.Persistence("delete character", err)
	}
	if !deleted || s.purger == nil {
		return nil
	}
	if err := s.purger.EnqueuePurge(ctx, ObjectPrefix(owner, id)); err != nil {
		s.logger.WarnContext(ctx, "enqueue character purge failed",
			slog.String("character_id", id),
			slog.Any("error", err),
		)
	}
	return nil
}

// imageType 识别 PNG；其余字节一律按 JPEG 存储。
func imageType(data []byte) (contentType, ext string) {
	if mimetype.Detect(data).Is("image/png") {
		return "image/png", "png"
	}
	return "image/jpeg", "jpg"
}
