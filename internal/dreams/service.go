package dreams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/characters"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/generator"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
)

// CharacterSource looks up an owner's character.
type CharacterSource interface {
	Get(ctx context.Context, owner, id string) (characters.Character, error)
}

// ImageReader fetches stored image bytes.
type ImageReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

// Quota limits dream submissions per owner.
type Quota interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Observer receives lifecycle events, e.g. for metrics.
type Observer interface {
	ObserveTransition(from, to Status)
	ObserveFallback(op string)
}

// Config holds the service's tunables.
type Config struct {
	// Bucket is where generated videos land; s3 URIs in it resolve to object keys.
	Bucket string
	// StaleAfter is how long a job may stay submitted before it is treated as lost.
	StaleAfter time.Duration
}

// CreateInput is a create_dream request.
type CreateInput struct {
	Owner            string
	CharacterID      string
	Prompt           string
	SourceImageIndex *int
	IdempotencyKey   string
}

// View is the client representation of a dream.
type View struct {
	ID            string    `json:"dream_id"`
	Email         string    `json:"email"`
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	Prompt        string    `json:"prompt"`
	Status        Status    `json:"status"`
	VideoURL      string    `json:"video_url,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SweepResult summarises one Sweep run.
type SweepResult struct {
	Checked  int
	Advanced int
	Errors   int
}

// Service submits dreams and advances them through their lifecycle.
type Service struct {
	store      Store
	characters CharacterSource
	images     ImageReader
	gen        generator.Generator
	issuer     *storage.Issuer
	fallback   FallbackPolicy
	cfg        Config
	quota      Quota
	observer   Observer
	logger     *slog.Logger
	newID      func() string
	now        func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

// WithQuota enforces a per-owner submission quota.
func WithQuota(q Quota) Option { return func(s *Service) { s.quota = q } }

// WithObserver reports transitions and fallbacks.
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func NewService(
	store Store,
	chars CharacterSource,
	images ImageReader,
	gen generator.Generator,
	issuer *storage.Issuer,
	fallback FallbackPolicy,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      store,
		characters: chars,
		images:     images,
		gen:        gen,
		issuer:     issuer,
		fallback:   fallback,
		cfg:        cfg,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create submits a new dream. External failures never fail the call: they are
// absorbed by the fallback policy and reflected in the returned status.
func (s *Service) Create(ctx context.Context, in CreateInput) (View, error) {
	if in.Owner == "" || in.CharacterID == "" {
		return View{}, errcode.Validation("Missing fields")
	}

	if in.IdempotencyKey != "" {
		existing, err := s.store.FindByIdempotencyKey(ctx, in.Owner, in.IdempotencyKey)
		switch {
		case err == nil:
			return s.view(ctx, existing), nil
		case !errors.Is(err, ErrNotFound):
			return View{}, errcode.Persistence("find dream by idempotency key", err)
		}
	}

	char, err := s.characters.Get(ctx, in.Owner, in.CharacterID)
	if err != nil {
		return View{}, characterError(err)
	}
	if len(char.ImageKeys) == 0 {
		return View{}, errcode.Validation("No character images found")
	}
	idx := 0
	if in.SourceImageIndex != nil {
		idx = *in.SourceImageIndex
	}
	if idx < 0 || idx >= len(char.ImageKeys) {
		return View{}, errcode.Validation(fmt.Sprintf("source_image_index must be between 0 and %d", len(char.ImageKeys)-1))
	}
	imageKey := char.ImageKeys[idx]
	image, err := s.images.ReadObject(ctx, imageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return View{}, errcode.Validation("No character images found")
		}
		return View{}, errcode.Persistence("read character image", err)
	}

	if err := s.checkQuota(ctx, in.Owner); err != nil {
		return View{}, err
	}

	now := s.now().UTC()
	d := Dream{
		ID:             s.newID(),
		OwnerEmail:     in.Owner,
		CharacterID:    char.ID,
		CharacterName:  char.Name,
		Prompt:         in.Prompt,
		IdempotencyKey: in.IdempotencyKey,
		Status:         StatusSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDuplicate) && in.IdempotencyKey != "" {
			existing, ferr := s.store.FindByIdempotencyKey(ctx, in.Owner, in.IdempotencyKey)
			if ferr == nil {
				return s.view(ctx, existing), nil
			}
			err = ferr
		}
		return View{}, errcode.Persistence("create dream", err)
	}

	req := generator.NewRequest(image, generator.ImageFormat(imageKey), in.Prompt, d.ID)
	t := s.submissionTransition(ctx, d, req)

	updated, err := s.apply(ctx, d, StatusSubmitted, t)
	if err != nil {
		return View{}, err
	}
	s.logger.InfoContext(ctx, "dream submitted",
		slog.String("dream_id", updated.ID),
		slog.String("character_id", updated.CharacterID),
		slog.String("status", string(updated.Status)),
	)
	return s.view(ctx, updated), nil
}

func (s *Service) submissionTransition(ctx context.Context, d Dream, req generator.Request) Transition {
	sub, err := s.gen.Submit(ctx, req)
	if err != nil {
		return s.fail(ctx, d, "submit", err)
	}
	if sub.Done() {
		ref, err := s.resolveAsset(sub.AssetURI)
		if err != nil {
			return s.fail(ctx, d, "submit", err)
		}
		return Transition{To: StatusCompleted, JobHandle: sub.Handle, VideoRef: ref}
	}
	if sub.Handle == "" {
		return s.fail(ctx, d, "submit", errors.New("submission returned no job handle"))
	}
	return Transition{To: StatusProcessing, JobHandle: sub.Handle}
}

// CheckStatus returns the dream, first advancing it when the external job has
// moved on. Terminal dreams are returned as stored without contacting the
// generator.
func (s *Service) CheckStatus(ctx context.Context, id string) (View, error) {
	if id == "" {
		return View{}, errcode.Validation("Missing fields")
	}
	d, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return View{}, errcode.NotFound("Dream not found")
	case err != nil:
		return View{}, errcode.Persistence("get dream", err)
	}
	d, err = s.advance(ctx, d)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, d), nil
}

// advance applies at most one transition to d and returns the current record.
func (s *Service) advance(ctx context.Context, d Dream) (Dream, error) {
	switch d.Status {
	case StatusSubmitted:
		// A submission may still be in flight inside another request.
		if s.cfg.StaleAfter <= 0 || s.now().Sub(d.CreatedAt) < s.cfg.StaleAfter {
			return d, nil
		}
		return s.apply(ctx, d, StatusSubmitted,
			s.fail(ctx, d, "submit", fmt.Errorf("no submission recorded after %s", s.cfg.StaleAfter)))

	case StatusProcessing:
		if d.JobHandle == "" {
			return s.apply(ctx, d, StatusProcessing, s.fail(ctx, d, "poll", errors.New("processing without job handle")))
		}
		st, err := s.gen.Poll(ctx, d.JobHandle)
		if err != nil {
			return s.apply(ctx, d, StatusProcessing, s.fail(ctx, d, "poll", err))
		}
		switch st.Phase {
		case generator.PhaseInProgress:
			return d, nil
		case generator.PhaseSucceeded:
			ref, err := s.resolveAsset(st.AssetURI)
			if err != nil {
				return s.apply(ctx, d, StatusProcessing, s.fail(ctx, d, "poll", err))
			}
			return s.apply(ctx, d, StatusProcessing, Transition{To: StatusCompleted, VideoRef: ref})
		case generator.PhaseFailed:
			s.logger.WarnContext(ctx, "video generation job failed",
				slog.String("dream_id", d.ID),
				slog.String("job_handle", d.JobHandle),
				slog.String("message", st.Message),
			)
			t := Transition{To: StatusFailed}
			if s.fallback.Strict() {
				t.ErrorDetail = st.Message
			}
			return s.apply(ctx, d, StatusProcessing, t)
		default:
			return s.apply(ctx, d, StatusProcessing, s.fail(ctx, d, "poll", fmt.Errorf("unknown job phase %q", st.Phase)))
		}
	}
	return d, nil
}

func (s *Service) fail(ctx context.Context, d Dream, op string, cause error) Transition {
	if s.observer != nil {
		s.observer.ObserveFallback(op)
	}
	return s.fallback.Handle(ctx, d, op, cause)
}

// apply writes t conditionally on from. A lost race is not an error: the
// record written by the winner is returned instead.
func (s *Service) apply(ctx context.Context, d Dream, from Status, t Transition) (Dream, error) {
	// 外部调用已经发生，客户端断开也要把结果落库。
	ctx = context.WithoutCancel(ctx)
	updated, err := s.store.Transition(ctx, d.ID, from, t)
	switch {
	case err == nil:
		if s.observer != nil {
			s.observer.ObserveTransition(from, updated.Status)
		}
		return updated, nil
	case errors.Is(err, ErrStaleTransition):
		current, gerr := s.store.Get(ctx, d.ID)
		if gerr != nil {
			return Dream{}, errcode.Persistence("reload dream", gerr)
		}
		s.logger.DebugContext(ctx, "dream transition lost race",
			slog.String("dream_id", d.ID),
			slog.String("wanted", string(t.To)),
			slog.String("current", string(current.Status)),
		)
		return current, nil
	case errors.Is(err, ErrNotFound):
		return Dream{}, errcode.NotFound("Dream not found")
	default:
		return Dream{}, errcode.Persistence("update dream status", err)
	}
}

// resolveAsset turns a generator output URI into a stored video reference.
func (s *Service) resolveAsset(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("job output location missing")
	}
	if storage.IsExternalURL(uri) {
		return uri, nil
	}
	bucket, key, err := storage.ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	if bucket != s.cfg.Bucket || key == "" {
		return "", fmt.Errorf("output %q is outside bucket %q", uri, s.cfg.Bucket)
	}
	return key, nil
}

// List returns the owner's dreams, newest first, with fresh video URLs.
func (s *Service) List(ctx context.Context, owner string) ([]View, error) {
	if owner == "" {
		return nil, errcode.Validation("Missing fields")
	}
	ds, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, errcode.Persistence("list dreams", err)
	}
	views := make([]View, 0, len(ds))
	for _, d := range ds {
		views = append(views, s.view(ctx, d))
	}
	return views, nil
}

// Delete removes the dream record; a missing dream is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errcode.Validation("Missing fields")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return errcode.Persistence("delete dream", err)
	}
	return nil
}

// Sweep advances up to limit non-terminal dreams. Per-dream failures are
// logged and counted; only a failure to list pending dreams is returned.
func (s *Service) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	pending, err := s.store.ListPending(ctx, limit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list pending dreams: %w", err)
	}
	var res SweepResult
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		next, err := s.advance(ctx, d)
		if err != nil {
			res.Errors++
			s.logger.WarnContext(ctx, "sweep dream failed",
				slog.String("dream_id", d.ID),
				slog.Any("error", err),
			)
			continue
		}
		if next.Status != d.Status {
			res.Advanced++
		}
	}
	return res, nil
}

func (s *Service) checkQuota(ctx context.Context, owner string) error {
	if s.quota == nil {
		return nil
	}
	ok, err := s.quota.Allow(ctx, "dream:create:"+owner)
	if err != nil {
		// 计数器不可用时放行，仅记录日志。
		s.logger.WarnContext(ctx, "dream quota check failed", slog.Any("error", err))
		return nil
	}
	if !ok {
		return errcode.RateLimited("Too many dreams requested, try again later")
	}
	return nil
}

func (s *Service) view(ctx context.Context, d Dream) View {
	v := View{
		ID:            d.ID,
		Email:         d.OwnerEmail,
		CharacterID:   d.CharacterID,
		CharacterName: d.CharacterName,
		Prompt:        d.Prompt,
		Status:        d.Status,
		JobID:         d.JobHandle,
		ErrorDetail:   d.ErrorDetail,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.VideoRef != "" {
		u, err := s.issuer.IssueAccessURL(ctx, d.VideoRef)
		if err != nil {
			s.logger.WarnContext(ctx, "issue video url failed",
				slog.String("dream_id", d.ID),
				slog.Any("error", err),
			)
		} else {
			v.VideoURL = u
		}
	}
	return v
}

func characterError(err error) error {
	var ce *errcode.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, characters.ErrNotFound) {
		return errcode.NotFound("Character not found")
	}
	return errcode.Persistence("get character", err)
}
