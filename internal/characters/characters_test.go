package characters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/database/databasetest"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n0000")
	jpegBytes = []byte("\xff\xd8\xff\xe0jpeg")
)

type fakeObjects struct {
	uploaded map[string][]byte
	types    map[string]string
	order    []string
	deleted  []string
	failOn   int
	calls    int
	failSign map[string]bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploaded: map[string][]byte{}, types: map[string]string{}, failOn: -1, failSign: map[string]bool{}}
}

func (f *fakeObjects) UploadFile(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	defer func() { f.calls++ }()
	if f.calls == f.failOn {
		return errors.New("bucket unavailable")
	}
	b, _ := io.ReadAll(r)
	f.uploaded[key] = b
	f.types[key] = contentType
	f.order = append(f.order, key)
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploaded, key)
	return nil
}

func (f *fakeObjects) GeneratePresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.failSign[key] {
		return "", errors.New("sign failed")
	}
	return "https://signed.example/" + key, nil
}

type fakePurger struct{ prefixes []string }

func (p *fakePurger) EnqueuePurge(_ context.Context, prefix string) error {
	p.prefixes = append(p.prefixes, prefix)
	return nil
}

type fakeScanner struct{ reject bool }

func (s fakeScanner) Scan(context.Context, []byte) error {
	if s.reject {
		return ErrInfected
	}
	return nil
}

func newTestService(t *testing.T, objects *fakeObjects, opts ...Option) (*Service, *GormStore) {
	t.Helper()
	store := NewGormStore(databasetest.Open(t))
	issuer := storage.NewIssuer(objects, time.Hour, nil)
	svc := NewService(store, objects, issuer, nil, opts...)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("char-%d", n)
	}
	return svc, store
}

func TestCreateKeepsFirstThreeImagesInOrder(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	svc, store := newTestService(t, objects)

	images := [][]byte{pngBytes, jpegBytes, pngBytes, jpegBytes, pngBytes}
	id, err := svc.Create(ctx, "a@x.com", "Hero", "brave", images)
	require.NoError(t, err)
	assert.Equal(t, "char-1", id)

	want := []string{
		"characters/a@x.com/char-1/img_0.png",
		"characters/a@x.com/char-1/img_1.jpg",
		"characters/a@x.com/char-1/img_2.png",
	}
	assert.Equal(t, want, objects.order)

	c, err := store.Get(ctx, "a@x.com", id)
	require.NoError(t, err)
	assert.Equal(t, want, c.ImageKeys)
	assert.Equal(t, "brave", c.Description)
}

func TestCreateWithoutImages(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, newFakeObjects())

	id, err := svc.Create(ctx, "a@x.com", "Ghost", "", nil)
	require.NoError(t, err)

	c, err := store.Get(ctx, "a@x.com", id)
	require.NoError(t, err)
	assert.Empty(t, c.ImageKeys)
}

func TestCreateRollsBackOnUploadFailure(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.failOn = 1
	svc, store := newTestService(t, objects)

	_, err := svc.Create(ctx, "a@x.com", "Hero", "", [][]byte{pngBytes, pngBytes, pngBytes})
	require.Error(t, err)
	assert.Equal(t, errcode.KindInternal, errcode.KindOf(err))

	assert.Equal(t, []string{"characters/a@x.com/char-1/img_0.png"}, objects.deleted)
	assert.Empty(t, objects.uploaded)

	list, err := store.ListByOwner(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeObjects())

	_, err := svc.Create(ctx, "a@x.com", "", "", nil)
	assert.Equal(t, errcode.KindValidation, errcode.KindOf(err))

	_, err = svc.Create(ctx, "a@x.com", "Hero", "", [][]byte{{}})
	assert.Equal(t, errcode.KindValidation, errcode.KindOf(err))
}

func TestCreateStoresUnrecognisedImagesAsJPEG(t *testing.T) {
	objects := newFakeObjects()
	svc, _ := newTestService(t, objects)

	gif := []byte("GIF89a\x01\x00\x01\x00")
	webp := []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	id, err := svc.Create(context.Background(), "a@x.com", "Hero", "", [][]byte{gif, webp, []byte("hello")})
	require.NoError(t, err)

	require.Len(t, objects.order, 3)
	for i, key := range objects.order {
		assert.Equal(t, fmt.Sprintf("characters/a@x.com/%s/img_%d.jpg", id, i), key)
		assert.Equal(t, "image/jpeg", objects.types[key])
	}
	assert.Equal(t, []byte("hello"), objects.uploaded[objects.order[2]])
}

func TestCreateRejectsInfectedImage(t *testing.T) {
	objects := newFakeObjects()
	svc, _ := newTestService(t, objects, WithScanner(fakeScanner{reject: true}))

	_, err := svc.Create(context.Background(), "a@x.com", "Hero", "", [][]byte{pngBytes})
	assert.Equal(t, errcode.KindValidation, errcode.KindOf(err))
	assert.Empty(t, objects.uploaded)
}

func TestListSignsFreshAndSkipsFailures(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	svc, _ := newTestService(t, objects)

	id, err := svc.Create(ctx, "a@x.com", "Hero", "", [][]byte{pngBytes, jpegBytes})
	require.NoError(t, err)
	objects.failSign["characters/a@x.com/"+id+"/img_0.png"] = true

	views, err := svc.List(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []string{"https://signed.example/characters/a@x.com/" + id + "/img_1.jpg"}, views[0].ImageURLs)

	others, err := svc.List(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestDeleteEnqueuesPurge(t *testing.T) {
	ctx := context.Background()
	purger := &fakePurger{}
	svc, store := newTestService(t, newFakeObjects(), WithPurger(purger))

	id, err := svc.Create(ctx, "a@x.com", "Hero", "", [][]byte{pngBytes})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "b@x.com", id), "other owners cannot delete but get success")
	_, err = store.Get(ctx, "a@x.com", id)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "a@x.com", id))
	_, err = store.Get(ctx, "a@x.com", id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, purger.prefixes, 1)
	assert.True(t, strings.HasPrefix(purger.prefixes[0], "characters/a@x.com/"+id))

	require.NoError(t, svc.Delete(ctx, "a@x.com", id), "delete is idempotent")
	assert.Len(t, purger.prefixes, 1)
}
