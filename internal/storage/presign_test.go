package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	fail map[string]bool
	ttl  time.Duration
}

func (s *fakeSigner) GeneratePresignedURL(_ context.Context, objectKey string, duration time.Duration) (string, error) {
	s.ttl = duration
	if s.fail[objectKey] {
		return "", errors.New("signature failure")
	}
	return "https://signed.example/" + objectKey + "?X-Amz-Expires=3600", nil
}

func TestIssuer_IssueAccessURL(t *testing.T) {
	signer := &fakeSigner{}
	issuer := NewIssuer(signer, time.Hour, nil)

	u, err := issuer.IssueAccessURL(context.Background(), "characters/a@x.com/c1/img_0.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/characters/a@x.com/c1/img_0.jpg?X-Amz-Expires=3600", u)
	assert.Equal(t, time.Hour, signer.ttl)

	external := "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"
	u, err = issuer.IssueAccessURL(context.Background(), external)
	require.NoError(t, err)
	assert.Equal(t, external, u)

	_, err = issuer.IssueAccessURL(context.Background(), "  ")
	assert.Error(t, err)
}

func TestIssuer_IssueAllSkipsFailures(t *testing.T) {
	signer := &fakeSigner{fail: map[string]bool{"k2": true}}
	issuer := NewIssuer(signer, time.Minute, nil)

	urls := issuer.IssueAll(context.Background(), []string{"k1", "k2", "k3"})
	assert.Equal(t, []string{
		"https://signed.example/k1?X-Amz-Expires=3600",
		"https://signed.example/k3?X-Amz-Expires=3600",
	}, urls)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://dream-creator-images/dreams/abc/output.mp4")
	require.NoError(t, err)
	assert.Equal(t, "dream-creator-images", bucket)
	assert.Equal(t, "dreams/abc/output.mp4", key)

	_, _, err = ParseS3URI("https://example.com/video.mp4")
	assert.Error(t, err)
}
