package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhub/internal/errors"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := Static{BaseURL: "https://cdn.example.com/"}

	u, err := s.Resolve(ctx, "/avatars/1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/1.png", u)

	u, _ = s.Resolve(ctx, "https://other.example.com/x.png")
	assert.Equal(t, "https://other.example.com/x.png", u)

	u, _ = s.Resolve(ctx, "")
	assert.Equal(t, "", u)

	u, _ = Static{}.Resolve(ctx, "avatars/1.png")
	assert.Equal(t, "avatars/1.png", u)
}

func TestPresigner(t *testing.T) {
	p, err := NewPresigner(PresignerConfig{
		Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio123",
		Bucket: "media", Region: "us-east-1", Expiry: 15 * time.Minute,
	})
	require.NoError(t, err)

	u, err := p.Resolve(context.Background(), "portfolio/a.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/media/portfolio/a.jpg?"))
	assert.Contains(t, u, "X-Amz-Expires=900")
}

type failing struct{}

func (failing) Resolve(ctx context.Context, path string) (string, error) {
	return "", errors.New("storage down")
}

func TestResolveAllKeepsPathOnError(t *testing.T) {
	out, err := ResolveAll(context.Background(), failing{}, []string{"a.png", "b.png"})
	assert.Error(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, out)
}
