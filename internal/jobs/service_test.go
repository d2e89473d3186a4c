package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobhub/internal/errors"
	"jobhub/internal/listing"
	"jobhub/internal/storage"
	jobhubtest "jobhub/internal/testing"
)

type countingStore struct {
	*jobhubtest.MemStore
	listCalls atomic.Int32
}

func (c *countingStore) ListActiveJobs(ctx context.Context, f storage.ListingFilter) ([]storage.JobSummary, int, error) {
	c.listCalls.Add(1)
	return c.MemStore.ListActiveJobs(ctx, f)
}

func newService(t *testing.T, cache listing.Cache) (*Service, *countingStore) {
	t.Helper()
	store := &countingStore{MemStore: jobhubtest.NewMemStore()}
	store.AddEmployer(storage.EmployerProfile{UserID: "emp-1"}, &storage.Company{Name: "Acme"})
	svc := NewService(store, cache, zaptest.NewLogger(t).Sugar())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store
}

func titles(p *listing.Page) []string {
	out := []string{}
	for _, j := range p.Jobs {
		out = append(out, j.Title)
	}
	return out
}

func TestCreateLinksEmployerProfile(t *testing.T) {
	svc, _ := newService(t, listing.NewMemoryCache(time.Minute))
	job, err := svc.Create(context.Background(), "emp-1", Input{Title: "  Go dev ", Category: "IT"})
	require.NoError(t, err)

	assert.NotEmpty(t, job.GUID)
	assert.Equal(t, "Go dev", job.Title)
	assert.Equal(t, storage.HiringOpen, job.HiringStatus)
	assert.Equal(t, 1, job.PositionsNeeded)
	assert.Equal(t, 0, job.PositionsFilled)
	assert.NotNil(t, job.EmployerProfileID)
	assert.NotNil(t, job.CompanyID)

	solo, err := svc.Create(context.Background(), "solo", Input{Title: "Intern"})
	require.NoError(t, err)
	assert.Nil(t, solo.EmployerProfileID)
}

func TestInputValidation(t *testing.T) {
	neg, low, high := int64(-1), int64(10), int64(5)
	tests := []struct {
		name string
		in   Input
	}{
		{"missing title", Input{Title: " "}},
		{"negative positions", Input{Title: "x", PositionsNeeded: -2}},
		{"negative salary", Input{Title: "x", SalaryMin: &neg}},
		{"inverted range", Input{Title: "x", SalaryMin: &low, SalaryMax: &high}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		})
	}
}

func TestListReadsThroughCache(t *testing.T) {
	svc, store := newService(t, listing.NewMemoryCache(time.Minute))
	ctx := context.Background()
	_, err := svc.Create(ctx, "emp-1", Input{Title: "Go dev"})
	require.NoError(t, err)

	q := listing.Query{Page: 1, PageSize: 10}
	first, err := svc.List(ctx, q)
	require.NoError(t, err)
	second, err := svc.List(ctx, listing.Query{Page: 0, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.listCalls.Load())
}

// Every mutation must be visible on every previously cached page and filter.
func TestMutationsInvalidateEveryCachedView(t *testing.T) {
	caches := map[string]func(t *testing.T) listing.Cache{
		"memory": func(t *testing.T) listing.Cache { return listing.NewMemoryCache(10 * time.Minute) },
		"redis": func(t *testing.T) listing.Cache {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return listing.NewRedisCache(client, 10*time.Minute)
		},
	}

	for name, mk := range caches {
		t.Run(name, func(t *testing.T) {
			svc, _ := newService(t, mk(t))
			ctx := context.Background()

			job, err := svc.Create(ctx, "emp-1", Input{Title: "Go dev", Category: "IT"})
			require.NoError(t, err)

			views := []listing.Query{
				{Page: 1, PageSize: 10},
				{Page: 1, PageSize: 7},
				{Page: 1, PageSize: 13, Category: "it"},
				{Page: 1, PageSize: 3, Search: "go"},
			}
			warm := func() {
				for _, q := range views {
					_, err := svc.List(ctx, q)
					require.NoError(t, err)
				}
			}
			check := func(want []string, label string) {
				for _, q := range views {
					p, err := svc.List(ctx, q)
					require.NoError(t, err)
					assert.Equal(t, want, titles(p), "%s: view %+v", label, q)
				}
			}

			warm()
			_, err = svc.Update(ctx, "emp-1", job.GUID, Input{Title: "Go engineer", Category: "IT"})
			require.NoError(t, err)
			check([]string{"Go engineer"}, "update")

			toggled, err := svc.ToggleStatus(ctx, "emp-1", job.GUID)
			require.NoError(t, err)
			assert.Equal(t, storage.HiringClosed, toggled.HiringStatus)
			p, err := svc.List(ctx, views[0])
			require.NoError(t, err)
			assert.Equal(t, storage.HiringClosed, p.Jobs[0].HiringStatus)

			_, err = svc.Create(ctx, "emp-1", Input{Title: "Golang lead", Category: "it"})
			require.NoError(t, err)
			check([]string{"Golang lead", "Go engineer"}, "create")

			require.NoError(t, svc.Delete(ctx, "emp-1", job.GUID, false))
			check([]string{"Golang lead"}, "delete")
		})
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, store := newService(t, listing.NewMemoryCache(time.Minute))
	ctx := context.Background()
	store.AddEmployer(storage.EmployerProfile{UserID: "emp-2"}, nil)
	job, err := svc.Create(ctx, "emp-1", Input{Title: "Go dev"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "emp-2", job.GUID, Input{Title: "Hijacked"})
	assert.True(t, errors.IsForbidden(err))
	_, err = svc.ToggleStatus(ctx, "stranger", job.GUID)
	assert.True(t, errors.IsForbidden(err))
	assert.True(t, errors.IsForbidden(svc.Delete(ctx, "emp-2", job.GUID, true)))

	got, err := svc.Get(ctx, job.GUID)
	require.NoError(t, err)
	assert.Equal(t, "Go dev", got.Title)
}

func TestHardDeleteRemovesJob(t *testing.T) {
	svc, store := newService(t, listing.NewMemoryCache(time.Minute))
	ctx := context.Background()
	job, err := svc.Create(ctx, "emp-1", Input{Title: "Temp"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "emp-1", job.GUID, true))
	_, err = store.GetJobByID(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
}

type brokenCache struct{}

func (brokenCache) Version(ctx context.Context) (int64, error) { return 0, errors.New("redis down") }
func (brokenCache) Get(ctx context.Context, key string) (*listing.Page, bool, error) {
	return nil, false, errors.New("redis down")
}
func (brokenCache) Set(ctx context.Context, key string, page *listing.Page) error {
	return errors.New("redis down")
}
func (brokenCache) Invalidate(ctx context.Context) error { return errors.New("redis down") }

func TestCacheOutageFallsBackToStore(t *testing.T) {
	svc, _ := newService(t, brokenCache{})
	ctx := context.Background()
	_, err := svc.Create(ctx, "emp-1", Input{Title: "Go dev"})
	require.NoError(t, err)

	p, err := svc.List(ctx, listing.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go dev"}, titles(p))
}
