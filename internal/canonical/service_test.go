// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package canonical_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/canonical"
	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dberr"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/pkg/pointer"
	"github.com/tessera-app/tessera/pkg/slug"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// fakeRepository is an in-memory catalog.SeriesRepository.
type fakeRepository struct {
	series  map[string]*catalog.Series
	sources map[string]*catalog.SeriesSource

	metadataWrites int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		series:  map[string]*catalog.Series{},
		sources: map[string]*catalog.SeriesSource{},
	}
}

func (f *fakeRepository) GetSeriesByID(_ context.Context, id string) (*catalog.Series, error) {
	if series, ok := f.series[id]; ok {
		return series, nil
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeRepository) GetSeriesByExternalID(_ context.Context, externalID string) (*catalog.Series, error) {
	for _, series := range f.series {
		if series.ExternalID != nil && *series.ExternalID == externalID {
			return series, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeRepository) GetSeriesByNormalizedTitle(_ context.Context, normalized string) (*catalog.Series, error) {
	for _, series := range f.series {
		if series.NormalizedTitle == normalized {
			return series, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeRepository) CreateSeries(_ context.Context, series *catalog.Series) error {
	series.ID = uuidv7.New()
	f.series[series.ID] = series
	return nil
}

func (f *fakeRepository) UpdateSeriesMetadata(_ context.Context, series *catalog.Series) error {
	f.metadataWrites++
	f.series[series.ID] = series
	return nil
}

func (f *fakeRepository) GetSourceByID(_ context.Context, id string) (*catalog.SeriesSource, error) {
	if source, ok := f.sources[id]; ok {
		return source, nil
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeRepository) GetSourceByRef(_ context.Context, sourceName, sourceID string) (*catalog.SeriesSource, error) {
	for _, source := range f.sources {
		if source.SourceName == sourceName && source.SourceID == sourceID {
			return source, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeRepository) UpsertSource(_ context.Context, source *catalog.SeriesSource) (*catalog.SeriesSource, error) {
	for _, existing := range f.sources {
		if existing.SourceName == source.SourceName && existing.SourceID == source.SourceID {
			if existing.SeriesID != source.SeriesID {
				return nil, apperr.Conflict("source link already bound to another series")
			}
			existing.SourceURL = source.SourceURL
			return existing, nil
		}
	}
	source.ID = uuidv7.New()
	f.sources[source.ID] = source
	return source, nil
}

func (f *fakeRepository) ListActiveSources(context.Context, string) ([]catalog.SeriesSource, error) {
	return nil, nil
}
func (f *fakeRepository) RecordPollSuccess(context.Context, string, time.Time, time.Time) error {
	return nil
}
func (f *fakeRepository) IncrementFailure(context.Context, string) (int, error) { return 0, nil }
func (f *fakeRepository) DemoteSource(context.Context, string, time.Time) error { return nil }
func (f *fakeRepository) ListDueSources(context.Context, time.Time, int) ([]catalog.SeriesSource, error) {
	return nil, nil
}
func (f *fakeRepository) DemoteIdleHotSources(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestService(t *testing.T) (*canonical.Service, *fakeRepository, *dlock.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newFakeRepository()
	locker := dlock.NewLocker(client, "test")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return canonical.NewService(repo, locker, nil, logger), repo, locker
}

/*
TestResolve_CreatesOnFirstSighting verifies that an unknown title creates a
canonical series with its source link marked primary.
*/
func TestResolve_CreatesOnFirstSighting(t *testing.T) {
	service, repo, _ := newTestService(t)

	series, err := service.Resolve(context.Background(), canonical.Discovery{
		Title:      "Solo Leveling",
		SourceName: "mangadex",
		SourceID:   "md-1",
		SourceURL:  "https://example.test/md-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "solo-leveling", series.NormalizedTitle)
	assert.Len(t, repo.series, 1)
	require.Len(t, repo.sources, 1)
	for _, source := range repo.sources {
		assert.True(t, source.IsPrimary, "first source becomes primary")
		assert.Equal(t, series.ID, source.SeriesID)
	}
}

/*
TestResolve_ResolutionOrder verifies external id beats source ref beats
normalized title, and that equivalent spellings converge.
*/
func TestResolve_ResolutionOrder(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "Solo Leveling",
		SourceName: "mangadex",
		SourceID:   "md-1",
		SourceURL:  "https://example.test/md-1",
		ExternalID: pointer.To("anilist-101"),
	})
	require.NoError(t, err)

	// 1. A different title but the same external id resolves to the same
	// series.
	second, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "Na Honjaman Level-Up",
		SourceName: "comick",
		SourceID:   "ck-9",
		SourceURL:  "https://example.test/ck-9",
		ExternalID: pointer.To("anilist-101"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// 2. A repeat sighting from a known source ref resolves via the link.
	third, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "Completely Renamed",
		SourceName: "comick",
		SourceID:   "ck-9",
		SourceURL:  "https://example.test/ck-9",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	// 3. A new source with an equivalent spelling resolves by normalized
	// title.
	fourth, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "solo  LEVELING!",
		SourceName: "asura",
		SourceID:   "as-3",
		SourceURL:  "https://example.test/as-3",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, fourth.ID)

	assert.Len(t, repo.series, 1, "all sightings converge on one series")
	assert.Len(t, repo.sources, 3)
}

/*
TestResolve_MergePolicy verifies non-destructive metadata merging: set
unions, fill-if-empty, and the placeholder cover rule.
*/
func TestResolve_MergePolicy(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "Tower of God",
		SourceName: "mangadex",
		SourceID:   "md-2",
		SourceURL:  "https://example.test/md-2",
		Tags:       []string{"action"},
		CoverURL:   pointer.To("https://cdn.example.test/tog.jpg"),
	})
	require.NoError(t, err)

	merged, err := service.Resolve(ctx, canonical.Discovery{
		Title:       "Kami no Tou",
		SourceName:  "comick",
		SourceID:    "ck-2",
		SourceURL:   "https://example.test/ck-2",
		Description: pointer.To("Climb the tower."),
		Genres:      []string{"Action", "fantasy"},
		CoverURL:    pointer.To("https://cdn.example.test/placeholder.png"),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, merged.ID)

	stored := repo.series[first.ID]
	// Alt titles accumulate the differently-spelled main title.
	assert.Contains(t, stored.AltTitles, "Kami no Tou")
	// Tags union case-insensitively.
	assert.ElementsMatch(t, []string{"action", "fantasy"}, stored.Tags)
	// Empty description filled in.
	assert.Equal(t, "Climb the tower.", pointer.Val(stored.Description))
	// A placeholder never replaces a valid cover.
	assert.Equal(t, "https://cdn.example.test/tog.jpg", pointer.Val(stored.CoverURL))
}

/*
TestResolve_TitleLock verifies that a held title lock defers resolution
with a retryable overload instead of racing.
*/
func TestResolve_TitleLock(t *testing.T) {
	service, _, locker := newTestService(t)
	ctx := context.Background()

	key := "title:" + slug.From("Solo Leveling")
	lease, err := locker.Acquire(ctx, key, constants.TitleLockTTL)
	require.NoError(t, err)
	defer func() { _ = lease.Release(ctx) }()

	_, err = service.Resolve(ctx, canonical.Discovery{
		Title:      "Solo Leveling",
		SourceName: "mangadex",
		SourceID:   "md-1",
		SourceURL:  "https://example.test/md-1",
	})
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "OVERLOADED", ae.Code)
	assert.True(t, ae.Retryable)
}

/*
TestResolve_RebindRejected verifies that a source ref already bound to one
series cannot be captured by another.
*/
func TestResolve_RebindRejected(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Resolve(ctx, canonical.Discovery{
		Title:      "Solo Leveling",
		SourceName: "mangadex",
		SourceID:   "md-1",
		SourceURL:  "https://example.test/md-1",
	})
	require.NoError(t, err)

	_, err = service.Resolve(ctx, canonical.Discovery{
		Title:      "Tower of God",
		SourceName: "comick",
		SourceID:   "ck-5",
		SourceURL:  "https://example.test/ck-5",
		ExternalID: pointer.To("anilist-202"),
	})
	require.NoError(t, err)
	require.Len(t, repo.series, 2)

	// The external id pulls resolution to the second series, but the source
	// ref is already bound to the first one.
	_, err = service.Resolve(ctx, canonical.Discovery{
		Title:      "Mislabeled Listing",
		SourceName: "mangadex",
		SourceID:   "md-1",
		SourceURL:  "https://example.test/md-1",
		ExternalID: pointer.To("anilist-202"),
	})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.False(t, ae.Retryable)
}
