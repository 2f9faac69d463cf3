package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows    []TimelineRow
	queries []Query
	err     error
}

func (f *fakeRepo) Timeline(_ context.Context, q Query) ([]TimelineRow, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []TimelineRow
	for _, row := range f.rows {
		if q.Entity != "" && row.Entity != q.Entity {
			continue
		}
		out = append(out, row)
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func seededRepo(n int) *fakeRepo {
	repo := &fakeRepo{}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		entity := "sale"
		if i%2 == 1 {
			entity = "inventory"
		}
		repo.rows = append(repo.rows, TimelineRow{
			ID: int64(i + 1), At: base.Add(-time.Duration(i) * time.Minute),
			ActorID: 1, Action: "create", Entity: entity, EntityID: fmt.Sprint(i + 1),
		})
	}
	return repo
}

func TestTimelinePaging(t *testing.T) {
	repo := seededRepo(45)
	svc := NewService(repo)

	first, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, first.Rows, defaultPageSize)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)
	require.Zero(t, first.Paging.PrevPage)
	require.Equal(t, defaultPageSize+1, repo.queries[0].Limit)

	last, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, last.Rows, 5)
	require.False(t, last.Paging.HasNext)
	require.Equal(t, 2, last.Paging.PrevPage)
	require.Equal(t, 40, repo.queries[1].Offset)
}

func TestTimelineCapsPageSizeAndTrimsFilters(t *testing.T) {
	repo := seededRepo(120)
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500, Entity: "  sale "})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Len(t, result.Rows, maxPageSize)
	require.Equal(t, "sale", repo.queries[0].Entity)
	for _, row := range result.Rows {
		require.Equal(t, "sale", row.Entity)
	}
}

func TestExportUsesCap(t *testing.T) {
	repo := seededRepo(3)
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, MaxExportRows, repo.queries[0].Limit)
	require.Zero(t, repo.queries[0].Offset)
}

func TestTimelineWrapsRepositoryError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&fakeRepo{err: boom})
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, boom)

	_, err = NewService(nil).Export(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
