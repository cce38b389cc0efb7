package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/testutil"
)

func newRecommendationFixture(t *testing.T) (*RecommendationService, *gorm.DB, *models.Library) {
	t.Helper()

	db := testutil.NewTestDB(t)
	rows := repository.NewRecommendationRowRepository(db)
	libraries := repository.NewLibraryRepository(db)
	library := testutil.MakeLibrary(t, db, "Movies", "/media/movies")

	return NewRecommendationService(db, rows, libraries), db, library
}

func makeRow(t *testing.T, db *gorm.DB, libraryID models.ULID, criteria string) *models.RecommendationRow {
	t.Helper()

	row := &models.RecommendationRow{
		LibraryID: libraryID,
		Title:     "Recently Added",
		Criteria:  criteria,
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

func TestValidateCriteria(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty document", "", false},
		{"valid where clause", `{"where":[{"field":"duration","operator":"gt","value":600}]}`, false},
		{"valid order and limit", `{"order_by":"scanned_at","order":"desc","limit":20}`, false},
		{"unknown field", `{"where":[{"field":"password","operator":"eq","value":"x"}]}`, true},
		{"unknown operator", `{"where":[{"field":"duration","operator":"between","value":1}]}`, true},
		{"unknown order field", `{"order_by":"file_path"}`, true},
		{"malformed json", `{"where":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCriteria(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrInvalidArgument), "expected ErrInvalidArgument, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRowItems_FiltersAndOrders(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	long := testutil.MakeMediaFile(t, db, "/media/movies/epic.mkv", 7200)
	testutil.MakeMediaFile(t, db, "/media/movies/short.mp4", 300)
	testutil.MakeMediaFile(t, db, "/media/other/stray.mkv", 9000)

	row := makeRow(t, db, library.ID,
		`{"where":[{"field":"duration","operator":"gt","value":600}],"order_by":"duration","order":"desc"}`)

	items, err := svc.RowItems(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, items, 1, "only the long file inside the library should match")
	assert.Equal(t, long.ID, items[0].ID)
}

func TestRowItems_ScopedToLibraryPath(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	inside := testutil.MakeMediaFile(t, db, "/media/movies/film.mkv", 5400)
	testutil.MakeMediaFile(t, db, "/media/shows/episode.mkv", 2700)

	row := makeRow(t, db, library.ID, "")

	items, err := svc.RowItems(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, inside.ID, items[0].ID)
}

func TestRowItems_ExcludesSiblingPrefixLibrary(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	// /media/movies2 shares /media/movies as a string prefix but is a
	// different directory.
	inside := testutil.MakeMediaFile(t, db, "/media/movies/film.mkv", 5400)
	testutil.MakeMediaFile(t, db, "/media/movies2/other.mkv", 5400)

	row := makeRow(t, db, library.ID, "")

	items, err := svc.RowItems(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, inside.ID, items[0].ID)
}

func TestRowItems_ExcludesSoftDeleted(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	kept := testutil.MakeMediaFile(t, db, "/media/movies/kept.mkv", 5400)
	gone := testutil.MakeMediaFile(t, db, "/media/movies/gone.mkv", 5400)
	now := models.Now()
	require.NoError(t, db.Model(gone).Update("deleted_at", &now).Error)

	row := makeRow(t, db, library.ID, "")

	items, err := svc.RowItems(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ID)
}

func TestRowItems_Limit(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	testutil.MakeMediaFile(t, db, "/media/movies/a.mkv", 100)
	testutil.MakeMediaFile(t, db, "/media/movies/b.mkv", 200)
	testutil.MakeMediaFile(t, db, "/media/movies/c.mkv", 300)

	row := makeRow(t, db, library.ID, `{"order_by":"duration","order":"asc","limit":2}`)

	items, err := svc.RowItems(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.mkv", items[0].FileName)
	assert.Equal(t, "b.mkv", items[1].FileName)
}

func TestRowItems_InvalidStoredCriteria(t *testing.T) {
	svc, db, library := newRecommendationFixture(t)

	row := makeRow(t, db, library.ID, `{"where":[{"field":"nope","operator":"eq","value":1}]}`)

	_, err := svc.RowItems(context.Background(), row.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))
}

func TestRowItems_RowNotFound(t *testing.T) {
	svc, _, _ := newRecommendationFixture(t)

	_, err := svc.RowItems(context.Background(), models.NewULID())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
