package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/testutil"
)

func TestParse_ValidDocument(t *testing.T) {
	raw := `{
		"where": [
			{"field": "duration", "operator": "gt", "value": 3600},
			{"field": "codec", "operator": "in", "value": ["h264", "hevc"]},
			{"field": "file_name", "operator": "ilike", "value": "%matrix%"}
		],
		"order_by": "scanned_at",
		"order": "DESC",
		"limit": 20,
		"offset": 5
	}`

	c, err := Parse(raw)
	require.NoError(t, err)
	assert.Len(t, c.Where, 3)
	assert.Equal(t, "scanned_at", c.OrderBy)
	require.NotNil(t, c.Limit)
	assert.Equal(t, 20, *c.Limit)
}

func TestParse_EmptyMatchesEverything(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, c.Where)

	c, err = Parse("{}")
	require.NoError(t, err)
	assert.Empty(t, c.Where)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown filter field", `{"where":[{"field":"file_path","operator":"eq","value":"x"}]}`},
		{"unknown operator", `{"where":[{"field":"codec","operator":"matches","value":"x"}]}`},
		{"missing operator", `{"where":[{"field":"codec","value":"x"}]}`},
		{"unknown order field", `{"order_by":"codec"}`},
		{"bad order direction", `{"order_by":"duration","order":"SIDEWAYS"}`},
		{"zero limit", `{"limit":0}`},
		{"negative offset", `{"offset":-1}`},
		{"like with non-string", `{"where":[{"field":"duration","operator":"like","value":5}]}`},
		{"in with non-list", `{"where":[{"field":"codec","operator":"in","value":"h264"}]}`},
		{"unknown top-level key", `{"group_by":"codec"}`},
		{"malformed json", `{"where":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestApply_FiltersAndOrders(t *testing.T) {
	db := testutil.NewTestDB(t)
	short := testutil.MakeMediaFile(t, db, "/media/movies/short.mp4", 600)
	long1 := testutil.MakeMediaFile(t, db, "/media/movies/long1.mp4", 5400)
	long2 := testutil.MakeMediaFile(t, db, "/media/movies/long2.mp4", 7200)
	other := testutil.MakeMediaFile(t, db, "/media/shows/episode.mkv", 7200)

	c, err := Parse(`{
		"where": [{"field": "duration", "operator": "gte", "value": 3600}],
		"order_by": "duration",
		"order": "DESC"
	}`)
	require.NoError(t, err)

	var files []models.MediaFile
	query := c.Apply(db.Model(&models.MediaFile{}), "/media/movies")
	require.NoError(t, query.Find(&files).Error)

	require.Len(t, files, 2)
	assert.Equal(t, long2.ID, files[0].ID)
	assert.Equal(t, long1.ID, files[1].ID)

	for _, f := range files {
		assert.NotEqual(t, short.ID, f.ID)
		assert.NotEqual(t, other.ID, f.ID)
	}
}

func TestApply_ExcludesDeleted(t *testing.T) {
	db := testutil.NewTestDB(t)
	kept := testutil.MakeMediaFile(t, db, "/media/movies/kept.mp4", 5400)
	gone := testutil.MakeMediaFile(t, db, "/media/movies/gone.mp4", 5400)
	now := models.Now()
	require.NoError(t, db.Model(gone).UpdateColumn("deleted_at", now).Error)

	c, err := Parse("")
	require.NoError(t, err)

	var files []models.MediaFile
	require.NoError(t, c.Apply(db.Model(&models.MediaFile{}), "/media/movies").Find(&files).Error)
	require.Len(t, files, 1)
	assert.Equal(t, kept.ID, files[0].ID)
}

func TestApply_LimitOffset(t *testing.T) {
	db := testutil.NewTestDB(t)
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4"} {
		testutil.MakeMediaFile(t, db, "/media/movies/"+name, 5400)
	}

	c, err := Parse(`{"order_by": "file_name", "order": "ASC", "limit": 2, "offset": 1}`)
	require.NoError(t, err)

	var files []models.MediaFile
	require.NoError(t, c.Apply(db.Model(&models.MediaFile{}), "/media/movies").Find(&files).Error)
	require.Len(t, files, 2)
	assert.Equal(t, "b.mp4", files[0].FileName)
	assert.Equal(t, "c.mp4", files[1].FileName)
}

func TestApply_InAndNullOperators(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.MakeMediaFile(t, db, "/media/movies/h264.mp4", 5400)
	unprobed := testutil.MakeMediaFile(t, db, "/media/movies/unprobed.mp4", 5400)
	require.NoError(t, db.Model(unprobed).UpdateColumn("duration", nil).Error)

	c, err := Parse(`{"where": [{"field": "duration", "operator": "is_null"}]}`)
	require.NoError(t, err)

	var files []models.MediaFile
	require.NoError(t, c.Apply(db.Model(&models.MediaFile{}), "/media/movies").Find(&files).Error)
	require.Len(t, files, 1)
	assert.Equal(t, unprobed.ID, files[0].ID)

	c, err = Parse(`{"where": [{"field": "file_name", "operator": "in", "value": ["h264.mp4", "missing.mp4"]}]}`)
	require.NoError(t, err)

	files = nil
	require.NoError(t, c.Apply(db.Model(&models.MediaFile{}), "/media/movies").Find(&files).Error)
	require.Len(t, files, 1)
	assert.Equal(t, "h264.mp4", files[0].FileName)
}
