package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc     *Service
	records *CSVStore
	images  *DiskImageStore
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	records, err := NewCSVStore(filepath.Join(dir, "users.csv"), filepath.Join(dir, "photos.csv"))
	require.NoError(t, err)

	images, err := NewDiskImageStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	return &testEnv{
		svc:     NewService(records, images),
		records: records,
		images:  images,
		dir:     dir,
	}
}

func (e *testEnv) uploadsDir() string {
	return filepath.Join(e.dir, "uploads")
}

func testImage(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestService_RegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.svc.Register(ctx, "Ana"))
	assert.NoError(t, env.svc.Register(ctx, "Ana"))
	assert.NoError(t, env.svc.Register(ctx, "ana"))

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []User{{Name: "Ana"}, {Name: "ana"}}, users)

	assert.ErrorIs(t, env.svc.Register(ctx, ""), ErrValidation)
}

func TestService_UploadCreatesRecordsAndFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := testImage(t)

	const n = 5
	filenames := make(map[string]bool)
	for i := 0; i < n; i++ {
		photo, err := env.svc.Upload(ctx, "Ana", []string{"Ana", " Beto "}, data)
		require.NoError(t, err)
		assert.Equal(t, "Ana", photo.UploadedBy)
		assert.Equal(t, []string{"Ana", "Beto"}, photo.Tags)
		assert.Regexp(t, `^\d{14}-[0-9a-f-]{36}\.jpg$`, photo.Filename)
		filenames[photo.Filename] = true
	}
	assert.Len(t, filenames, n, "uploads within one second must not collide")

	photos, err := env.svc.ListPhotos(ctx)
	require.NoError(t, err)
	assert.Len(t, photos, n)

	entries, err := os.ReadDir(env.uploadsDir())
	require.NoError(t, err)
	assert.Len(t, entries, n)

	stored, err := os.ReadFile(filepath.Join(env.uploadsDir(), photos[0].Filename))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestService_UploadFilename(t *testing.T) {
	env := newTestEnv(t)
	env.svc.now = func() time.Time { return time.Date(2024, 3, 9, 21, 5, 7, 0, time.UTC) }
	env.svc.newID = func() (uuid.UUID, error) {
		return uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), nil
	}

	photo, err := env.svc.Upload(context.Background(), "Ana", nil, testImage(t))
	require.NoError(t, err)
	assert.Equal(t, "20240309210507-6ba7b810-9dad-11d1-80b4-00c04fd430c8.jpg", photo.Filename)
	assert.Empty(t, photo.Tags)
}

type failingRecordStore struct {
	RecordStore
}

func (failingRecordStore) AppendPhoto(context.Context, Photo) error {
	return ErrStorage
}

func TestService_UploadRollsBackImage(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(failingRecordStore{RecordStore: env.records}, env.images)

	_, err := svc.Upload(context.Background(), "Ana", []string{"Ana"}, testImage(t))
	assert.ErrorIs(t, err, ErrStorage)

	entries, err := os.ReadDir(env.uploadsDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_DeletePhoto(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Upload(ctx, "Ana", []string{"Ana"}, testImage(t))
	require.NoError(t, err)
	second, err := env.svc.Upload(ctx, "Beto", []string{"Beto"}, testImage(t))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeletePhoto(ctx, first.Filename))

	assert.NoFileExists(t, filepath.Join(env.uploadsDir(), first.Filename))
	assert.FileExists(t, filepath.Join(env.uploadsDir(), second.Filename))

	photos, err := env.svc.ListPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Photo{second}, photos)

	rankings, err := env.svc.Rankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rankings.TotalPhotos)
	assert.Equal(t, []RankEntry{{Name: "Beto", Count: 1}}, rankings.Uploads)
	assert.Equal(t, []RankEntry{{Name: "Beto", Count: 1}}, rankings.Appearances)

	assert.ErrorIs(t, env.svc.DeletePhoto(ctx, first.Filename), ErrNotFound)
}

func TestService_DeletePhotoWithMissingImageKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	photo, err := env.svc.Upload(ctx, "Ana", nil, testImage(t))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.uploadsDir(), photo.Filename)))

	assert.ErrorIs(t, env.svc.DeletePhoto(ctx, photo.Filename), ErrNotFound)

	photos, err := env.svc.ListPhotos(ctx)
	require.NoError(t, err)
	assert.Len(t, photos, 1)
}

func TestService_DeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, "Ana"))
	require.NoError(t, env.svc.Register(ctx, "Beto"))
	_, err := env.svc.Upload(ctx, "Beto", []string{"Ana", "Beto"}, testImage(t))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteUser(ctx, "Beto"))

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []User{{Name: "Ana"}}, users)

	photos, err := env.svc.ListPhotos(ctx)
	require.NoError(t, err)
	assert.Len(t, photos, 1, "photos of a deleted user are kept")

	assert.ErrorIs(t, env.svc.DeleteUser(ctx, "Beto"), ErrNotFound)
}

func TestService_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ana, err := env.svc.Login(ctx, "Ana")
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, "Beto")
	require.NoError(t, err)

	_, err = env.svc.Upload(ctx, ana.CurrentUser, []string{"Ana", "Beto"}, testImage(t))
	require.NoError(t, err)

	rankings, err := env.svc.Rankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Rankings{
		TotalPhotos: 1,
		Uploads:     []RankEntry{{Name: "Ana", Count: 1}},
		Appearances: []RankEntry{{Name: "Ana", Count: 1}, {Name: "Beto", Count: 1}},
	}, rankings)
}

func TestService_Gallery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	byAna, err := env.svc.Upload(ctx, "Ana", []string{"Beto"}, testImage(t))
	require.NoError(t, err)
	byBeto, err := env.svc.Upload(ctx, "Beto", []string{"Ana"}, testImage(t))
	require.NoError(t, err)
	byCaro, err := env.svc.Upload(ctx, "Caro", []string{"Caro"}, testImage(t))
	require.NoError(t, err)

	items, err := env.svc.Gallery(ctx, "Ana")
	require.NoError(t, err)
	assert.Equal(t, []GalleryItem{
		{Photo: byAna, Uploaded: true},
		{Photo: byBeto, Tagged: true},
		{Photo: byCaro},
	}, items)
}

func TestService_WriteArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := testImage(t)

	var names []string
	for i := 0; i < 3; i++ {
		photo, err := env.svc.Upload(ctx, "Ana", nil, data)
		require.NoError(t, err)
		names = append(names, photo.Filename)
	}

	var buf bytes.Buffer
	require.NoError(t, env.svc.WriteArchive(ctx, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var archived []string
	for _, f := range zr.File {
		archived = append(archived, f.Name)

		r, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(r)
		r.Close()
		require.NoError(t, err)
		assert.Equal(t, data, b)
	}
	assert.ElementsMatch(t, names, archived)
}

func TestService_WriteArchiveEmpty(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	require.NoError(t, env.svc.WriteArchive(context.Background(), &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestService_StorageErrorsPropagate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.dir, "photos.csv")))

	_, err := env.svc.Rankings(context.Background())
	assert.True(t, errors.Is(err, ErrStorage))
}
