package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/exp/slog"
)

var (
	usersHeader  = []string{"name"}
	photosHeader = []string{"filename", "uploaded_by", "tags"}
)

// RecordStore keeps the Users and Photos record sets. Append adds a single
// record; Save replaces the whole set and is only used by deletions.
type RecordStore interface {
	LoadUsers(ctx context.Context) ([]User, error)
	LoadPhotos(ctx context.Context) ([]Photo, error)
	AppendUser(ctx context.Context, user User) error
	AppendPhoto(ctx context.Context, photo Photo) error
	SaveUsers(ctx context.Context, users []User) error
	SavePhotos(ctx context.Context, photos []Photo) error
}

// ImageStore keeps the image bytes of every photo under its filename.
type ImageStore interface {
	StoreImage(ctx context.Context, filename string, data []byte) error
	DeleteImage(ctx context.Context, filename string) error
	ListImageFiles(ctx context.Context) ([]string, error)
	OpenImage(ctx context.Context, filename string) (io.ReadCloser, error)
}

// CSVStore is the flat-file RecordStore: users.csv and photos.csv, each with
// a header row. One mutex serializes access to both files inside a process;
// separate processes sharing the files are not coordinated.
type CSVStore struct {
	usersPath  string
	photosPath string
	mu         sync.Mutex
}

func NewCSVStore(usersPath, photosPath string) (*CSVStore, error) {
	s := &CSVStore{usersPath: usersPath, photosPath: photosPath}

	if err := initCSV(usersPath, usersHeader); err != nil {
		return nil, err
	}
	if err := initCSV(photosPath, photosHeader); err != nil {
		return nil, err
	}

	return s, nil
}

// initCSV writes the header to a missing or empty record file.
func initCSV(path string, header []string) error {
	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := writeCSV(path, header, nil); err != nil {
		return err
	}

	slog.Info("Initialized an empty record file", "path", path)

	return nil
}

func (s *CSVStore) LoadUsers(_ context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSV(s.usersPath)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, User{Name: column(row, 0)})
	}

	return users, nil
}

func (s *CSVStore) LoadPhotos(_ context.Context) ([]Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSV(s.photosPath)
	if err != nil {
		return nil, err
	}

	photos := make([]Photo, 0, len(rows))
	for _, row := range rows {
		photos = append(photos, Photo{
			Filename:   column(row, 0),
			UploadedBy: column(row, 1),
			Tags:       SplitTags(column(row, 2)),
		})
	}

	return photos, nil
}

func (s *CSVStore) AppendUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendCSV(s.usersPath, usersHeader, userRow(user))
}

func (s *CSVStore) AppendPhoto(_ context.Context, photo Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendCSV(s.photosPath, photosHeader, photoRow(photo))
}

func (s *CSVStore) SaveUsers(_ context.Context, users []User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow(u))
	}

	return writeCSV(s.usersPath, usersHeader, rows)
}

func (s *CSVStore) SavePhotos(_ context.Context, photos []Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(photos))
	for _, p := range photos {
		rows = append(rows, photoRow(p))
	}

	return writeCSV(s.photosPath, photosHeader, rows)
}

func userRow(u User) []string {
	return []string{u.Name}
}

func photoRow(p Photo) []string {
	return []string{p.Filename, p.UploadedBy, JoinTags(p.Tags)}
}

func column(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}

	return ""
}

// readCSV returns every row after the header.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, path, err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[1:], nil
}

// appendCSV adds row to path, writing header first when the file was
// truncated after the store was opened.
func appendCSV(path string, header, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o660)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("%w: append %s: %w", ErrStorage, path, err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrStorage, path, err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrStorage, path, err)
	}

	return nil
}

// writeCSV replaces path with header and rows through a temporary file in the
// same directory, so readers never see a half-written file.
func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// DiskImageStore keeps one file per photo inside dir.
type DiskImageStore struct {
	dir string
}

func NewDiskImageStore(dir string) (*DiskImageStore, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &DiskImageStore{dir: dir}, nil
}

func (d *DiskImageStore) StoreImage(_ context.Context, filename string, data []byte) error {
	fpath, err := d.path(filename)
	if err != nil {
		return err
	}

	if err := os.WriteFile(fpath, data, 0o660); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

func (d *DiskImageStore) DeleteImage(_ context.Context, filename string) error {
	fpath, err := d.path(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(fpath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: image %s", ErrNotFound, filename)
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

func (d *DiskImageStore) ListImageFiles(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

func (d *DiskImageStore) OpenImage(_ context.Context, filename string) (io.ReadCloser, error) {
	fpath, err := d.path(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fpath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: image %s", ErrNotFound, filename)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return f, nil
}

func (d *DiskImageStore) path(filename string) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}

	return filepath.Join(d.dir, filename), nil
}

// validateFilename accepts plain base names only, without quotes or control
// characters.
func validateFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\"`) || filepath.Base(filename) != filename ||
		strings.IndexFunc(filename, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: bad image name %q", ErrValidation, filename)
	}

	return nil
}
