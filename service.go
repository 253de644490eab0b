package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

const filenameTimeLayout = "20060102150405"

// Service holds the stores every operation reads through and writes through.
type Service struct {
	records RecordStore
	images  ImageStore

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

func NewService(records RecordStore, images ImageStore) *Service {
	return &Service{
		records: records,
		images:  images,
		now:     time.Now,
		newID:   uuid.NewRandom,
	}
}

// Register adds name to the users unless a user with exactly that name
// already exists. Repeat calls are a no-op.
func (s *Service) Register(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty user name", ErrValidation)
	}

	users, err := s.records.LoadUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.Name == name {
			return nil
		}
	}

	if err := s.records.AppendUser(ctx, User{Name: name}); err != nil {
		return err
	}

	slog.Info("Registered a user", "name", name)

	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.records.LoadUsers(ctx)
}

// DeleteUser removes the user named exactly name. Photos uploaded by or
// tagging that user are kept.
func (s *Service) DeleteUser(ctx context.Context, name string) error {
	users, err := s.records.LoadUsers(ctx)
	if err != nil {
		return err
	}

	kept := make([]User, 0, len(users))
	for _, u := range users {
		if u.Name != name {
			kept = append(kept, u)
		}
	}

	if len(kept) == len(users) {
		return fmt.Errorf("%w: user %q", ErrNotFound, name)
	}

	if err := s.records.SaveUsers(ctx, kept); err != nil {
		return err
	}

	slog.Info("Deleted a user", "name", name)

	return nil
}

// Upload stores data as a new photo by uploader tagged with tags. The image is
// written first; if the record cannot be appended the image is removed again.
func (s *Service) Upload(ctx context.Context, uploader string, tags []string, data []byte) (Photo, error) {
	filename, err := s.newFilename()
	if err != nil {
		return Photo{}, err
	}

	photo := Photo{
		Filename:   filename,
		UploadedBy: uploader,
		Tags:       CleanTags(tags),
	}

	if err := s.images.StoreImage(ctx, filename, data); err != nil {
		return Photo{}, err
	}

	if err := s.records.AppendPhoto(ctx, photo); err != nil {
		if rmErr := s.images.DeleteImage(ctx, filename); rmErr != nil {
			slog.Error("Failed to roll back an image", "filename", filename, "error", rmErr)
		}
		return Photo{}, err
	}

	slog.Debug("Saved a photo", "filename", filename, "uploaded_by", uploader, "tags", photo.Tags)

	return photo, nil
}

// DeletePhoto removes the image and then the record. A missing record fails
// before anything is touched; a missing image fails and leaves the record.
func (s *Service) DeletePhoto(ctx context.Context, filename string) error {
	photos, err := s.records.LoadPhotos(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i, p := range photos {
		if p.Filename == filename {
			idx = i
			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("%w: photo %s", ErrNotFound, filename)
	}

	if err := s.images.DeleteImage(ctx, filename); err != nil {
		return err
	}

	kept := append(photos[:idx:idx], photos[idx+1:]...)
	if err := s.records.SavePhotos(ctx, kept); err != nil {
		return err
	}

	slog.Info("Deleted a photo", "filename", filename)

	return nil
}

func (s *Service) ListPhotos(ctx context.Context) ([]Photo, error) {
	return s.records.LoadPhotos(ctx)
}

// Gallery lists every photo in stored order, flagged for viewer.
func (s *Service) Gallery(ctx context.Context, viewer string) ([]GalleryItem, error) {
	photos, err := s.records.LoadPhotos(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]GalleryItem, 0, len(photos))
	for _, p := range photos {
		items = append(items, GalleryItem{
			Photo:    p,
			Tagged:   viewer != "" && p.HasTag(viewer),
			Uploaded: viewer != "" && p.UploadedBy == viewer,
		})
	}

	return items, nil
}

type Rankings struct {
	TotalPhotos int         `json:"total_photos"`
	Uploads     []RankEntry `json:"uploads"`
	Appearances []RankEntry `json:"appearances"`
}

func (s *Service) Rankings(ctx context.Context) (Rankings, error) {
	photos, err := s.records.LoadPhotos(ctx)
	if err != nil {
		return Rankings{}, err
	}

	return Rankings{
		TotalPhotos: len(photos),
		Uploads:     UploadRanking(photos),
		Appearances: AppearanceRanking(photos),
	}, nil
}

func (s *Service) newFilename() (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", err
	}

	return s.now().Format(filenameTimeLayout) + "-" + id.String() + ".jpg", nil
}
