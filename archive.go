package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/slog"
)

const ArchiveFilename = "all_photos.zip"

// Archive is the set of images listed for one zip export.
type Archive struct {
	svc   *Service
	names []string
}

// NewArchive lists the images to export. Nothing is read until WriteTo.
func (s *Service) NewArchive(ctx context.Context) (*Archive, error) {
	names, err := s.images.ListImageFiles(ctx)
	if err != nil {
		return nil, err
	}

	return &Archive{svc: s, names: names}, nil
}

// WriteArchive streams a zip with every image currently in the image store,
// each under its own filename.
func (s *Service) WriteArchive(ctx context.Context, w io.Writer) error {
	a, err := s.NewArchive(ctx)
	if err != nil {
		return err
	}

	return a.WriteTo(ctx, w)
}

// WriteTo streams the listed images into w one at a time.
func (a *Archive) WriteTo(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, name := range a.names {
		if err := a.svc.addToArchive(ctx, zw, name); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	slog.Debug("Wrote an image archive", "files", len(a.names))

	return nil
}

func (s *Service) addToArchive(ctx context.Context, zw *zip.Writer, name string) error {
	r, err := s.images.OpenImage(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// OpenImage returns the bytes of one stored image.
func (s *Service) OpenImage(ctx context.Context, filename string) (io.ReadCloser, error) {
	return s.images.OpenImage(ctx, filename)
}
