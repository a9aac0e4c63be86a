package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Uploader persists run artifacts: raw terminal status responses and the summary marker.
type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

type localUploader struct {
	rootDir string
}

func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	dst := filepath.Join(u.rootDir, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	// Write next to the destination and rename so a reader never sees a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	_ = os.Chmod(tmp.Name(), 0o644)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + abs, nil
}

// mirroredUploader writes to a primary uploader and then copies the object to every
// mirror concurrently. The primary location is returned.
type mirroredUploader struct {
	primary Uploader
	mirrors []Uploader
}

func NewMirroredUploader(primary Uploader, mirrors ...Uploader) Uploader {
	var ms []Uploader
	for _, m := range mirrors {
		if m != nil {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		return primary
	}
	return &mirroredUploader{primary: primary, mirrors: ms}
}

func (u *mirroredUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	loc, err := u.primary.UploadBytes(ctx, objectPath, contentType, data)
	if err != nil {
		return "", err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range u.mirrors {
		m := m
		g.Go(func() error {
			if _, err := m.UploadBytes(gctx, objectPath, contentType, data); err != nil {
				return fmt.Errorf("mirror %s: %w", objectPath, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return loc, err
	}
	return loc, nil
}
