// Package blobstore archives uploaded import files (statements, screenshots)
// so a batch can be re-examined after it was committed.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrDisabled is returned by Get on the no-op store.
var ErrDisabled = errors.New("blob archive disabled")

// Store archives import uploads.
type Store interface {
	// Put stores r under key and returns a URI that Get accepts.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ObjectKey returns the archive key for an upload in a batch.
func ObjectKey(batchID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("imports", batchID, name)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Noop discards uploads. Used when no bucket is configured.
type Noop struct{}

func (Noop) Put(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "", err
}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

func (Noop) List(context.Context, string) ([]string, error) { return nil, nil }

func (Noop) Close() error { return nil }
