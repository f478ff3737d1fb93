package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNotImage is returned when a delivery proof is not an image.
	ErrNotImage = errors.New("proof must be an image")
	// ErrObjectNotFound is returned when a stored object does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// ProofStore keeps delivery proof files.
type ProofStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DetectImage sniffs data and returns its MIME type and extension if it is an image.
func DetectImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrNotImage
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", fmt.Errorf("%w: got %s", ErrNotImage, mt.String())
	}
	return mt.String(), mt.Extension(), nil
}

// ProofKey builds the object key for a contract's proof file.
func ProofKey(contractID, ext string) string {
	return fmt.Sprintf("proofs/%s/%s%s", contractID, uuid.NewString(), ext)
}
