package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// ErrTemplateNotFound is returned when no template is registered under a name.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateRenderer produces printable documents from named templates. Callers
// must check TemplateSpec.RequiredFields before calling Render.
type TemplateRenderer interface {
	// Template returns the declaration of the named template or
	// ErrTemplateNotFound.
	Template(name string) (model.TemplateSpec, error)

	// Render fills the named template with fields and returns the document
	// bytes and their content type.
	Render(ctx context.Context, name string, fields map[string]string) ([]byte, string, error)
}

// DocumentStore keeps rendered documents for later download.
type DocumentStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error

	// URL returns a time-limited download link for key.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
