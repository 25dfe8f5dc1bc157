// Package store persists named scripts in codec text form.
package store

import (
	"context"
	"fmt"
	"strings"

	"echoclicker/internal/models"
)

// Store saves scripts by name. Load and Delete of an unknown name fail with
// models.ErrNotFound.
type Store interface {
	Save(ctx context.Context, name, text string) (models.Script, error)
	Load(ctx context.Context, name string) (models.Script, error)
	Delete(ctx context.Context, name string) error
	// List returns every script ordered by name.
	List(ctx context.Context) ([]models.Script, error)
	Close() error
}

const maxNameLength = 200

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: script name is required", models.ErrInvalidRequest)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: script name longer than %d bytes", models.ErrInvalidRequest, maxNameLength)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: script %q", models.ErrNotFound, name)
}
