// Package source loads granule files from local directories or S3.
package source

import (
	"context"

	"github.com/icefield/velocube/internal/granule"
)

// Source lists candidate granules and loads them as decoded datasets.
type Source interface {
	// List returns the candidate granule URLs in discovery order.
	List(ctx context.Context) ([]string, error)

	// Load fetches and decodes one granule.
	Load(ctx context.Context, url string) (*granule.Dataset, error)
}
