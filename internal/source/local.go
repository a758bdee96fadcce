package source

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/logging"
)

var log = logging.Component("source")

// Local reads granules from a directory of NetCDF files, bypassing the
// search API.
type Local struct {
	dir string
}

// NewLocal returns a source over the *.nc files under dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// List globs the directory for granule files, sorted by name.
func (l *Local) List(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.nc"))
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", l.dir)
	}
	sort.Strings(matches)

	log.Info("listed local granules", "dir", l.dir, "count", len(matches))
	return matches, nil
}

// Load decodes a granule file in place.
func (l *Local) Load(ctx context.Context, url string) (*granule.Dataset, error) {
	return granule.Read(url, url)
}
