package store

import (
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/icefield/velocube/internal/errors"
)

// ReadAll loads every record of the store in append order. Intended for
// verification and small cubes; analytical access goes through Query.
func ReadAll(dir string) ([]CubeRow, *Meta, error) {
	s, err := Open(dir)
	if err != nil {
		return nil, nil, err
	}

	rows := make([]CubeRow, 0, s.meta.RecordCount)
	for _, name := range s.meta.Segments {
		segRows, err := parquet.ReadFile[CubeRow](
			filepath.Join(dir, segmentsDir, name))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read segment %s", name)
		}
		rows = append(rows, segRows...)
	}

	return rows, s.meta, nil
}
