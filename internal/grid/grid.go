// Package grid builds the regular coordinate grid for a datacube from its
// bounding polygon and target projection. Building a grid is a pure
// function of its inputs; no I/O happens here.
package grid

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/icefield/velocube/internal/errors"
)

// Bounds is a closed interval on one spatial axis.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the interval, endpoints included.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Grid is the regular coordinate grid of a datacube, plus the cube's
// reference point in longitude/latitude.
type Grid struct {
	// X and Y are the cell-center coordinates, strictly increasing,
	// spaced at CellSize, covering the polygon's bounding box inclusive
	// of both endpoints.
	X []float64
	Y []float64

	// XBounds and YBounds are the polygon's bounding box.
	XBounds Bounds
	YBounds Bounds

	// EPSG is the target projection code.
	EPSG int

	// Lon and Lat locate the bounding-box center in EPSG:4326.
	Lon float64
	Lat float64

	// CellSize is the fixed cell spacing in projection units.
	CellSize float64
}

// Build computes the grid for a closed polygon ring given in the target
// projection. It fails on polygons with fewer than 3 distinct vertices.
func Build(ring [][2]float64, epsg int, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, errors.NewInvalidValue("cell size", cellSize, "must be positive")
	}

	poly, err := polygonFromRing(ring)
	if err != nil {
		return nil, err
	}

	b := poly.Bounds()
	xb := Bounds{Min: b.Min(0), Max: b.Max(0)}
	yb := Bounds{Min: b.Min(1), Max: b.Max(1)}

	g := &Grid{
		X:        axis(xb, cellSize),
		Y:        axis(yb, cellSize),
		XBounds:  xb,
		YBounds:  yb,
		EPSG:     epsg,
		CellSize: cellSize,
	}

	tr, err := ToLonLat(epsg)
	if err != nil {
		return nil, err
	}
	g.Lon, g.Lat = tr((xb.Min+xb.Max)/2, (yb.Min+yb.Max)/2)

	return g, nil
}

// LonLatRing re-projects the polygon ring to longitude/latitude and
// flattens it to the lon1,lat1,lon2,lat2,... form the granule search API
// expects.
func LonLatRing(ring [][2]float64, epsg int) ([]float64, error) {
	tr, err := ToLonLat(epsg)
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, 2*len(ring))
	for _, pt := range ring {
		lon, lat := tr(pt[0], pt[1])
		flat = append(flat, lon, lat)
	}
	return flat, nil
}

// polygonFromRing validates the ring and builds a geometry from it.
func polygonFromRing(ring [][2]float64) (*geom.Polygon, error) {
	distinct := make(map[[2]float64]struct{}, len(ring))
	for _, pt := range ring {
		distinct[pt] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, errors.Wrapf(errors.ErrDegeneratePolygon,
			"%d distinct vertices", len(distinct))
	}

	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, pt := range ring {
		flat = append(flat, pt[0], pt[1])
	}
	// go-geom requires a closed ring
	if ring[0] != ring[len(ring)-1] {
		flat = append(flat, ring[0][0], ring[0][1])
	}

	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil
}

// axis generates cell-center coordinates covering b at the given spacing.
// Endpoints are aligned outward to cell-size multiples so both bounds are
// always covered.
func axis(b Bounds, cell float64) []float64 {
	start := math.Floor(b.Min/cell) * cell
	stop := math.Ceil(b.Max/cell) * cell

	n := int(math.Round((stop-start)/cell)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*cell
	}
	return values
}
