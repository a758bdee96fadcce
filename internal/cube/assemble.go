package cube

import (
	"math"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/logging"
	"github.com/icefield/velocube/internal/store"
)

var asmLog = logging.Component("assembler")

// Assembler merges batches of accumulated records into store segments.
// The first flush creates the store, fixing the encoding table and the
// projection descriptor; later flushes append along the record axis.
type Assembler struct {
	dir   string
	grid  *grid.Grid
	level int

	st *store.Store
}

// NewAssembler returns an assembler writing to the given store directory.
func NewAssembler(dir string, g *grid.Grid, compressionLevel int) *Assembler {
	return &Assembler{dir: dir, grid: g, level: compressionLevel}
}

// Store returns the underlying store, nil before the first flush.
func (a *Assembler) Store() *store.Store {
	return a.st
}

// Close closes the underlying store if one was created.
func (a *Assembler) Close() error {
	if a.st == nil {
		return nil
	}
	return a.st.Close()
}

// Flush assembles the accumulator's pending batch and appends it. The
// accumulator is cleared as a side effect; its rejection lists are copied
// into the store metadata. An empty batch is a no-op.
func (a *Assembler) Flush(acc *Accumulator) error {
	recs, dates, urls := acc.Batch()
	if len(recs) == 0 {
		asmLog.Info("no records to combine")
		return nil
	}

	asmLog.Info("combining records", "count", len(recs), "dir", a.dir)

	if err := checkConsistency(recs); err != nil {
		return err
	}

	if a.st == nil {
		st, err := a.createStore(recs[0])
		if err != nil {
			return err
		}
		a.st = st
	}

	rows := make([]store.CubeRow, len(recs))
	for i, rec := range recs {
		fillRowHeader(&rows[i], rec, dates[i].UnixMilli(), urls[i])
	}

	// One variable at a time: build the variable's column across the
	// whole batch, then release that variable's raw per-record data
	// before touching the next, bounding resident memory to one batch of
	// records plus one encoded column.
	cells := len(a.grid.X) * len(a.grid.Y)

	for _, name := range velocityGridVars {
		for i, rec := range recs {
			col := rows[i].GridColumn(name)
			g := rec.Grids[name]
			if g == nil {
				*col = store.MissingVelocity(cells)
				continue
			}
			*col = a.embedVelocity(g, rec)
			rec.Grids[name] = nil
		}
	}

	for i, rec := range recs {
		h := rec.Grids[granule.VarChipSizeHeight]
		if chipUnset(h) {
			// Legacy optical granules may leave chip_size_height
			// entirely unset; fall back to chip_size_width.
			asmLog.Warn("using chip_size_width in place of chip_size_height",
				"url", rec.URL)
			h = rec.Grids[granule.VarChipSizeWidth]
		}
		rows[i].ChipSizeHeight = a.embedChip(h, rec)
		rec.Grids[granule.VarChipSizeHeight] = nil
	}
	for i, rec := range recs {
		rows[i].ChipSizeWidth = a.embedChip(rec.Grids[granule.VarChipSizeWidth], rec)
		rec.Grids[granule.VarChipSizeWidth] = nil
	}
	for i, rec := range recs {
		rows[i].InterpMask = a.embedMask(rec.Grids[granule.VarInterpMask], rec)
		rec.Grids[granule.VarInterpMask] = nil
	}

	empty, duplicate, wrongProj := acc.Rejections()
	a.st.SetRejections(empty, duplicate, wrongProj)

	if err := a.st.Append(rows); err != nil {
		return err
	}

	acc.Clear()
	return nil
}

// velocityGridVars are the short-encoded 2-D variables, in assembly order.
var velocityGridVars = []string{
	granule.VarV,
	granule.VarVError,
	granule.VarVX,
	granule.VarVY,
	granule.VarVA,
	granule.VarVR,
	granule.VarVXP,
	granule.VarVYP,
	granule.VarVP,
	granule.VarVPError,
}

// checkConsistency verifies the batch does not mix incompatible processing
// runs. A mismatch is fatal rather than silently picking one value.
func checkConsistency(recs []*granule.Record) error {
	first := recs[0].Meta
	for _, rec := range recs[1:] {
		m := rec.Meta
		if m.GridMappingValue != first.GridMappingValue {
			return errors.Wrapf(errors.ErrInconsistentMapping,
				"%q vs %q (%s)", m.GridMappingValue, first.GridMappingValue, rec.URL)
		}
		if m.ParameterFile != first.ParameterFile {
			return errors.Wrapf(errors.ErrInconsistentParamFile,
				"%q vs %q (%s)", m.ParameterFile, first.ParameterFile, rec.URL)
		}
		if m.TimeStandardImg1 != first.TimeStandardImg1 ||
			m.TimeStandardImg2 != first.TimeStandardImg2 {
			return errors.Wrapf(errors.ErrInconsistentTimeStandard,
				"%q/%q vs %q/%q (%s)",
				m.TimeStandardImg1, m.TimeStandardImg2,
				first.TimeStandardImg1, first.TimeStandardImg2, rec.URL)
		}
	}
	return nil
}

// createStore fixes the store metadata from the grid and the first
// record's projection descriptor and consistency values.
func (a *Assembler) createStore(first *granule.Record) (*store.Store, error) {
	meta := store.NewMeta(a.grid.EPSG, a.grid.Lon, a.grid.Lat, a.grid.X, a.grid.Y)
	meta.GridMapping = first.Meta.GridMappingValue
	meta.MappingAttrs = first.Meta.MappingAttrs
	meta.ParameterFile = first.Meta.ParameterFile
	meta.TimeStandardImg1 = first.Meta.TimeStandardImg1
	meta.TimeStandardImg2 = first.Meta.TimeStandardImg2

	return store.Create(a.dir, meta, a.level)
}

// fillRowHeader populates the per-record scalar and metadata columns.
func fillRowHeader(row *store.CubeRow, rec *granule.Record, midDateMs int64, url string) {
	row.MidDate = midDateMs
	row.URL = url

	// Promoted calibration scalars default to the missing-value marker;
	// the shift flag and byte fields default to zero fill.
	for _, comp := range granule.VelocityComponents {
		for _, suffix := range granule.ScalarSuffixes {
			name := granule.ScalarName(comp, suffix)
			col := row.ScalarColumn(name)
			if val, ok := rec.Scalars[name]; ok {
				*col = val
			} else {
				*col = granule.MissingValue
			}
		}
	}

	row.FlagStableShift = int64(scalarOr(rec, granule.AttrFlagStableShift, 0))
	row.StableCount = int64(scalarOr(rec, granule.AttrStableCount, granule.MissingValue))
	row.StableCountSlow = int64(scalarOr(rec, granule.AttrStableCountSlow, granule.MissingValue))
	row.StableCountMask = int64(scalarOr(rec, granule.AttrStableCountMask, granule.MissingValue))
	row.MapScaleCorrected = int32(scalarOr(rec, granule.AttrMapScaleCorr, granule.MissingByte))

	m := rec.Meta
	row.MissionImg1 = m.MissionImg1
	row.SensorImg1 = m.SensorImg1
	row.SatelliteImg1 = m.SatelliteImg1
	row.MissionImg2 = m.MissionImg2
	row.SensorImg2 = m.SensorImg2
	row.SatelliteImg2 = m.SatelliteImg2
	row.AcquisitionDateImg1 = m.AcquisitionDateImg1.UnixMilli()
	row.AcquisitionDateImg2 = m.AcquisitionDateImg2.UnixMilli()
	row.DateCenter = m.DateCenter.UnixMilli()
	row.DateDt = m.DateDt
	row.ROIValidPercentage = m.ROIValidPercentage
	row.SoftwareVersion = m.SoftwareVersion
}

func scalarOr(rec *granule.Record, name string, fallback float64) float64 {
	if val, ok := rec.Scalars[name]; ok {
		return val
	}
	return fallback
}

// embedVelocity places a record's cropped grid into the full cube frame,
// missing elsewhere, encoded as short.
func (a *Assembler) embedVelocity(g *granule.Grid2D, rec *granule.Record) []int16 {
	out := store.MissingVelocity(len(a.grid.X) * len(a.grid.Y))
	a.embed(g, rec, func(dst, src int) {
		if f := g.Data[src]; !math.IsNaN(float64(f)) {
			out[dst] = int16(math.Round(float64(f)))
		}
	})
	return out
}

func (a *Assembler) embedChip(g *granule.Grid2D, rec *granule.Record) []uint16 {
	out := make([]uint16, len(a.grid.X)*len(a.grid.Y))
	a.embed(g, rec, func(dst, src int) {
		if f := g.Data[src]; !math.IsNaN(float64(f)) {
			out[dst] = uint16(math.Round(float64(f)))
		}
	})
	return out
}

func (a *Assembler) embedMask(g *granule.Grid2D, rec *granule.Record) []uint8 {
	out := make([]uint8, len(a.grid.X)*len(a.grid.Y))
	a.embed(g, rec, func(dst, src int) {
		if f := g.Data[src]; !math.IsNaN(float64(f)) {
			out[dst] = uint8(math.Round(float64(f)))
		}
	})
	return out
}

// embed maps every cell of the record's cropped grid onto the cube frame
// by coordinate, invoking set(dstIndex, srcIndex) for cells that land
// inside the frame.
func (a *Assembler) embed(g *granule.Grid2D, rec *granule.Record, set func(dst, src int)) {
	if g == nil {
		return
	}

	nx := len(a.grid.X)
	ny := len(a.grid.Y)
	cell := a.grid.CellSize

	for r, y := range rec.Y {
		// The cube's axes ascend; native granule axes may descend, so
		// cells are mapped by coordinate, not by position.
		row := int(math.Round((y - a.grid.Y[0]) / cell))
		if row < 0 || row >= ny {
			continue
		}
		for c, x := range rec.X {
			col := int(math.Round((x - a.grid.X[0]) / cell))
			if col < 0 || col >= nx {
				continue
			}
			set(row*nx+col, r*g.Cols+c)
		}
	}
}

func chipUnset(g *granule.Grid2D) bool {
	if g == nil {
		return true
	}
	for _, v := range g.Data {
		if float64(v) != granule.ChipNoValue {
			return false
		}
	}
	return true
}
