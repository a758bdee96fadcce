package granule

import (
	"math"
	"time"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/logging"
)

var normLog = logging.Component("normalize")

// Grid2D is one cropped 2-D variable, row-major over (Y, X). Missing cells
// are NaN regardless of the variable's on-disk integer encoding.
type Grid2D struct {
	Rows int
	Cols int
	Data []float32
}

// Meta carries the per-pair metadata promoted from img_pair_info and the
// dataset attributes, plus the values the assembler checks for cross-record
// consistency.
type Meta struct {
	MissionImg1   string
	SensorImg1    string
	SatelliteImg1 string
	MissionImg2   string
	SensorImg2    string
	SatelliteImg2 string

	AcquisitionDateImg1 time.Time
	AcquisitionDateImg2 time.Time
	DateCenter          time.Time
	DateDt              float64
	ROIValidPercentage  float64
	SoftwareVersion     string

	// GridMappingValue, ParameterFile and the time standards must be
	// identical across every record of a batch.
	GridMappingValue string
	ParameterFile    string
	TimeStandardImg1 string
	TimeStandardImg2 string

	// MappingAttrs is the projection descriptor's full attribute set,
	// written once to the store on first write.
	MappingAttrs map[string]any
}

// Record is one accepted, cropped granule pending assembly. It is owned by
// the accumulator until consumed; the assembler nils each grid as soon as
// its column has been concatenated.
type Record struct {
	URL     string
	MidDate time.Time
	EPSG    int
	Gen     Generation

	// X and Y are the cropped axes in native order.
	X []float64
	Y []float64

	// Grids holds the cropped 2-D variables present in this granule.
	Grids map[string]*Grid2D

	// Scalars holds the promoted per-pair calibration scalars present in
	// this granule, keyed by promoted variable name (e.g. vx_error).
	// Absent keys are filled with the missing-value marker at assembly.
	Scalars map[string]float64

	Meta Meta
}

// Result classifies one normalized granule: an accepted Record, or a
// rejection (empty region or wrong projection) with Record nil.
type Result struct {
	URL     string
	Empty   bool
	EPSG    int
	MidDate time.Time
	Record  *Record
}

// Normalizer crops granules to a target grid and resolves their schema
// generation. A Normalizer is stateless apart from the immutable grid and
// is safe for concurrent use.
type Normalizer struct {
	grid *grid.Grid
}

// NewNormalizer returns a Normalizer targeting the given grid.
func NewNormalizer(g *grid.Grid) *Normalizer {
	return &Normalizer{grid: g}
}

// Normalize turns one opened granule into a cube-ready record or a
// rejection. Malformed granules (unknown schema, missing required
// variables or attributes, foreign cell size) fail with an error rather
// than being coerced into a best-effort record.
func (n *Normalizer) Normalize(ds *Dataset) (*Result, error) {
	gen, mappingVar, epsg, err := DetectSchema(ds)
	if err != nil {
		return nil, err
	}

	res := &Result{URL: ds.URL, EPSG: epsg}

	if epsg != n.grid.EPSG {
		// Wrong projection: rejected, never fatal.
		return res, nil
	}

	center, ok, err := ds.DateAttr(VarImgPairInfo, AttrDateCenter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", VarImgPairInfo, AttrDateCenter, ds.URL)
	}

	dateDt, ok, err := ds.FloatAttr(VarImgPairInfo, AttrDateDt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", VarImgPairInfo, AttrDateDt, ds.URL)
	}

	// Re-express the day separation as milliseconds past the center date
	// so granules sharing a nominal center date stay distinguishable on
	// the record axis.
	res.MidDate = center.Add(time.Duration(int64(dateDt)) * time.Millisecond)

	xIdx := cropIndices(ds.X, n.grid.XBounds)
	yIdx := cropIndices(ds.Y, n.grid.YBounds)
	if len(xIdx) == 0 || len(yIdx) == 0 {
		res.Empty = true
		return res, nil
	}

	for _, name := range RequiredGridVars {
		if !ds.Has(name) {
			return nil, errors.Wrapf(errors.ErrMissingVariable,
				"%s in %s", name, ds.URL)
		}
	}

	v := cropGrid(ds.Vars[VarV], len(ds.X), xIdx, yIdx)
	if !anyValid(v.Data) {
		res.Empty = true
		return res, nil
	}

	// A granule on a foreign grid resolution must not silently corrupt
	// the cube.
	if len(ds.X) > 1 {
		cell := math.Abs(ds.X[1] - ds.X[0])
		if cell != n.grid.CellSize {
			return nil, errors.Wrapf(errors.ErrCellSizeMismatch,
				"%v vs. expected %v for %s", cell, n.grid.CellSize, ds.URL)
		}
	}

	rec := &Record{
		URL:     ds.URL,
		MidDate: res.MidDate,
		EPSG:    epsg,
		Gen:     gen,
		X:       cropAxis(ds.X, xIdx),
		Y:       cropAxis(ds.Y, yIdx),
		Grids:   map[string]*Grid2D{VarV: v},
		Scalars: make(map[string]float64),
	}

	for _, name := range GridVars {
		if name == VarV || !ds.Has(name) {
			continue
		}
		rec.Grids[name] = cropGrid(ds.Vars[name], len(ds.X), xIdx, yIdx)
	}

	if err := n.promoteScalars(ds, gen, rec); err != nil {
		return nil, err
	}
	if err := n.extractMeta(ds, gen, mappingVar, rec); err != nil {
		return nil, err
	}

	res.Record = rec
	normLog.Debug("granule accepted",
		"url", ds.URL, "generation", gen.String(),
		"rows", len(rec.Y), "cols", len(rec.X))

	return res, nil
}

// promoteScalars lifts the per-pair calibration scalars out of the velocity
// variables' attributes, exactly once per promoted name, resolving the
// legacy stable_rmse alias for vx/vy.
func (n *Normalizer) promoteScalars(ds *Dataset, gen Generation, rec *Record) error {
	spec := gen.spec()

	for _, comp := range VelocityComponents {
		if !ds.Has(comp) {
			continue
		}

		for _, suffix := range ScalarSuffixes {
			name := ScalarName(comp, suffix)
			val, ok, err := ds.FloatAttr(comp, name)
			if err != nil {
				return err
			}
			if !ok && suffix == "error" && spec.stableRMSEAlias &&
				(comp == VarVX || comp == VarVY) {
				val, ok, err = ds.FloatAttr(comp, AttrStableRMSE)
				if err != nil {
					return err
				}
			}
			if ok {
				rec.Scalars[name] = val
			}
		}
	}

	// Singletons shared by all velocity components: capture the first
	// occurrence only.
	for _, name := range []string{
		AttrStableCount,
		AttrStableCountSlow,
		AttrStableCountMask,
		AttrFlagStableShift,
	} {
		for _, comp := range VelocityComponents {
			if !ds.Has(comp) {
				continue
			}
			val, ok, err := ds.FloatAttr(comp, name)
			if err != nil {
				return err
			}
			if ok {
				rec.Scalars[name] = val
				break
			}
		}
	}

	// map_scale_corrected rides on v in the legacy optical format only.
	if val, ok, err := ds.FloatAttr(VarV, AttrMapScaleCorr); err != nil {
		return err
	} else if ok {
		rec.Scalars[AttrMapScaleCorr] = val
	}

	return nil
}

// extractMeta promotes the img_pair_info attributes and the cross-record
// consistency values. All of them are mandatory: a granule missing any is
// malformed.
func (n *Normalizer) extractMeta(ds *Dataset, gen Generation, mappingVar string, rec *Record) error {
	var err error
	m := &rec.Meta

	required := []struct {
		dst  *string
		attr string
	}{
		{&m.MissionImg1, AttrMissionImg1},
		{&m.SensorImg1, AttrSensorImg1},
		{&m.SatelliteImg1, AttrSatelliteImg1},
		{&m.MissionImg2, AttrMissionImg2},
		{&m.SensorImg2, AttrSensorImg2},
		{&m.SatelliteImg2, AttrSatelliteImg2},
		{&m.TimeStandardImg1, AttrTimeStandardImg1},
		{&m.TimeStandardImg2, AttrTimeStandardImg2},
	}
	for _, r := range required {
		if *r.dst, err = ds.RequireStringAttr(VarImgPairInfo, r.attr); err != nil {
			return err
		}
	}

	if m.DateCenter, err = requireDate(ds, AttrDateCenter); err != nil {
		return err
	}

	spec := gen.spec()
	if m.AcquisitionDateImg1, err = requireDateAny(ds, spec.acqDateAttrs1); err != nil {
		return err
	}
	if m.AcquisitionDateImg2, err = requireDateAny(ds, spec.acqDateAttrs2); err != nil {
		return err
	}

	var ok bool
	if m.DateDt, ok, err = ds.FloatAttr(VarImgPairInfo, AttrDateDt); err != nil {
		return err
	} else if !ok {
		return errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", VarImgPairInfo, AttrDateDt, ds.URL)
	}
	if m.ROIValidPercentage, ok, err = ds.FloatAttr(VarImgPairInfo, AttrROIValidPercent); err != nil {
		return err
	} else if !ok {
		return errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", VarImgPairInfo, AttrROIValidPercent, ds.URL)
	}

	// Dataset-level attributes.
	if raw, ok := ds.Attrs[AttrSoftwareVersion]; ok {
		m.SoftwareVersion = toString(raw)
	} else {
		return errors.Wrapf(errors.ErrMissingAttribute, "%s in %s", AttrSoftwareVersion, ds.URL)
	}
	if raw, ok := ds.Attrs[AttrParameterFile]; ok {
		m.ParameterFile = toString(raw)
	} else {
		return errors.Wrapf(errors.ErrMissingAttribute, "%s in %s", AttrParameterFile, ds.URL)
	}

	// The grid mapping value the assembler checks for consistency: the
	// descriptor's grid_mapping_name in the current format, the v
	// variable's grid_mapping reference otherwise.
	if mappingVar == VarMapping {
		if m.GridMappingValue, err = ds.RequireStringAttr(mappingVar, AttrGridMappingName); err != nil {
			return err
		}
	} else {
		if m.GridMappingValue, err = ds.RequireStringAttr(VarV, AttrGridMapping); err != nil {
			return err
		}
	}

	// Keep the descriptor's full attribute set for the store's once-only
	// projection variable.
	m.MappingAttrs = make(map[string]any, len(ds.Vars[mappingVar].Attrs))
	for k, v := range ds.Vars[mappingVar].Attrs {
		m.MappingAttrs[k] = v
	}

	return nil
}

func requireDate(ds *Dataset, attr string) (time.Time, error) {
	t, ok, err := ds.DateAttr(VarImgPairInfo, attr)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", VarImgPairInfo, attr, ds.URL)
	}
	return t, nil
}

func requireDateAny(ds *Dataset, attrs []string) (time.Time, error) {
	for _, attr := range attrs {
		t, ok, err := ds.DateAttr(VarImgPairInfo, attr)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(errors.ErrMissingAttribute,
		"%s.%v in %s", VarImgPairInfo, attrs, ds.URL)
}

// cropIndices returns the indices of axis values inside b, endpoints
// included. Native axes are monotonic, so the result is contiguous.
func cropIndices(axis []float64, b grid.Bounds) []int {
	idx := make([]int, 0, len(axis))
	for i, v := range axis {
		if b.Contains(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

func cropAxis(axis []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = axis[j]
	}
	return out
}

// cropGrid extracts the (yIdx, xIdx) sub-grid of a row-major variable.
func cropGrid(v *Var, cols int, xIdx, yIdx []int) *Grid2D {
	out := &Grid2D{
		Rows: len(yIdx),
		Cols: len(xIdx),
		Data: make([]float32, len(yIdx)*len(xIdx)),
	}
	for r, y := range yIdx {
		row := y * cols
		for c, x := range xIdx {
			out.Data[r*out.Cols+c] = v.Data[row+x]
		}
	}
	return out
}

func anyValid(data []float32) bool {
	for _, v := range data {
		if !math.IsNaN(float64(v)) {
			return true
		}
	}
	return false
}
