package granule

import (
	"math"
	"testing"
	"time"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/grid"
)

const testEPSG = 32628

// testGrid is a 5x5 cube grid over (0,0)-(960,960) at 240 m spacing.
func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	ring := [][2]float64{{0, 0}, {960, 0}, {960, 960}, {0, 960}, {0, 0}}
	g, err := grid.Build(ring, testEPSG, 240)
	if err != nil {
		t.Fatalf("grid.Build() error = %v", err)
	}
	return g
}

func testAxis(start float64, n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = start + float64(i)*240
	}
	return vals
}

func constGrid(n int, val float32) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = val
	}
	return data
}

// legacyDataset builds a complete legacy-optical granule whose axes match
// the test grid exactly.
func legacyDataset() *Dataset {
	x := testAxis(0, 5)
	y := testAxis(0, 5)
	cells := len(x) * len(y)

	return &Dataset{
		URL: "legacy.nc",
		X:   x,
		Y:   y,
		Vars: map[string]*Var{
			VarUTMProjection: {Attrs: map[string]any{
				AttrSpatialEPSG:     float64(testEPSG),
				AttrGridMappingName: "universal_transverse_mercator",
				"scale_factor_at_central_meridian": 0.9996,
			}},
			VarV: {
				Data: constGrid(cells, 120),
				Attrs: map[string]any{
					AttrGridMapping:  VarUTMProjection,
					AttrMapScaleCorr: float64(1),
				},
			},
			VarVX: {
				Data: constGrid(cells, 80),
				Attrs: map[string]any{
					AttrStableRMSE:      float64(12.5),
					AttrStableShift:     float64(0.1),
					AttrStableCount:     float64(100),
					AttrFlagStableShift: float64(1),
				},
			},
			VarVY: {
				Data:  constGrid(cells, 90),
				Attrs: map[string]any{AttrStableRMSE: float64(13.5)},
			},
			VarChipSizeHeight: {Data: constGrid(cells, 32)},
			VarChipSizeWidth:  {Data: constGrid(cells, 32)},
			VarInterpMask:     {Data: constGrid(cells, 1)},
			VarImgPairInfo: {Attrs: map[string]any{
				AttrMissionImg1:      "L",
				AttrSensorImg1:       "OLI",
				AttrSatelliteImg1:    "8.0",
				AttrMissionImg2:      "L",
				AttrSensorImg2:       "OLI",
				AttrSatelliteImg2:    "8.0",
				AttrTimeStandardImg1: "UTC",
				AttrTimeStandardImg2: "UTC",
				AttrLegacyAcqImg1:    "20200501",
				AttrLegacyAcqImg2:    "20200617",
				AttrDateCenter:       "20200524",
				AttrDateDt:           float64(46),
				AttrROIValidPercent:  float64(87.3),
			}},
		},
		Attrs: map[string]any{
			AttrSoftwareVersion: "1.0.8",
			AttrParameterFile:   "http://its-live-data/autorift_parameters/v001/autorift_landice_0120m.shp",
		},
	}
}

func TestDetectSchema(t *testing.T) {
	ds := legacyDataset()
	gen, mappingVar, epsg, err := DetectSchema(ds)
	if err != nil {
		t.Fatalf("DetectSchema() error = %v", err)
	}
	if gen != LegacyOptical || mappingVar != VarUTMProjection || epsg != testEPSG {
		t.Errorf("DetectSchema() = (%v, %q, %d), want (LegacyOptical, %q, %d)",
			gen, mappingVar, epsg, VarUTMProjection, testEPSG)
	}

	// Radar-geometry variables upgrade the legacy generation.
	ds.Vars[VarVA] = &Var{Data: constGrid(25, 10)}
	if gen, _, _, _ := DetectSchema(ds); gen != Radar {
		t.Errorf("DetectSchema() with va = %v, want Radar", gen)
	}

	// The unified descriptor marks the current generation.
	current := legacyDataset()
	current.Vars[VarMapping] = &Var{Attrs: map[string]any{
		AttrSpatialEPSG:     float64(3413),
		AttrGridMappingName: "polar_stereographic",
	}}
	gen, mappingVar, epsg, err = DetectSchema(current)
	if err != nil {
		t.Fatalf("DetectSchema() error = %v", err)
	}
	if gen != CurrentGeneric || mappingVar != VarMapping || epsg != 3413 {
		t.Errorf("DetectSchema() = (%v, %q, %d), want (CurrentGeneric, mapping, 3413)",
			gen, mappingVar, epsg)
	}
}

func TestDetectSchemaUnsupported(t *testing.T) {
	ds := legacyDataset()
	delete(ds.Vars, VarUTMProjection)
	if _, _, _, err := DetectSchema(ds); !errors.Is(err, errors.ErrUnsupportedSchema) {
		t.Errorf("DetectSchema() error = %v, want ErrUnsupportedSchema", err)
	}

	ds = legacyDataset()
	delete(ds.Vars[VarUTMProjection].Attrs, AttrSpatialEPSG)
	if _, _, _, err := DetectSchema(ds); !errors.Is(err, errors.ErrMissingAttribute) {
		t.Errorf("DetectSchema() without spatial_epsg error = %v, want ErrMissingAttribute", err)
	}
}

func TestNormalizeAccepted(t *testing.T) {
	n := NewNormalizer(testGrid(t))

	res, err := n.Normalize(legacyDataset())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Record == nil {
		t.Fatalf("Normalize() rejected: empty=%v epsg=%d", res.Empty, res.EPSG)
	}

	rec := res.Record
	if rec.Gen != LegacyOptical {
		t.Errorf("Gen = %v, want LegacyOptical", rec.Gen)
	}
	if len(rec.X) != 5 || len(rec.Y) != 5 {
		t.Errorf("cropped axes = %dx%d, want 5x5", len(rec.Y), len(rec.X))
	}

	// The day separation is re-expressed as milliseconds past the center
	// date to keep shared nominal dates distinguishable.
	want := time.Date(2020, 5, 24, 0, 0, 0, 0, time.UTC).Add(46 * time.Millisecond)
	if !rec.MidDate.Equal(want) {
		t.Errorf("MidDate = %v, want %v", rec.MidDate, want)
	}

	// stable_rmse aliases the component error in the legacy generation.
	if got := rec.Scalars[ScalarName(VarVX, "error")]; got != 12.5 {
		t.Errorf("vx_error = %v, want 12.5", got)
	}
	if got := rec.Scalars[ScalarName(VarVY, "error")]; got != 13.5 {
		t.Errorf("vy_error = %v, want 13.5", got)
	}
	if got := rec.Scalars[AttrStableCount]; got != 100 {
		t.Errorf("stable_count = %v, want 100", got)
	}
	if got := rec.Scalars[AttrFlagStableShift]; got != 1 {
		t.Errorf("flag_stable_shift = %v, want 1", got)
	}
	if got := rec.Scalars[AttrMapScaleCorr]; got != 1 {
		t.Errorf("map_scale_corrected = %v, want 1", got)
	}

	m := rec.Meta
	if m.GridMappingValue != VarUTMProjection {
		t.Errorf("GridMappingValue = %q, want %q", m.GridMappingValue, VarUTMProjection)
	}
	if m.SoftwareVersion != "1.0.8" {
		t.Errorf("SoftwareVersion = %q, want 1.0.8", m.SoftwareVersion)
	}
	if got, want := m.AcquisitionDateImg1, date(t, "20200501"); !got.Equal(want) {
		t.Errorf("AcquisitionDateImg1 = %v, want %v", got, want)
	}
	if m.DateDt != 46 || m.ROIValidPercentage != 87.3 {
		t.Errorf("DateDt/ROI = %v/%v, want 46/87.3", m.DateDt, m.ROIValidPercentage)
	}
	if len(m.MappingAttrs) == 0 {
		t.Error("MappingAttrs not captured")
	}
}

func TestNormalizeCrops(t *testing.T) {
	n := NewNormalizer(testGrid(t))

	// A granule extending one cell past every cube edge crops to the cube.
	ds := legacyDataset()
	ds.X = testAxis(-240, 7)
	ds.Y = testAxis(-240, 7)
	for name, v := range ds.Vars {
		if len(v.Data) > 0 {
			ds.Vars[name].Data = constGrid(49, 50)
		}
	}

	res, err := n.Normalize(ds)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Record == nil {
		t.Fatal("Normalize() rejected an overlapping granule")
	}
	if len(res.Record.X) != 5 || len(res.Record.Y) != 5 {
		t.Errorf("cropped axes = %dx%d, want 5x5", len(res.Record.Y), len(res.Record.X))
	}
	if got := res.Record.Grids[VarV]; got.Rows != 5 || got.Cols != 5 || len(got.Data) != 25 {
		t.Errorf("cropped v = %dx%d/%d cells, want 5x5/25", got.Rows, got.Cols, len(got.Data))
	}
}

func TestNormalizeWrongProjection(t *testing.T) {
	n := NewNormalizer(testGrid(t))

	ds := legacyDataset()
	ds.Vars[VarUTMProjection].Attrs[AttrSpatialEPSG] = float64(32629)

	res, err := n.Normalize(ds)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Record != nil || res.Empty {
		t.Errorf("wrong projection: record=%v empty=%v, want rejection", res.Record, res.Empty)
	}
	if res.EPSG != 32629 {
		t.Errorf("EPSG = %d, want 32629", res.EPSG)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	n := NewNormalizer(testGrid(t))

	t.Run("no overlap", func(t *testing.T) {
		ds := legacyDataset()
		ds.X = testAxis(100000, 5)
		ds.Y = testAxis(100000, 5)

		res, err := n.Normalize(ds)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !res.Empty || res.Record != nil {
			t.Errorf("empty=%v record=%v, want empty rejection", res.Empty, res.Record)
		}
	})

	t.Run("all velocity missing", func(t *testing.T) {
		ds := legacyDataset()
		ds.Vars[VarV].Data = constGrid(25, float32(math.NaN()))

		res, err := n.Normalize(ds)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !res.Empty || res.Record != nil {
			t.Errorf("empty=%v record=%v, want empty rejection", res.Empty, res.Record)
		}
	})
}

func TestNormalizeFatal(t *testing.T) {
	n := NewNormalizer(testGrid(t))

	t.Run("cell size mismatch", func(t *testing.T) {
		ds := legacyDataset()
		ds.X = []float64{0, 120, 240, 360, 480}

		_, err := n.Normalize(ds)
		if !errors.Is(err, errors.ErrCellSizeMismatch) {
			t.Errorf("error = %v, want ErrCellSizeMismatch", err)
		}
	})

	t.Run("missing required variable", func(t *testing.T) {
		ds := legacyDataset()
		delete(ds.Vars, VarVX)

		_, err := n.Normalize(ds)
		if !errors.Is(err, errors.ErrMissingVariable) {
			t.Errorf("error = %v, want ErrMissingVariable", err)
		}
	})

	t.Run("missing parameter file", func(t *testing.T) {
		ds := legacyDataset()
		delete(ds.Attrs, AttrParameterFile)

		_, err := n.Normalize(ds)
		if !errors.Is(err, errors.ErrMissingAttribute) {
			t.Errorf("error = %v, want ErrMissingAttribute", err)
		}
	})
}
