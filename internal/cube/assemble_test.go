package cube

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/store"
)

// testGrid is a 3x3 cube grid over (0,0)-(480,480) at 240 m spacing.
func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	ring := [][2]float64{{0, 0}, {480, 0}, {480, 480}, {0, 480}, {0, 0}}
	g, err := grid.Build(ring, 32628, 240)
	if err != nil {
		t.Fatalf("grid.Build() error = %v", err)
	}
	return g
}

func grid2D(rows, cols int, val float32) *granule.Grid2D {
	g := &granule.Grid2D{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
	for i := range g.Data {
		g.Data[i] = val
	}
	return g
}

// testRecord builds a full-frame accepted record on the 3x3 test grid.
func testRecord(url string, v float32) *granule.Record {
	axes := []float64{0, 240, 480}
	return &granule.Record{
		URL:  url,
		EPSG: 32628,
		X:    axes,
		Y:    axes,
		Grids: map[string]*granule.Grid2D{
			granule.VarV:              grid2D(3, 3, v),
			granule.VarVX:             grid2D(3, 3, v-10),
			granule.VarVY:             grid2D(3, 3, v+10),
			granule.VarChipSizeHeight: grid2D(3, 3, 32),
			granule.VarChipSizeWidth:  grid2D(3, 3, 16),
			granule.VarInterpMask:     grid2D(3, 3, 1),
		},
		Scalars: map[string]float64{
			"vx_error":     12.5,
			"stable_count": 100,
		},
		Meta: granule.Meta{
			MissionImg1:      "L",
			GridMappingValue: "UTM_Projection",
			ParameterFile:    "params.shp",
			TimeStandardImg1: "UTC",
			TimeStandardImg2: "UTC",
			MappingAttrs:     map[string]any{"spatial_epsg": float64(32628)},
		},
	}
}

func testResult(url string, mid time.Time, v float32) *granule.Result {
	rec := testRecord(url, v)
	rec.MidDate = mid
	return &granule.Result{URL: url, EPSG: 32628, MidDate: mid, Record: rec}
}

func TestAssemblerFlush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube")
	asm := NewAssembler(dir, testGrid(t), 2)

	acc := NewAccumulator()
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	acc.Add(testResult("a.nc", t0, 100))
	acc.Add(testResult("b.nc", t0.Add(24*time.Hour), 200))

	if err := asm.Flush(acc); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := asm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := acc.Size(); got != 0 {
		t.Errorf("accumulator size after flush = %d, want 0", got)
	}

	rows, meta, err := store.ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	if got, want := rows[0].MidDate, t0.UnixMilli(); got != want {
		t.Errorf("rows[0].MidDate = %d, want %d", got, want)
	}
	if got, want := rows[0].URL, "a.nc"; got != want {
		t.Errorf("rows[0].URL = %q, want %q", got, want)
	}

	// Present grids embed their values over the whole frame.
	for i, cell := range rows[0].V {
		if cell != 100 {
			t.Fatalf("rows[0].V[%d] = %d, want 100", i, cell)
		}
	}
	if got := rows[1].VX[0]; got != 190 {
		t.Errorf("rows[1].VX[0] = %d, want 190", got)
	}

	// Absent grids come out fully missing.
	for _, cell := range rows[0].VA {
		if cell != int16(granule.MissingValue) {
			t.Fatalf("rows[0].VA cell = %d, want missing", cell)
		}
	}

	if got := rows[0].ChipSizeHeight[0]; got != 32 {
		t.Errorf("ChipSizeHeight[0] = %d, want 32", got)
	}
	if got := rows[0].InterpMask[0]; got != 1 {
		t.Errorf("InterpMask[0] = %d, want 1", got)
	}

	// Promoted scalars: present values carried, absent values filled.
	if got := rows[0].VXErrorScalar; got != 12.5 {
		t.Errorf("VXErrorScalar = %v, want 12.5", got)
	}
	if got := rows[0].VYErrorScalar; got != granule.MissingValue {
		t.Errorf("VYErrorScalar = %v, want missing", got)
	}
	if got := rows[0].StableCount; got != 100 {
		t.Errorf("StableCount = %d, want 100", got)
	}
	if got := rows[0].FlagStableShift; got != 0 {
		t.Errorf("FlagStableShift = %d, want 0", got)
	}

	// The first record fixes the store's projection descriptor.
	if got, want := meta.GridMapping, "UTM_Projection"; got != want {
		t.Errorf("meta.GridMapping = %q, want %q", got, want)
	}
	if got, want := meta.ParameterFile, "params.shp"; got != want {
		t.Errorf("meta.ParameterFile = %q, want %q", got, want)
	}
}

func TestAssemblerEmbedsByCoordinate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube")
	asm := NewAssembler(dir, testGrid(t), 2)

	// A record covering only the cube's top-right cell.
	rec := testRecord("corner.nc", 100)
	rec.X = []float64{480}
	rec.Y = []float64{480}
	for name := range rec.Grids {
		rec.Grids[name] = grid2D(1, 1, 50)
	}
	rec.MidDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	acc := NewAccumulator()
	acc.Add(&granule.Result{URL: rec.URL, EPSG: rec.EPSG, MidDate: rec.MidDate, Record: rec})

	if err := asm.Flush(acc); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	asm.Close()

	rows, _, err := store.ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	// Cell (y=480, x=480) is row 2, column 2 of the 3x3 frame.
	v := rows[0].V
	if got := v[2*3+2]; got != 50 {
		t.Errorf("embedded cell = %d, want 50", got)
	}
	for i, cell := range v {
		if i != 2*3+2 && cell != int16(granule.MissingValue) {
			t.Errorf("v[%d] = %d, want missing", i, cell)
		}
	}
}

func TestAssemblerChipHeightFallback(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube")
	asm := NewAssembler(dir, testGrid(t), 2)

	rec := testRecord("fallback.nc", 100)
	rec.MidDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.Grids[granule.VarChipSizeHeight] = grid2D(3, 3, granule.ChipNoValue)

	acc := NewAccumulator()
	acc.Add(&granule.Result{URL: rec.URL, EPSG: rec.EPSG, MidDate: rec.MidDate, Record: rec})

	if err := asm.Flush(acc); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	asm.Close()

	rows, _, err := store.ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := rows[0].ChipSizeHeight[0]; got != 16 {
		t.Errorf("ChipSizeHeight[0] = %d, want chip_size_width fallback 16", got)
	}
}

func TestAssemblerConsistencyFatal(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*granule.Record)
		wantErr error
	}{
		{
			name:    "grid mapping",
			mutate:  func(r *granule.Record) { r.Meta.GridMappingValue = "Polar_Stereographic" },
			wantErr: errors.ErrInconsistentMapping,
		},
		{
			name:    "parameter file",
			mutate:  func(r *granule.Record) { r.Meta.ParameterFile = "other.shp" },
			wantErr: errors.ErrInconsistentParamFile,
		},
		{
			name:    "time standard",
			mutate:  func(r *granule.Record) { r.Meta.TimeStandardImg2 = "TAI" },
			wantErr: errors.ErrInconsistentTimeStandard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := NewAssembler(filepath.Join(t.TempDir(), "cube"), testGrid(t), 2)
			t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

			acc := NewAccumulator()
			acc.Add(testResult("a.nc", t0, 100))

			bad := testResult("b.nc", t0.Add(time.Hour), 200)
			tt.mutate(bad.Record)
			acc.Add(bad)

			if err := asm.Flush(acc); !errors.Is(err, tt.wantErr) {
				t.Errorf("Flush() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssemblerFlushEmpty(t *testing.T) {
	asm := NewAssembler(filepath.Join(t.TempDir(), "cube"), testGrid(t), 2)

	if err := asm.Flush(NewAccumulator()); err != nil {
		t.Errorf("Flush() with no records error = %v", err)
	}
	if asm.Store() != nil {
		t.Error("empty flush created a store")
	}
}

func TestAssemblerRejectionsPersisted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube")
	asm := NewAssembler(dir, testGrid(t), 2)

	acc := NewAccumulator()
	acc.AddDuplicates([]string{"old.nc"})
	acc.Add(&granule.Result{URL: "empty.nc", Empty: true})
	acc.Add(&granule.Result{URL: "polar.nc", EPSG: 3413})
	acc.Add(testResult("good.nc", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 100))

	if err := asm.Flush(acc); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	asm.Close()

	_, meta, err := store.ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	if got := meta.SkippedEmpty; len(got) != 1 || got[0] != "empty.nc" {
		t.Errorf("SkippedEmpty = %v, want [empty.nc]", got)
	}
	if got := meta.SkippedDuplicate; len(got) != 1 || got[0] != "old.nc" {
		t.Errorf("SkippedDuplicate = %v, want [old.nc]", got)
	}
	if got := meta.SkippedWrongProjection["3413"]; len(got) != 1 || got[0] != "polar.nc" {
		t.Errorf(`SkippedWrongProjection["3413"] = %v, want [polar.nc]`, got)
	}
}

func TestAccumulatorQuantiles(t *testing.T) {
	acc := NewAccumulator()

	if _, ok := acc.Quantile(0.5); ok {
		t.Error("Quantile() before any record: expected ok=false")
	}

	acc.Add(testResult("a.nc", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 100))

	p50, ok := acc.Quantile(0.5)
	if !ok {
		t.Fatal("Quantile() after record: expected ok=true")
	}
	// Every observed cell is 100; the sketch is 1% accurate.
	if math.Abs(p50-100) > 2 {
		t.Errorf("p50 = %v, want ~100", p50)
	}
}
