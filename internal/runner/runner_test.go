package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/icefield/velocube/internal/cube"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/grid"
	"github.com/icefield/velocube/internal/store"
)

// fakeSource serves in-memory datasets keyed by URL.
type fakeSource struct {
	urls     []string
	datasets map[string]*granule.Dataset
}

func (f *fakeSource) List(ctx context.Context) ([]string, error) {
	return f.urls, nil
}

func (f *fakeSource) Load(ctx context.Context, url string) (*granule.Dataset, error) {
	ds, ok := f.datasets[url]
	if !ok {
		return nil, fmt.Errorf("unknown granule %q", url)
	}
	return ds, nil
}

func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	ring := [][2]float64{{0, 0}, {480, 0}, {480, 480}, {0, 480}, {0, 0}}
	g, err := grid.Build(ring, 32628, 240)
	if err != nil {
		t.Fatalf("grid.Build() error = %v", err)
	}
	return g
}

// pairName builds a distinct image-pair filename per index so candidates
// survive deduplication.
func pairName(i int) string {
	return fmt.Sprintf(
		"LC08_L1TP_%06d_20200101_20200301_01_T1_X_LC08_L1TP_%06d_20200201_20200302_01_T1_G0240V01_P%03d.nc",
		i, i, i)
}

// testDataset builds a minimal accepted granule on the 3x3 test grid.
func testDataset(url string, v float32) *granule.Dataset {
	axes := []float64{0, 240, 480}
	cells := 9
	data := func(val float32) []float32 {
		out := make([]float32, cells)
		for i := range out {
			out[i] = val
		}
		return out
	}

	return &granule.Dataset{
		URL: url,
		X:   axes,
		Y:   axes,
		Vars: map[string]*granule.Var{
			granule.VarUTMProjection: {Attrs: map[string]any{
				granule.AttrSpatialEPSG: float64(32628),
			}},
			granule.VarV: {
				Data:  data(v),
				Attrs: map[string]any{granule.AttrGridMapping: granule.VarUTMProjection},
			},
			granule.VarVX:             {Data: data(v - 10)},
			granule.VarVY:             {Data: data(v + 10)},
			granule.VarChipSizeHeight: {Data: data(32)},
			granule.VarChipSizeWidth:  {Data: data(32)},
			granule.VarInterpMask:     {Data: data(1)},
			granule.VarImgPairInfo: {Attrs: map[string]any{
				granule.AttrMissionImg1:      "L",
				granule.AttrSensorImg1:       "OLI",
				granule.AttrSatelliteImg1:    "8.0",
				granule.AttrMissionImg2:      "L",
				granule.AttrSensorImg2:       "OLI",
				granule.AttrSatelliteImg2:    "8.0",
				granule.AttrTimeStandardImg1: "UTC",
				granule.AttrTimeStandardImg2: "UTC",
				granule.AttrLegacyAcqImg1:    "20200101",
				granule.AttrLegacyAcqImg2:    "20200201",
				granule.AttrDateCenter:       "20200116",
				granule.AttrDateDt:           float64(31),
				granule.AttrROIValidPercent:  float64(90),
			}},
		},
		Attrs: map[string]any{
			granule.AttrSoftwareVersion: "1.0.8",
			granule.AttrParameterFile:   "params.shp",
		},
	}
}

func newFakeSource(n int) *fakeSource {
	src := &fakeSource{datasets: make(map[string]*granule.Dataset)}
	for i := 0; i < n; i++ {
		url := pairName(i)
		src.urls = append(src.urls, url)
		src.datasets[url] = testDataset(url, float32(100+i))
	}
	return src
}

func runAndRead(t *testing.T, src *fakeSource, opts Options) ([]store.CubeRow, *store.Meta) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "cube")
	g := testGrid(t)
	asm := cube.NewAssembler(dir, g, 2)

	r := New(src, g, asm, opts)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := asm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rows, meta, err := store.ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return rows, meta
}

func TestRunSequential(t *testing.T) {
	rows, meta := runAndRead(t, newFakeSource(3), Options{BatchSize: 2, Workers: 1})

	if got, want := len(rows), 3; got != want {
		t.Fatalf("len(rows) = %d, want %d", got, want)
	}
	// Batch size 2 over 3 granules yields two segments.
	if got, want := len(meta.Segments), 2; got != want {
		t.Errorf("len(Segments) = %d, want %d", got, want)
	}
	for i := range rows {
		if got, want := rows[i].URL, pairName(i); got != want {
			t.Errorf("rows[%d].URL = %q, want %q", i, got, want)
		}
	}
}

func TestRunParallelMatchesSequentialOrder(t *testing.T) {
	seq, _ := runAndRead(t, newFakeSource(5), Options{BatchSize: 2, Workers: 1})
	par, _ := runAndRead(t, newFakeSource(5), Options{BatchSize: 2, Workers: 3, Parallel: true})

	if len(par) != len(seq) {
		t.Fatalf("parallel rows = %d, sequential rows = %d", len(par), len(seq))
	}
	for i := range seq {
		if par[i].URL != seq[i].URL {
			t.Errorf("rows[%d]: parallel %q, sequential %q", i, par[i].URL, seq[i].URL)
		}
		if par[i].MidDate != seq[i].MidDate {
			t.Errorf("rows[%d]: parallel mid_date %d, sequential %d",
				i, par[i].MidDate, seq[i].MidDate)
		}
	}
}

func TestRunMaxGranules(t *testing.T) {
	rows, _ := runAndRead(t, newFakeSource(5),
		Options{BatchSize: 10, Workers: 1, MaxGranules: 2})

	if got, want := len(rows), 2; got != want {
		t.Errorf("len(rows) = %d, want %d", got, want)
	}
}

func TestRunClassifiesRejections(t *testing.T) {
	// Three candidates: one accepted, one in a foreign projection, one
	// entirely outside the cube's bounding box.
	src := newFakeSource(3)

	foreign := src.datasets[src.urls[1]]
	foreign.Vars[granule.VarUTMProjection].Attrs[granule.AttrSpatialEPSG] = float64(32629)

	outside := src.datasets[src.urls[2]]
	outside.X = []float64{100000, 100240, 100480}
	outside.Y = []float64{100000, 100240, 100480}

	rows, meta := runAndRead(t, src, Options{BatchSize: 10, Workers: 1})

	if got, want := len(rows), 1; got != want {
		t.Fatalf("len(rows) = %d, want %d", got, want)
	}
	if got, want := rows[0].URL, src.urls[0]; got != want {
		t.Errorf("rows[0].URL = %q, want %q", got, want)
	}
	if got := meta.SkippedWrongProjection["32629"]; len(got) != 1 || got[0] != src.urls[1] {
		t.Errorf(`SkippedWrongProjection["32629"] = %v, want [%s]`, got, src.urls[1])
	}
	if got := meta.SkippedEmpty; len(got) != 1 || got[0] != src.urls[2] {
		t.Errorf("SkippedEmpty = %v, want [%s]", got, src.urls[2])
	}
}

func TestRunLoadFailureAborts(t *testing.T) {
	src := newFakeSource(2)
	delete(src.datasets, src.urls[1])

	dir := filepath.Join(t.TempDir(), "cube")
	g := testGrid(t)
	asm := cube.NewAssembler(dir, g, 2)
	defer asm.Close()

	r := New(src, g, asm, Options{BatchSize: 10, Workers: 1})
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run() with failing load: expected error, got nil")
	}
}
