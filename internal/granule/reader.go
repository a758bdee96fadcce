package granule

import (
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/icefield/velocube/internal/errors"
)

// attrFillValue is the NetCDF fill attribute checked alongside
// missing_value when decoding integer variables.
const attrFillValue = "_FillValue"

// Read opens a granule file and loads the variables the cube can use into
// an in-memory Dataset. Integer-encoded variables are decoded to float32
// with NaN at fill positions; unknown variables are ignored.
func Read(path, url string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open granule %s", url)
	}
	defer nc.Close()

	ds := &Dataset{
		URL:   url,
		Vars:  make(map[string]*Var),
		Attrs: attrMapToGo(nc.Attributes()),
	}

	if ds.X, err = axisValues(nc, CoordX); err != nil {
		return nil, errors.Wrapf(err, "read %s axis of %s", CoordX, url)
	}
	if ds.Y, err = axisValues(nc, CoordY); err != nil {
		return nil, errors.Wrapf(err, "read %s axis of %s", CoordY, url)
	}

	wanted := make(map[string]bool, len(GridVars)+4)
	for _, name := range GridVars {
		wanted[name] = true
	}
	for _, name := range []string{
		VarImgPairInfo, VarMapping, VarUTMProjection, VarPolarStereographic,
	} {
		wanted[name] = true
	}

	for _, name := range nc.ListVariables() {
		if !wanted[name] {
			continue
		}

		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, errors.Wrapf(err, "read variable %s of %s", name, url)
		}

		v := &Var{Attrs: attrMapToGo(vg.Attributes())}

		// Descriptor and img_pair_info variables carry attributes only.
		if isGridVar(name) {
			raw, err := vg.Values()
			if err != nil {
				return nil, errors.Wrapf(err, "read variable %s of %s", name, url)
			}
			v.Data, err = decodeGrid(raw, fillOf(v.Attrs))
			if err != nil {
				return nil, errors.Wrapf(err, "decode variable %s of %s", name, url)
			}
		}

		ds.Vars[name] = v
	}

	return ds, nil
}

func isGridVar(name string) bool {
	for _, g := range GridVars {
		if g == name {
			return true
		}
	}
	return false
}

// fillOf resolves the variable's fill marker from missing_value or
// _FillValue; NaN when neither is set.
func fillOf(attrs map[string]any) float64 {
	for _, name := range []string{AttrMissingValue, attrFillValue} {
		if raw, ok := attrs[name]; ok {
			if f, err := toFloat(raw); err == nil {
				return f
			}
		}
	}
	return math.NaN()
}

func axisValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, err
	}

	switch vals := raw.(type) {
	case []float64:
		return vals, nil
	case []float32:
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedSchema,
			"axis type %T", raw)
	}
}

// decodeGrid flattens one 2-D variable to row-major float32 with NaN at
// fill positions.
func decodeGrid(raw any, fill float64) ([]float32, error) {
	switch rows := raw.(type) {
	case [][]float32:
		return flatten(rows, fill), nil
	case [][]float64:
		return flatten(rows, fill), nil
	case [][]int16:
		return flatten(rows, fill), nil
	case [][]uint16:
		return flatten(rows, fill), nil
	case [][]int8:
		return flatten(rows, fill), nil
	case [][]uint8:
		return flatten(rows, fill), nil
	case [][]int32:
		return flatten(rows, fill), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedSchema,
			"grid type %T", raw)
	}
}

func flatten[T int8 | uint8 | int16 | uint16 | int32 | float32 | float64](rows [][]T, fill float64) []float32 {
	if len(rows) == 0 {
		return nil
	}

	out := make([]float32, 0, len(rows)*len(rows[0]))
	nan := float32(math.NaN())
	hasFill := !math.IsNaN(fill)

	for _, row := range rows {
		for _, v := range row {
			if hasFill && float64(v) == fill {
				out = append(out, nan)
				continue
			}
			f := float32(v)
			if math.IsNaN(float64(f)) {
				out = append(out, nan)
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func attrMapToGo(attrs api.AttributeMap) map[string]any {
	out := make(map[string]any)
	if attrs == nil {
		return out
	}
	for _, key := range attrs.Keys() {
		if val, ok := attrs.Get(key); ok {
			out[key] = val
		}
	}
	return out
}
