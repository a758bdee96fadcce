package granule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/icefield/velocube/internal/errors"
)

// Dataset is one opened granule: its spatial axes, its data variables and
// its dataset-level attributes. Var data is held as float32 with NaN for
// missing cells regardless of the on-disk integer encoding.
type Dataset struct {
	URL string

	// X and Y are the granule's native axes, strictly monotonic.
	X []float64
	Y []float64

	// Vars maps variable name to its data and attributes. Projection
	// descriptor variables and img_pair_info carry attributes only.
	Vars map[string]*Var

	// Attrs are dataset-level attributes.
	Attrs map[string]any
}

// Var is one granule variable. Data is row-major over (Y, X) and empty for
// attribute-only variables.
type Var struct {
	Data  []float32
	Attrs map[string]any
}

// Has reports whether the dataset carries the named variable.
func (d *Dataset) Has(name string) bool {
	_, ok := d.Vars[name]
	return ok
}

// Attr returns the named attribute of the named variable.
func (d *Dataset) Attr(varName, attrName string) (any, bool) {
	v, ok := d.Vars[varName]
	if !ok {
		return nil, false
	}
	val, ok := v.Attrs[attrName]
	return val, ok
}

// FloatAttr returns a variable attribute coerced to float64. Integer and
// single-element slice values unwrap; anything else fails.
func (d *Dataset) FloatAttr(varName, attrName string) (float64, bool, error) {
	raw, ok := d.Attr(varName, attrName)
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, true, errors.Wrapf(err, "%s.%s in %s", varName, attrName, d.URL)
	}
	return f, true, nil
}

// StringAttr returns a variable attribute coerced to string.
func (d *Dataset) StringAttr(varName, attrName string) (string, bool) {
	raw, ok := d.Attr(varName, attrName)
	if !ok {
		return "", false
	}
	return toString(raw), true
}

// RequireStringAttr is StringAttr for attributes that every generation
// defines; absence is a malformed granule.
func (d *Dataset) RequireStringAttr(varName, attrName string) (string, error) {
	s, ok := d.StringAttr(varName, attrName)
	if !ok {
		return "", errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", varName, attrName, d.URL)
	}
	return s, nil
}

// DateAttr parses a variable attribute as a date. Three layouts occur in
// the wild: bare dates ("20200617"), date-time ("20200617T00:00:00"), and a
// malformed double-T form some Sentinel-2 granules carry
// ("20190215T205541T00:00:00") whose first segment holds the real time.
func (d *Dataset) DateAttr(varName, attrName string) (time.Time, bool, error) {
	raw, ok := d.StringAttr(varName, attrName)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, true, errors.Wrapf(err,
			"%s.%s in %s", varName, attrName, d.URL)
	}
	return t, true, nil
}

// ParseDate parses the date layouts granule attributes use.
func ParseDate(value string) (time.Time, error) {
	tokens := strings.Split(value, "T")
	switch {
	case len(tokens) == 3:
		// Repair the malformed double-T form: the second token is the
		// time as HHMMSS.
		hms := tokens[1]
		if len(hms) < 6 {
			return time.Time{}, errors.Wrapf(errors.ErrMalformedDate, "%q", value)
		}
		repaired := tokens[0] + "T" + hms[0:2] + ":" + hms[2:4] + ":" + hms[4:6]
		t, err := time.Parse("20060102T15:04:05", repaired)
		if err != nil {
			return time.Time{}, errors.Wrapf(errors.ErrMalformedDate, "%q", value)
		}
		return t, nil

	case len(value) == 8:
		t, err := time.Parse("20060102", value)
		if err != nil {
			return time.Time{}, errors.Wrapf(errors.ErrMalformedDate, "%q", value)
		}
		return t, nil

	case len(value) > 8:
		t, err := time.Parse("20060102T15:04:05", value)
		if err != nil {
			return time.Time{}, errors.Wrapf(errors.ErrMalformedDate, "%q", value)
		}
		return t, nil

	default:
		return time.Time{}, errors.Wrapf(errors.ErrMalformedDate, "%q", value)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", x)
		}
		return f, nil
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	}
	return 0, fmt.Errorf("unsupported attribute type %T", v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		if len(x) == 1 {
			return x[0]
		}
	}
	return fmt.Sprintf("%v", v)
}
