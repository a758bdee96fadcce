package granule

import (
	"testing"
	"time"

	"github.com/icefield/velocube/internal/errors"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{
			name:  "bare date",
			value: "20200617",
			want:  time.Date(2020, 6, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "date time",
			value: "20200617T11:32:51",
			want:  time.Date(2020, 6, 17, 11, 32, 51, 0, time.UTC),
		},
		{
			name:  "malformed double T carries time in second token",
			value: "20190215T205541T00:00:00",
			want:  time.Date(2019, 2, 15, 20, 55, 41, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.value)
			if err != nil {
				t.Fatalf("ParseDate(%q) error = %v", tt.value, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseDateMalformed(t *testing.T) {
	for _, value := range []string{"", "2020", "notadate", "20190215T20T00:00:00"} {
		if _, err := ParseDate(value); !errors.Is(err, errors.ErrMalformedDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrMalformedDate", value, err)
		}
	}
}

func TestFloatAttrCoercion(t *testing.T) {
	ds := &Dataset{
		URL: "test.nc",
		Vars: map[string]*Var{
			"v": {Attrs: map[string]any{
				"f64":    float64(1.5),
				"f32":    float32(2.5),
				"i32":    int32(7),
				"str":    " 42 ",
				"single": []float64{3.5},
				"multi":  []float64{1, 2},
			}},
		},
	}

	tests := []struct {
		attr string
		want float64
	}{
		{"f64", 1.5},
		{"f32", 2.5},
		{"i32", 7},
		{"str", 42},
		{"single", 3.5},
	}
	for _, tt := range tests {
		got, ok, err := ds.FloatAttr("v", tt.attr)
		if err != nil || !ok {
			t.Fatalf("FloatAttr(%q) = (%v, %v, %v)", tt.attr, got, ok, err)
		}
		if got != tt.want {
			t.Errorf("FloatAttr(%q) = %v, want %v", tt.attr, got, tt.want)
		}
	}

	if _, ok, err := ds.FloatAttr("v", "multi"); !ok || err == nil {
		t.Errorf("FloatAttr(multi): expected coercion error, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := ds.FloatAttr("v", "absent"); ok {
		t.Error("FloatAttr(absent): expected ok=false")
	}
}
