package store

import (
	"fmt"
	"time"

	"github.com/icefield/velocube/internal/granule"
)

// metaFile is the self-describing metadata written next to the segments.
const metaFile = "meta.json"

// timeLayout is the layout of the creation/update timestamps.
const timeLayout = "02-01-2006 15:04:05"

// EncodingSpec fixes the on-disk representation of one variable. The table
// is written once, on the first batch, and reused verbatim by every later
// append.
type EncodingSpec struct {
	DType string `json:"dtype"`

	// FillValue is the explicit fill marker; nil declares the variable
	// strictly non-nullable (no implicit fill).
	FillValue *float64 `json:"_FillValue"`

	MissingValue *float64 `json:"missing_value,omitempty"`
	Compression  string   `json:"compression,omitempty"`
	Units        string   `json:"units,omitempty"`
}

// Meta is the store-level metadata: provenance, grid axes, the fixed
// encoding table and the run's rejection lists.
type Meta struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Institution     string `json:"institution"`
	SoftwareVersion string `json:"datacube_software_version"`
	DateCreated     string `json:"date_created"`
	DateUpdated     string `json:"date_updated"`

	Projection string `json:"projection"`
	Longitude  string `json:"longitude"`
	Latitude   string `json:"latitude"`

	X []float64 `json:"x"`
	Y []float64 `json:"y"`

	// GridMapping names the CF grid mapping shared by every record;
	// MappingAttrs is the projection descriptor copied from the first
	// accepted granule.
	GridMapping  string         `json:"grid_mapping"`
	MappingAttrs map[string]any `json:"mapping"`

	ParameterFile    string `json:"autoRIFT_parameter_file"`
	TimeStandardImg1 string `json:"time_standard_img1"`
	TimeStandardImg2 string `json:"time_standard_img2"`

	RecordCount int      `json:"record_count"`
	Segments    []string `json:"segments"`

	Encoding map[string]EncodingSpec `json:"encoding"`

	SkippedEmpty           []string            `json:"skipped_empty_data"`
	SkippedDuplicate       []string            `json:"skipped_duplicate_middle_date"`
	SkippedWrongProjection map[string][]string `json:"skipped_wrong_projection"`
}

// NewMeta builds the store metadata fixed on first write.
func NewMeta(epsg int, lon, lat float64, x, y []float64) *Meta {
	now := time.Now().Format(timeLayout)
	return &Meta{
		Title:           "datacube of image-pair surface velocities",
		Author:          "velocube",
		Institution:     "icefield",
		SoftwareVersion: Version,
		DateCreated:     now,
		DateUpdated:     now,
		Projection:      fmt.Sprintf("%d", epsg),
		Longitude:       fmt.Sprintf("%.2f", lon),
		Latitude:        fmt.Sprintf("%.2f", lat),
		X:               x,
		Y:               y,
		Encoding:        defaultEncoding(),
	}
}

// defaultEncoding is the one-time encoding table: velocity-family grids as
// short with the shared missing value and compression, chip sizes as
// ushort, the mask as ubyte, counts and the shift flag as long, and the
// metadata variables with fill explicitly absent.
func defaultEncoding() map[string]EncodingSpec {
	missing := float64(granule.MissingValue)
	zero := float64(granule.MissingByte)

	enc := make(map[string]EncodingSpec)

	for _, name := range []string{
		granule.VarV, granule.VarVError,
		granule.VarVX, granule.VarVY,
		granule.VarVA, granule.VarVR,
		granule.VarVXP, granule.VarVYP,
		granule.VarVP, granule.VarVPError,
	} {
		enc[name] = EncodingSpec{
			DType:        "short",
			FillValue:    &missing,
			MissingValue: &missing,
			Compression:  "zstd",
			Units:        "m/y",
		}
	}

	for _, comp := range granule.VelocityComponents {
		for _, suffix := range granule.ScalarSuffixes {
			enc[granule.ScalarName(comp, suffix)] = EncodingSpec{
				DType:     "double",
				FillValue: &missing,
				Units:     "m/y",
			}
		}
	}

	enc[granule.VarChipSizeHeight] = EncodingSpec{
		DType: "ushort", FillValue: &zero, Compression: "zstd",
	}
	enc[granule.VarChipSizeWidth] = EncodingSpec{
		DType: "ushort", FillValue: &zero, Compression: "zstd",
	}
	enc[granule.VarInterpMask] = EncodingSpec{
		DType: "ubyte", FillValue: &zero, Compression: "zstd", Units: "binary",
	}

	enc[granule.AttrFlagStableShift] = EncodingSpec{DType: "long", FillValue: &zero}
	enc[granule.AttrStableCount] = EncodingSpec{DType: "long"}
	enc[granule.AttrStableCountSlow] = EncodingSpec{DType: "long"}
	enc[granule.AttrStableCountMask] = EncodingSpec{DType: "long"}
	enc[granule.AttrMapScaleCorr] = EncodingSpec{DType: "byte", FillValue: &zero}

	// Metadata variables are strictly non-nullable: fill explicitly
	// absent.
	for _, name := range []string{
		granule.CoordMidDate,
		granule.AttrMissionImg1, granule.AttrSensorImg1, granule.AttrSatelliteImg1,
		granule.AttrMissionImg2, granule.AttrSensorImg2, granule.AttrSatelliteImg2,
		granule.AttrAcqDateImg1, granule.AttrAcqDateImg2,
		granule.AttrDateCenter, granule.AttrDateDt,
		granule.AttrROIValidPercent, granule.AttrSoftwareVersion,
	} {
		enc[name] = EncodingSpec{DType: typeOfMetaVar(name), FillValue: nil}
	}

	return enc
}

func typeOfMetaVar(name string) string {
	switch name {
	case granule.CoordMidDate,
		granule.AttrAcqDateImg1, granule.AttrAcqDateImg2,
		granule.AttrDateCenter:
		return "timestamp[ms]"
	case granule.AttrDateDt, granule.AttrROIValidPercent:
		return "double"
	default:
		return "string"
	}
}
