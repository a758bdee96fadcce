// Package store persists assembled cube batches as an append-only chunked
// store: a self-describing meta.json next to a segments/ directory holding
// one Parquet file per appended batch. One row is one record (one accepted
// granule); 2-D variables are flattened row-major over (Y, X) at the fixed
// integer widths the encoding table declares.
package store

import (
	"math"

	"github.com/icefield/velocube/internal/granule"
)

// CubeRow is the Parquet schema of one record. Velocity-family variables
// are stored as short with the shared missing-value marker, chip sizes as
// ushort with zero fill, the interpolation mask as ubyte with zero fill.
// Promoted per-pair scalars and metadata ride as plain columns.
type CubeRow struct {
	MidDate int64  `parquet:"mid_date"`
	URL     string `parquet:"original_url_path,zstd"`

	V       []int16 `parquet:"v,zstd"`
	VError  []int16 `parquet:"v_error,zstd"`
	VX      []int16 `parquet:"vx,zstd"`
	VY      []int16 `parquet:"vy,zstd"`
	VA      []int16 `parquet:"va,zstd"`
	VR      []int16 `parquet:"vr,zstd"`
	VXP     []int16 `parquet:"vxp,zstd"`
	VYP     []int16 `parquet:"vyp,zstd"`
	VP      []int16 `parquet:"vp,zstd"`
	VPError []int16 `parquet:"vp_error,zstd"`

	ChipSizeHeight []uint16 `parquet:"chip_size_height,zstd"`
	ChipSizeWidth  []uint16 `parquet:"chip_size_width,zstd"`
	InterpMask     []uint8  `parquet:"interp_mask,zstd"`

	VXErrorScalar     float64 `parquet:"vx_error"`
	VXErrorMask       float64 `parquet:"vx_error_mask"`
	VXErrorModeled    float64 `parquet:"vx_error_modeled"`
	VXErrorSlow       float64 `parquet:"vx_error_slow"`
	VXStableShift     float64 `parquet:"vx_stable_shift"`
	VXStableShiftSlow float64 `parquet:"vx_stable_shift_slow"`
	VXStableShiftMask float64 `parquet:"vx_stable_shift_mask"`

	VYErrorScalar     float64 `parquet:"vy_error"`
	VYErrorMask       float64 `parquet:"vy_error_mask"`
	VYErrorModeled    float64 `parquet:"vy_error_modeled"`
	VYErrorSlow       float64 `parquet:"vy_error_slow"`
	VYStableShift     float64 `parquet:"vy_stable_shift"`
	VYStableShiftSlow float64 `parquet:"vy_stable_shift_slow"`
	VYStableShiftMask float64 `parquet:"vy_stable_shift_mask"`

	VAErrorScalar     float64 `parquet:"va_error"`
	VAErrorMask       float64 `parquet:"va_error_mask"`
	VAErrorModeled    float64 `parquet:"va_error_modeled"`
	VAErrorSlow       float64 `parquet:"va_error_slow"`
	VAStableShift     float64 `parquet:"va_stable_shift"`
	VAStableShiftSlow float64 `parquet:"va_stable_shift_slow"`
	VAStableShiftMask float64 `parquet:"va_stable_shift_mask"`

	VRErrorScalar     float64 `parquet:"vr_error"`
	VRErrorMask       float64 `parquet:"vr_error_mask"`
	VRErrorModeled    float64 `parquet:"vr_error_modeled"`
	VRErrorSlow       float64 `parquet:"vr_error_slow"`
	VRStableShift     float64 `parquet:"vr_stable_shift"`
	VRStableShiftSlow float64 `parquet:"vr_stable_shift_slow"`
	VRStableShiftMask float64 `parquet:"vr_stable_shift_mask"`

	VXPErrorScalar     float64 `parquet:"vxp_error"`
	VXPErrorMask       float64 `parquet:"vxp_error_mask"`
	VXPErrorModeled    float64 `parquet:"vxp_error_modeled"`
	VXPErrorSlow       float64 `parquet:"vxp_error_slow"`
	VXPStableShift     float64 `parquet:"vxp_stable_shift"`
	VXPStableShiftSlow float64 `parquet:"vxp_stable_shift_slow"`
	VXPStableShiftMask float64 `parquet:"vxp_stable_shift_mask"`

	VYPErrorScalar     float64 `parquet:"vyp_error"`
	VYPErrorMask       float64 `parquet:"vyp_error_mask"`
	VYPErrorModeled    float64 `parquet:"vyp_error_modeled"`
	VYPErrorSlow       float64 `parquet:"vyp_error_slow"`
	VYPStableShift     float64 `parquet:"vyp_stable_shift"`
	VYPStableShiftSlow float64 `parquet:"vyp_stable_shift_slow"`
	VYPStableShiftMask float64 `parquet:"vyp_stable_shift_mask"`

	FlagStableShift   int64 `parquet:"flag_stable_shift"`
	StableCount       int64 `parquet:"stable_count"`
	StableCountSlow   int64 `parquet:"stable_count_slow"`
	StableCountMask   int64 `parquet:"stable_count_mask"`
	MapScaleCorrected int32 `parquet:"map_scale_corrected"`

	MissionImg1   string `parquet:"mission_img1,zstd"`
	SensorImg1    string `parquet:"sensor_img1,zstd"`
	SatelliteImg1 string `parquet:"satellite_img1,zstd"`
	MissionImg2   string `parquet:"mission_img2,zstd"`
	SensorImg2    string `parquet:"sensor_img2,zstd"`
	SatelliteImg2 string `parquet:"satellite_img2,zstd"`

	AcquisitionDateImg1 int64   `parquet:"acquisition_date_img1"`
	AcquisitionDateImg2 int64   `parquet:"acquisition_date_img2"`
	DateCenter          int64   `parquet:"date_center"`
	DateDt              float64 `parquet:"date_dt"`
	ROIValidPercentage  float64 `parquet:"roi_valid_percentage"`
	SoftwareVersion     string  `parquet:"autoRIFT_software_version,zstd"`
}

// GridColumn returns a pointer to the int16 grid column for a velocity-
// family variable name.
func (r *CubeRow) GridColumn(name string) *[]int16 {
	switch name {
	case granule.VarV:
		return &r.V
	case granule.VarVError:
		return &r.VError
	case granule.VarVX:
		return &r.VX
	case granule.VarVY:
		return &r.VY
	case granule.VarVA:
		return &r.VA
	case granule.VarVR:
		return &r.VR
	case granule.VarVXP:
		return &r.VXP
	case granule.VarVYP:
		return &r.VYP
	case granule.VarVP:
		return &r.VP
	case granule.VarVPError:
		return &r.VPError
	default:
		return nil
	}
}

// ScalarColumn returns a pointer to the promoted scalar column for a
// promoted variable name, nil for names that are not scalar columns.
func (r *CubeRow) ScalarColumn(name string) *float64 {
	switch name {
	case "vx_error":
		return &r.VXErrorScalar
	case "vx_error_mask":
		return &r.VXErrorMask
	case "vx_error_modeled":
		return &r.VXErrorModeled
	case "vx_error_slow":
		return &r.VXErrorSlow
	case "vx_stable_shift":
		return &r.VXStableShift
	case "vx_stable_shift_slow":
		return &r.VXStableShiftSlow
	case "vx_stable_shift_mask":
		return &r.VXStableShiftMask

	case "vy_error":
		return &r.VYErrorScalar
	case "vy_error_mask":
		return &r.VYErrorMask
	case "vy_error_modeled":
		return &r.VYErrorModeled
	case "vy_error_slow":
		return &r.VYErrorSlow
	case "vy_stable_shift":
		return &r.VYStableShift
	case "vy_stable_shift_slow":
		return &r.VYStableShiftSlow
	case "vy_stable_shift_mask":
		return &r.VYStableShiftMask

	case "va_error":
		return &r.VAErrorScalar
	case "va_error_mask":
		return &r.VAErrorMask
	case "va_error_modeled":
		return &r.VAErrorModeled
	case "va_error_slow":
		return &r.VAErrorSlow
	case "va_stable_shift":
		return &r.VAStableShift
	case "va_stable_shift_slow":
		return &r.VAStableShiftSlow
	case "va_stable_shift_mask":
		return &r.VAStableShiftMask

	case "vr_error":
		return &r.VRErrorScalar
	case "vr_error_mask":
		return &r.VRErrorMask
	case "vr_error_modeled":
		return &r.VRErrorModeled
	case "vr_error_slow":
		return &r.VRErrorSlow
	case "vr_stable_shift":
		return &r.VRStableShift
	case "vr_stable_shift_slow":
		return &r.VRStableShiftSlow
	case "vr_stable_shift_mask":
		return &r.VRStableShiftMask

	case "vxp_error":
		return &r.VXPErrorScalar
	case "vxp_error_mask":
		return &r.VXPErrorMask
	case "vxp_error_modeled":
		return &r.VXPErrorModeled
	case "vxp_error_slow":
		return &r.VXPErrorSlow
	case "vxp_stable_shift":
		return &r.VXPStableShift
	case "vxp_stable_shift_slow":
		return &r.VXPStableShiftSlow
	case "vxp_stable_shift_mask":
		return &r.VXPStableShiftMask

	case "vyp_error":
		return &r.VYPErrorScalar
	case "vyp_error_mask":
		return &r.VYPErrorMask
	case "vyp_error_modeled":
		return &r.VYPErrorModeled
	case "vyp_error_slow":
		return &r.VYPErrorSlow
	case "vyp_stable_shift":
		return &r.VYPStableShift
	case "vyp_stable_shift_slow":
		return &r.VYPStableShiftSlow
	case "vyp_stable_shift_mask":
		return &r.VYPStableShiftMask

	default:
		return nil
	}
}

// EncodeVelocity encodes a float32 grid as short, mapping NaN to the
// missing-value marker.
func EncodeVelocity(data []float32) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		if math.IsNaN(float64(v)) {
			out[i] = int16(granule.MissingValue)
			continue
		}
		out[i] = int16(math.Round(float64(v)))
	}
	return out
}

// EncodeChip encodes a chip-size grid as ushort with zero fill.
func EncodeChip(data []float32) []uint16 {
	out := make([]uint16, len(data))
	for i, v := range data {
		if math.IsNaN(float64(v)) {
			out[i] = granule.MissingByte
			continue
		}
		out[i] = uint16(math.Round(float64(v)))
	}
	return out
}

// EncodeMask encodes the interpolation mask as ubyte with zero fill.
func EncodeMask(data []float32) []uint8 {
	out := make([]uint8, len(data))
	for i, v := range data {
		if math.IsNaN(float64(v)) {
			out[i] = granule.MissingByte
			continue
		}
		out[i] = uint8(math.Round(float64(v)))
	}
	return out
}

// MissingVelocity returns a fully-missing short grid of n cells,
// substituted for velocity-family variables a record lacks.
func MissingVelocity(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(granule.MissingValue)
	}
	return out
}

// DecodeVelocity maps a short grid back to float32 with NaN at missing
// positions.
func DecodeVelocity(data []int16) []float32 {
	out := make([]float32, len(data))
	nan := float32(math.NaN())
	for i, v := range data {
		if v == int16(granule.MissingValue) {
			out[i] = nan
			continue
		}
		out[i] = float32(v)
	}
	return out
}
