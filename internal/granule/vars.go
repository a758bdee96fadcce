// Package granule models one input velocity file: its identifier, its
// variable/attribute schema across the known format generations, and the
// normalization that turns it into a cube-ready record.
package granule

// Cube coordinate names.
const (
	CoordMidDate = "mid_date"
	CoordX       = "x"
	CoordY       = "y"
)

// Data variable names shared by all format generations.
const (
	VarV              = "v"
	VarVError         = "v_error"
	VarVX             = "vx"
	VarVY             = "vy"
	VarVA             = "va"
	VarVR             = "vr"
	VarVP             = "vp"
	VarVPError        = "vp_error"
	VarVXP            = "vxp"
	VarVYP            = "vyp"
	VarChipSizeHeight = "chip_size_height"
	VarChipSizeWidth  = "chip_size_width"
	VarInterpMask     = "interp_mask"
	VarImgPairInfo    = "img_pair_info"

	// Projection descriptor variables, one per format generation.
	VarUTMProjection      = "UTM_Projection"
	VarPolarStereographic = "Polar_Stereographic"
	VarMapping            = "mapping"
)

// Attribute names.
const (
	AttrSpatialEPSG     = "spatial_epsg"
	AttrGridMapping     = "grid_mapping"
	AttrGridMappingName = "grid_mapping_name"
	AttrMissingValue    = "missing_value"
	AttrStandardName    = "standard_name"
	AttrDescription     = "description"
	AttrUnits           = "units"

	// Per-pair scalars embedded in the velocity variables' attributes.
	AttrStableRMSE       = "stable_rmse" // legacy optical alias of <var>_error
	AttrStableShift      = "stable_shift"
	AttrStableShiftSlow  = "stable_shift_slow"
	AttrStableShiftMask  = "stable_shift_mask"
	AttrStableCount      = "stable_count"
	AttrStableCountSlow  = "stable_count_slow"
	AttrStableCountMask  = "stable_count_mask"
	AttrFlagStableShift  = "flag_stable_shift"
	AttrMapScaleCorr     = "map_scale_corrected"
	AttrStableApplyDate  = "stable_apply_date"  // legacy optical, dropped
	AttrStableShiftAppl  = "stable_shift_applied" // legacy optical, dropped

	// img_pair_info attributes promoted to record-indexed variables.
	AttrMissionImg1      = "mission_img1"
	AttrSensorImg1       = "sensor_img1"
	AttrSatelliteImg1    = "satellite_img1"
	AttrMissionImg2      = "mission_img2"
	AttrSensorImg2       = "sensor_img2"
	AttrSatelliteImg2    = "satellite_img2"
	AttrDateDt           = "date_dt"
	AttrDateCenter       = "date_center"
	AttrROIValidPercent  = "roi_valid_percentage"
	AttrSoftwareVersion  = "autoRIFT_software_version"
	AttrAcqDateImg1      = "acquisition_date_img1"
	AttrAcqDateImg2      = "acquisition_date_img2"
	AttrAcqImg1          = "acquisition_img1" // radar naming
	AttrAcqImg2          = "acquisition_img2"
	AttrLegacyAcqImg1    = "aquisition_date_img1" // misspelled in legacy optical granules
	AttrLegacyAcqImg2    = "aquisition_date_img2"
	AttrTimeStandardImg1 = "time_standard_img1"
	AttrTimeStandardImg2 = "time_standard_img2"

	// Dataset-level attribute naming the processing parameter file.
	AttrParameterFile = "autoRIFT_parameter_file"
)

// Missing-value markers fixed by the store encoding.
const (
	MissingValue = -32767.0
	MissingByte  = 0

	// ChipNoValue marks an unset chip_size_height; a granule whose
	// chip_size_height is entirely ChipNoValue falls back to
	// chip_size_width.
	ChipNoValue = 65535
)

// VelocityComponents are the velocity variables whose per-pair calibration
// scalars (error, shift) are promoted into record-indexed cube variables.
var VelocityComponents = []string{VarVX, VarVY, VarVA, VarVR, VarVXP, VarVYP}

// ScalarSuffixes are the per-component attribute suffixes promoted for each
// velocity component, e.g. vx_error_slow for vx.
var ScalarSuffixes = []string{
	"error",
	"error_mask",
	"error_modeled",
	"error_slow",
	"stable_shift",
	"stable_shift_slow",
	"stable_shift_mask",
}

// GridVars enumerates every 2-D variable a cube can carry, in assembly
// order. RequiredGridVars must be present in every accepted granule; the
// rest vary by format generation and are filled with missing values where
// absent.
var GridVars = []string{
	VarV,
	VarVError,
	VarVX,
	VarVY,
	VarVA,
	VarVR,
	VarVXP,
	VarVYP,
	VarChipSizeHeight,
	VarChipSizeWidth,
	VarInterpMask,
	VarVP,
	VarVPError,
}

// RequiredGridVars must exist in every granule regardless of generation.
var RequiredGridVars = []string{
	VarV,
	VarVX,
	VarVY,
	VarChipSizeHeight,
	VarChipSizeWidth,
	VarInterpMask,
}

// VarDescription documents the cube's 2-D variables; written once to the
// store metadata.
var VarDescription = map[string]string{
	VarV:       "velocity magnitude",
	VarVX:      "velocity component in x direction",
	VarVY:      "velocity component in y direction",
	VarVError:  "velocity magnitude error",
	VarVA:      "velocity in radar azimuth direction",
	VarVR:      "velocity in radar range direction",
	VarVP:      "velocity magnitude determined by projecting radar range measurements onto an a priori flow vector",
	VarVPError: "velocity magnitude error determined by projecting radar range measurements onto an a priori flow vector",
	VarVXP:     "x-direction velocity determined by projecting radar range measurements onto an a priori flow vector",
	VarVYP:     "y-direction velocity determined by projecting radar range measurements onto an a priori flow vector",

	VarChipSizeHeight: "height of search window",
	VarChipSizeWidth:  "width of search window",
	VarInterpMask:     "light interpolation mask",
}

// ScalarName builds the promoted variable name for a component/suffix pair,
// e.g. ScalarName("vx", "error_slow") == "vx_error_slow".
func ScalarName(component, suffix string) string {
	return component + "_" + suffix
}
