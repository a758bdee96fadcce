package granule

import (
	"github.com/icefield/velocube/internal/errors"
)

// Generation tags the known granule format generations. Each generation
// names its projection descriptor variable, its per-pair calibration
// attributes and its acquisition-date attributes differently; the
// differences are resolved once per granule here, never probed ad hoc
// during assembly.
type Generation int

const (
	// LegacyOptical granules carry UTM_Projection or Polar_Stereographic,
	// alias the component error as stable_rmse and misspell the
	// acquisition-date attributes.
	LegacyOptical Generation = iota

	// Radar granules add the radar-geometry velocity variables (va, vr,
	// vp and projected variants) and use acquisition_img1/2.
	Radar

	// CurrentGeneric granules carry the unified "mapping" descriptor and
	// the error_mask/error_slow/error_modeled calibration family.
	CurrentGeneric
)

func (g Generation) String() string {
	switch g {
	case LegacyOptical:
		return "legacy-optical"
	case Radar:
		return "radar"
	case CurrentGeneric:
		return "current"
	default:
		return "unknown"
	}
}

// schemaSpec is the per-generation field-presence table.
type schemaSpec struct {
	// acqDateAttrs lists the img_pair_info attribute names for the two
	// acquisition dates, in preference order per image.
	acqDateAttrs1 []string
	acqDateAttrs2 []string

	// stableRMSEAlias reports whether vx/vy alias their error scalar as
	// stable_rmse.
	stableRMSEAlias bool
}

var schemaSpecs = map[Generation]schemaSpec{
	LegacyOptical: {
		acqDateAttrs1:   []string{AttrLegacyAcqImg1, AttrAcqDateImg1},
		acqDateAttrs2:   []string{AttrLegacyAcqImg2, AttrAcqDateImg2},
		stableRMSEAlias: true,
	},
	Radar: {
		acqDateAttrs1: []string{AttrAcqImg1, AttrAcqDateImg1},
		acqDateAttrs2: []string{AttrAcqImg2, AttrAcqDateImg2},
	},
	CurrentGeneric: {
		acqDateAttrs1: []string{AttrAcqDateImg1, AttrAcqImg1},
		acqDateAttrs2: []string{AttrAcqDateImg2, AttrAcqImg2},
	},
}

// DetectSchema determines the granule's format generation, its projection
// descriptor variable and its source EPSG code. A granule carrying none of
// the known descriptors is an unsupported format and fatal: it must not be
// silently skipped.
func DetectSchema(ds *Dataset) (Generation, string, int, error) {
	var mappingVar string
	var gen Generation

	switch {
	case ds.Has(VarMapping):
		mappingVar = VarMapping
		gen = CurrentGeneric

	case ds.Has(VarUTMProjection):
		mappingVar = VarUTMProjection
		gen = LegacyOptical

	case ds.Has(VarPolarStereographic):
		mappingVar = VarPolarStereographic
		gen = LegacyOptical

	default:
		return 0, "", 0, errors.Wrapf(errors.ErrUnsupportedSchema,
			"none of [%s, %s, %s] present in %s",
			VarUTMProjection, VarPolarStereographic, VarMapping, ds.URL)
	}

	// Radar granules are distinguished by their radar-geometry variables.
	if gen == LegacyOptical && (ds.Has(VarVA) || ds.Has(VarVR)) {
		gen = Radar
	}

	epsgF, ok, err := ds.FloatAttr(mappingVar, AttrSpatialEPSG)
	if err != nil {
		return 0, "", 0, err
	}
	if !ok {
		return 0, "", 0, errors.Wrapf(errors.ErrMissingAttribute,
			"%s.%s in %s", mappingVar, AttrSpatialEPSG, ds.URL)
	}

	return gen, mappingVar, int(epsgF), nil
}

// spec returns the generation's field-presence table.
func (g Generation) spec() schemaSpec {
	return schemaSpecs[g]
}
