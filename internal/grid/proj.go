package grid

import (
	"math"

	"github.com/wroge/wgs84"

	"github.com/icefield/velocube/internal/errors"
)

// The granule catalog uses UTM codes for mid-latitude tiles and the two
// polar stereographic codes for the ice sheets. UTM is delegated to the
// wgs84 EPSG repository; the polar codes are not in that repository and
// are inverted here directly.
const (
	epsgLonLat     = 4326
	epsgArctic     = 3413 // WGS 84 / NSIDC Sea Ice Polar Stereographic North
	epsgAntarctic  = 3031 // WGS 84 / Antarctic Polar Stereographic
	wgs84SemiMajor = 6378137.0
	wgs84Ecc       = 0.0818191908426215
)

// ToLonLat returns a transform from the given projection to longitude/
// latitude. Unknown codes are a configuration error.
func ToLonLat(epsg int) (func(x, y float64) (lon, lat float64), error) {
	switch {
	case epsg == epsgLonLat:
		return func(x, y float64) (float64, float64) { return x, y }, nil

	case epsg == epsgArctic:
		return func(x, y float64) (float64, float64) {
			return polarStereoInverse(x, y, 70, -45, false)
		}, nil

	case epsg == epsgAntarctic:
		return func(x, y float64) (float64, float64) {
			return polarStereoInverse(x, y, 71, 0, true)
		}, nil

	case isUTM(epsg):
		tr := wgs84.EPSG().Transform(epsg, epsgLonLat)
		return func(x, y float64) (float64, float64) {
			lon, lat, _ := tr(x, y, 0)
			return lon, lat
		}, nil

	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedCRS, "EPSG:%d", epsg)
	}
}

func isUTM(epsg int) bool {
	zone := 0
	switch {
	case epsg > 32600 && epsg <= 32660:
		zone = epsg - 32600
	case epsg > 32700 && epsg <= 32760:
		zone = epsg - 32700
	}
	return zone >= 1 && zone <= 60
}

// polarStereoInverse inverts a polar stereographic projection with a
// standard parallel (Snyder 1987, eqs. 21-39 and 3-5) on the WGS 84
// ellipsoid. latTS is the absolute standard parallel in degrees, lon0 the
// central meridian in degrees.
func polarStereoInverse(x, y, latTS, lon0 float64, south bool) (lon, lat float64) {
	const deg = 180 / math.Pi

	e := wgs84Ecc
	latC := latTS / deg

	sinC := math.Sin(latC)
	tC := math.Tan(math.Pi/4-latC/2) /
		math.Pow((1-e*sinC)/(1+e*sinC), e/2)
	mC := math.Cos(latC) / math.Sqrt(1-e*e*sinC*sinC)

	rho := math.Hypot(x, y)
	t := rho * tC / (wgs84SemiMajor * mC)
	chi := math.Pi/2 - 2*math.Atan(t)

	e2 := e * e
	e4 := e2 * e2
	e6 := e4 * e2
	e8 := e4 * e4
	phi := chi +
		(e2/2+5*e4/24+e6/12+13*e8/360)*math.Sin(2*chi) +
		(7*e4/48+29*e6/240+811*e8/11520)*math.Sin(4*chi) +
		(7*e6/120+81*e8/1120)*math.Sin(6*chi) +
		(4279*e8/161280)*math.Sin(8*chi)

	if south {
		lat = -phi * deg
		lon = lon0 + math.Atan2(x, y)*deg
	} else {
		lat = phi * deg
		lon = lon0 + math.Atan2(x, -y)*deg
	}

	if lon > 180 {
		lon -= 360
	}
	if lon < -180 {
		lon += 360
	}
	return lon, lat
}
