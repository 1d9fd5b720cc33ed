// Package geo converts gantry-frame coordinates to geographic positions and
// provides the spatial predicates used for station coverage filtering.
package geo

import (
	"fmt"
	"math"

	"github.com/im7mortal/UTM"
)

// Point is a geographic position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is a closed ring of geographic points. The ring does not need to
// repeat its first vertex.
type Polygon []Point

// Fixed offsets between the raw gantry encoder positions and the sensor box,
// in metres. Applied before any projection.
const (
	GantryOffsetX = -1.035
	GantryOffsetY = 1.684
	GantryOffsetZ = 0.856
)

// Affine coefficients mapping the scanalyzer gantry frame onto UTM zone 12N.
// Surveyed once for the field installation; the gantry never moves.
const (
	utmAX = 409012.2032
	utmBX = 0.009
	utmCX = -0.9986

	utmAY = 3659974.971
	utmBY = 1.0002
	utmCY = 0.0078
)

// utmZone is the UTM zone covering the field installation (northern
// hemisphere).
const utmZone = 12

// ScanalyzerToUTM maps raw gantry x/y (metres, offsets already applied) to
// UTM zone 12N easting/northing.
func ScanalyzerToUTM(gantryX, gantryY float64) (easting, northing float64) {
	easting = utmAX + utmBX*gantryX + utmCX*gantryY
	northing = utmAY + utmBY*gantryX + utmCY*gantryY
	return easting, northing
}

// ScanalyzerToLatLon maps raw gantry x/y to a geographic point via UTM 12N.
// Fails only when the affine result lands outside the zone's valid easting
// or northing range, which means the gantry position was corrupt.
func ScanalyzerToLatLon(gantryX, gantryY float64) (Point, error) {
	e, n := ScanalyzerToUTM(gantryX, gantryY)
	return UTMToLatLon(e, n)
}

// UTMToLatLon inverts the UTM zone 12N projection to geographic coordinates.
func UTMToLatLon(easting, northing float64) (Point, error) {
	lat, lon, err := UTM.ToLatLon(easting, northing, utmZone, "", true)
	if err != nil {
		return Point{}, fmt.Errorf("utm zone %d inverse: %w", utmZone, err)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// Contains reports whether pt lies inside the polygon, using even-odd ray
// casting in lon/lat space. Points exactly on an edge may fall either way;
// station coverage polygons are drawn with margin so this does not matter in
// practice.
func (p Polygon) Contains(pt Point) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		a, b := p[i], p[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			cross := (b.Lon-a.Lon)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if pt.Lon < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance between two points in metres.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(s))
}
