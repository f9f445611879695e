// Package geo anchors the simulator's local frame on the globe so recorded
// flights can be stored and viewed as geographic features.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// The local frame is Y-up with +X east and -Z north. Offsets are applied in
// Web Mercator (EPSG:3857) metres corrected by the projection's scale factor,
// which is accurate to centimetres over the few hundred metres a run covers.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Origin is the WGS84 position of the local frame's origin.
type Origin struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt"`

	x, y float64 // origin in EPSG:3857
}

// NewOrigin projects lon/lat once so later conversions only need the
// inverse transform.
func NewOrigin(lon, lat, alt float64) (Origin, error) {
	if math.Abs(lat) >= 85 || math.Abs(lon) > 180 || math.IsNaN(lon) || math.IsNaN(lat) {
		return Origin{}, fmt.Errorf("%w: lon %g lat %g", ErrInvalidCoordinates, lon, lat)
	}
	x, y := project(lon, lat)
	return Origin{Lon: lon, Lat: lat, Alt: alt, x: x, y: y}, nil
}

// ParseOrigin parses "lon,lat" or "lon,lat,alt".
func ParseOrigin(s string) (Origin, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Origin{}, ErrInvalidCoordinates
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Origin{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return NewOrigin(vals[0], vals[1], vals[2])
}

// ToWGS84 converts a local position to longitude, latitude and altitude.
func (o Origin) ToWGS84(p mgl64.Vec3) (lon, lat, alt float64) {
	scale := 1 / math.Cos(o.Lat*math.Pi/180)
	east, north := p.X(), -p.Z()
	lon, lat = unproject(o.x+east*scale, o.y+north*scale)
	return lon, lat, o.Alt + p.Y()
}

// Point returns the local position as an XYZ point in lon/lat/alt. Non-finite
// positions are rejected by the geometry validation.
func (o Origin) Point(p mgl64.Vec3) (geom.Point, error) {
	lon, lat, alt := o.ToWGS84(p)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: lon, Y: lat},
		Z:    alt,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("point at %v: %w", p, err)
	}
	return pt, nil
}

// Track builds an XYZ line string from a sequence of local positions. At least
// two of them must differ horizontally.
func (o Origin) Track(positions []mgl64.Vec3) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(positions))
	}
	flat := make([]float64, 0, len(positions)*3)
	for _, p := range positions {
		lon, lat, alt := o.ToWGS84(p)
		flat = append(flat, lon, lat, alt)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("track of %d points: %w", len(positions), err)
	}
	return ls, nil
}

// Coords3857From4326 projects a longitude and latitude to a Web Mercator point.
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	x, y := project(longitude, latitude)
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
}

func project(lon, lat float64) (x, y float64) {
	x, y, _ = wgs84.EPSG().Transform(4326, 3857)(lon, lat, 0)
	return x, y
}

func unproject(x, y float64) (lon, lat float64) {
	lon, lat, _ = wgs84.EPSG().Transform(3857, 4326)(x, y, 0)
	return lon, lat
}
