package matching

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/lifelink/lifelink/internal/models"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Location identifies where a donor or hospital is. Coordinate pairs are
// preferred; the free-text form is the fallback when geodata is absent.
type Location struct {
	Text   string
	Coords *Coordinates
}

// DonorLocation builds a Location from a donor record.
func DonorLocation(d *models.Donor) Location {
	loc := Location{Text: d.Location}
	if d.HasCoordinates() {
		loc.Coords = &Coordinates{Lat: *d.Latitude, Lng: *d.Longitude}
	}
	return loc
}

// HospitalLocation builds a Location from a hospital record.
func HospitalLocation(h *models.Hospital) Location {
	loc := Location{Text: h.Location}
	if h.HasCoordinates() {
		loc.Coords = &Coordinates{Lat: *h.Latitude, Lng: *h.Longitude}
	}
	return loc
}

const earthRadiusKm = 6371.0

// DistanceKm returns the distance between two locations in kilometres.
// With two coordinate pairs this is the haversine great-circle distance;
// otherwise a deterministic heuristic derived from the location strings is
// used so that scoring stays pure and rankings reproducible.
func DistanceKm(a, b Location) float64 {
	if a.Coords != nil && b.Coords != nil {
		return haversineKm(*a.Coords, *b.Coords)
	}
	return heuristicKm(a.Text, b.Text)
}

func haversineKm(a, b Coordinates) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// heuristicKm maps a pair of location strings onto 1..25 km. Matching strings
// are treated as the same neighbourhood. This stands in for a routing
// provider; see Estimator for the swap seam.
func heuristicKm(a, b string) float64 {
	na := normalizeLocation(a)
	nb := normalizeLocation(b)
	if na != "" && na == nb {
		return 1
	}

	h := fnv.New32a()
	if na < nb {
		h.Write([]byte(na + "|" + nb))
	} else {
		h.Write([]byte(nb + "|" + na))
	}
	return float64(h.Sum32()%25) + 1
}

func normalizeLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
