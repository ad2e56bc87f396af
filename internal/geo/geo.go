// Package geo has the distance and name-matching helpers shared by the
// duplicate registry and the OSM provider.
package geo

import (
	"math"
	"strings"
	"unicode"

	"github.com/joescharf/btcmap-triage/internal/models"
)

const earthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle (haversine) distance between two points.
func DistanceMeters(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NormalizeName lowercases a merchant name and reduces it to letters and
// digits separated by single spaces.
func NormalizeName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// SameName reports whether two merchant names plausibly refer to the same
// business: equal once normalized, or one containing the other as whole words.
func SameName(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	short, long := na, nb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < 4 {
		return false
	}
	return strings.HasPrefix(long, short+" ") ||
		strings.HasSuffix(long, " "+short) ||
		strings.Contains(long, " "+short+" ")
}
