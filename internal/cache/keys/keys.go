// Package keys derives cache keys and encodes temperature values stored under
// them.
package keys

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const Prefix = "weather_"

var errNotFinite = errors.New("temperature is not finite")

// Normalize trims and lower-cases a location; the result identifies the
// location across every tier.
func Normalize(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// Key expects an already normalized location.
func Key(location string) string {
	return Prefix + location
}

// LocationFromKey is the inverse of Key.
func LocationFromKey(key string) (string, bool) {
	return strings.CutPrefix(key, Prefix)
}

// EncodeTemperature renders v in an invariant decimal form, shortest
// representation that round-trips ("26", "20.5", "-3.25").
func EncodeTemperature(v float64) []byte {
	return strconv.AppendFloat(nil, v, 'f', -1, 64)
}

// DecodeTemperature accepts only finite decimal values.
func DecodeTemperature(b []byte) (float64, error) {
	s := strings.TrimSpace(string(b))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("decode temperature %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("decode temperature %q: %w", s, errNotFinite)
	}
	return v, nil
}
