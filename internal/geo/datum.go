package geo

import (
	"fmt"
	"math"
	"strings"
)

// Datum names the coordinate system a geocoder or user input reports in.
type Datum string

const (
	WGS84 Datum = "wgs84"
	// GCJ02 is the obfuscated datum mandated for maps published in mainland China.
	GCJ02 Datum = "gcj02"
	// BD09 is Baidu's re-offset variant of GCJ02.
	BD09 Datum = "bd09"
)

// ParseDatum normalizes a datum name.
func ParseDatum(s string) (Datum, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "", "wgs84", "4326":
		return WGS84, nil
	case "gcj02", "gcj":
		return GCJ02, nil
	case "bd09", "bd09ll", "baidu":
		return BD09, nil
	}
	return "", fmt.Errorf("unknown datum: %q", s)
}

const (
	krasovskyA  = 6378245.0
	krasovskyEE = 0.00669342162296594323
	bdXPi       = math.Pi * 3000.0 / 180.0
)

// outOfChina reports whether a point lies outside the area GCJ02 offsets apply to.
func outOfChina(lat, lng float64) bool {
	return lng < 72.004 || lng > 137.8347 || lat < 0.8293 || lat > 55.8271
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLng(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}

// WGS84ToGCJ02 applies the GCJ02 offset.
func WGS84ToGCJ02(lat, lng float64) (float64, float64) {
	if outOfChina(lat, lng) {
		return lat, lng
	}
	dLat := transformLat(lng-105.0, lat-35.0)
	dLng := transformLng(lng-105.0, lat-35.0)
	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - krasovskyEE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((krasovskyA * (1 - krasovskyEE)) / (magic * sqrtMagic) * math.Pi)
	dLng = (dLng * 180.0) / (krasovskyA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return lat + dLat, lng + dLng
}

// GCJ02ToWGS84 inverts the GCJ02 offset by fixed-point iteration; the residual
// after a few rounds is well under a centimeter.
func GCJ02ToWGS84(lat, lng float64) (float64, float64) {
	if outOfChina(lat, lng) {
		return lat, lng
	}
	wLat, wLng := lat, lng
	for i := 0; i < 6; i++ {
		gLat, gLng := WGS84ToGCJ02(wLat, wLng)
		wLat -= gLat - lat
		wLng -= gLng - lng
	}
	return wLat, wLng
}

// GCJ02ToBD09 applies Baidu's additional offset.
func GCJ02ToBD09(lat, lng float64) (float64, float64) {
	x, y := lng, lat
	z := math.Sqrt(x*x+y*y) + 0.00002*math.Sin(y*bdXPi)
	theta := math.Atan2(y, x) + 0.000003*math.Cos(x*bdXPi)
	return z*math.Sin(theta) + 0.006, z*math.Cos(theta) + 0.0065
}

// BD09ToGCJ02 removes Baidu's additional offset.
func BD09ToGCJ02(lat, lng float64) (float64, float64) {
	x := lng - 0.0065
	y := lat - 0.006
	z := math.Sqrt(x*x+y*y) - 0.00002*math.Sin(y*bdXPi)
	theta := math.Atan2(y, x) - 0.000003*math.Cos(x*bdXPi)
	return z * math.Sin(theta), z * math.Cos(theta)
}

// ToWGS84 reprojects a coordinate reported in the given datum to WGS84.
func ToWGS84(lat, lng float64, datum Datum) (float64, float64) {
	switch datum {
	case GCJ02:
		return GCJ02ToWGS84(lat, lng)
	case BD09:
		return GCJ02ToWGS84(BD09ToGCJ02(lat, lng))
	default:
		return lat, lng
	}
}

// FromWGS84 projects a WGS84 coordinate into the given datum.
func FromWGS84(lat, lng float64, datum Datum) (float64, float64) {
	switch datum {
	case GCJ02:
		return WGS84ToGCJ02(lat, lng)
	case BD09:
		return GCJ02ToBD09(WGS84ToGCJ02(lat, lng))
	default:
		return lat, lng
	}
}
