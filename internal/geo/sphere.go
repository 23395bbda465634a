package geo

import "math"

// EarthRadius is the mean earth radius in meters used for all great-circle math.
const EarthRadius = 6371000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine great-circle distance in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// InitialBearingRadians returns the initial great-circle bearing from point 1 to
// point 2 in radians, in the range (-pi, pi].
func InitialBearingRadians(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lng2 - lng1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return math.Atan2(y, x)
}

// InitialBearing returns the initial bearing in degrees normalized to [0, 360).
func InitialBearing(lat1, lng1, lat2, lng2 float64) float64 {
	return NormalizeDegrees(toDegrees(InitialBearingRadians(lat1, lng1, lat2, lng2)))
}

// NormalizeDegrees maps any angle to [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Destination returns the point reached by travelling distance meters from
// (lat, lng) along the given bearing in degrees.
func Destination(lat, lng, bearing, distance float64) (float64, float64) {
	phi1 := toRadians(lat)
	lambda1 := toRadians(lng)
	theta := toRadians(bearing)
	delta := distance / EarthRadius

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	// normalize longitude to [-180, 180)
	lng2 := math.Mod(toDegrees(lambda2)+540, 360) - 180
	return toDegrees(phi2), lng2
}
