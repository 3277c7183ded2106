package weather

import "math"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegreesToCompass maps a bearing in degrees to one of 16 compass points.
// Each point covers 22.5 degrees centred on its bearing, so 348.75 up to
// 11.25 is N. Negative bearings and bearings above 360 wrap.
func DegreesToCompass(deg float64) string {
	shifted := math.Mod(deg+11.25, 360)
	if shifted < 0 {
		shifted += 360
	}
	return compassPoints[int(shifted/22.5)%len(compassPoints)]
}
