// Package units declares the measurement semantics of the environmental
// logger channels. The engine performs no unit conversion; these labels are
// carried through to reports so downstream consumers know what a value means.
package units

import "sort"

// Channel names as emitted by the environmental logger weather station.
const (
	Temperature   = "temperature"
	RelHumidity   = "relHumidity"
	AirPressure   = "airPressure"
	WindVelocity  = "windVelocity"
	WindDirection = "windDirection"
	SunDirection  = "sunDirection"
	Precipitation = "precipitation"
	Brightness    = "brightness"
	PAR           = "par"
)

// channelUnits maps a channel name to the unit string reported by the logger.
var channelUnits = map[string]string{
	Temperature:   "DegCelsius",
	RelHumidity:   "relHumPerCent",
	AirPressure:   "hPa",
	WindVelocity:  "m/s",
	WindDirection: "degrees",
	SunDirection:  "degrees",
	Precipitation: "mm/h",
	Brightness:    "kilo Lux",
	PAR:           "umol/(m^2*s)",
}

// Unit returns the declared unit for a channel, or "" for channels the logger
// configuration does not declare (unknown channels still flow through the
// engine; they are just unlabelled).
func Unit(channel string) string {
	return channelUnits[channel]
}

// IsDeclared reports whether the channel has declared unit semantics.
func IsDeclared(channel string) bool {
	_, ok := channelUnits[channel]
	return ok
}

// Label returns a human-readable channel label such as
// "temperature (DegCelsius)" for report axes and summaries.
func Label(channel string) string {
	if u, ok := channelUnits[channel]; ok {
		return channel + " (" + u + ")"
	}
	return channel
}

// DeclaredChannels returns the declared channel names in sorted order.
func DeclaredChannels() []string {
	names := make([]string, 0, len(channelUnits))
	for name := range channelUnits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
