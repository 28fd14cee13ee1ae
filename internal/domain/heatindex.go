package domain

const (
	// Below either threshold the Rothfusz regression is unreliable and the
	// air temperature is reported as-is.
	heatIndexMinTempC    = 26.7
	heatIndexMinHumidity = 40
)

// HeatIndex returns the apparent temperature in °C for an air temperature in
// °C and a relative humidity in percent, using the NWS Rothfusz regression.
func HeatIndex(temperatureC float64, humidity int) float64 {
	if temperatureC < heatIndexMinTempC || humidity < heatIndexMinHumidity {
		return temperatureC
	}

	f := temperatureC*9/5 + 32
	h := float64(humidity)
	hiF := -42.379 +
		2.04901523*f +
		10.14333127*h -
		0.22475541*f*h -
		0.00683783*f*f -
		0.05481717*h*h +
		0.00122874*f*f*h +
		0.00085282*f*h*h -
		0.00000199*f*f*h*h
	return (hiF - 32) * 5 / 9
}

// Enrich returns a copy of obs with HeatIndex computed from its temperature
// and humidity.
func Enrich(obs Observation) Observation {
	obs.HeatIndex = HeatIndex(obs.Temperature, obs.Humidity)
	return obs
}
