package domain

import "time"

// Observation is one weather reading at one instant. Timestamp is the
// natural key: storage holds at most one row per instant.
type Observation struct {
	Timestamp        time.Time `json:"timestamp"`
	Temperature      float64   `json:"temperature"` // °C
	Humidity         int       `json:"humidity"`    // %
	Pressure         int       `json:"pressure"`    // hPa
	WindSpeed        float64   `json:"wind_speed"`  // m/s
	WeatherCondition string    `json:"weather_condition"`
	HeatIndex        float64   `json:"heat_index"` // °C, derived
}

// Location is a WGS-84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
