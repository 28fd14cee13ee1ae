// Package domain models current-weather observations collected from the
// OpenWeather API.
//
// # Data Source
//
// Observations come from the OpenWeather "current weather" endpoint
// (https://api.openweathermap.org/data/2.5/weather) queried for one fixed
// coordinate with units=metric. The fields used are:
//
//	main.temp      air temperature, °C
//	main.humidity  relative humidity, %
//	main.pressure  sea-level pressure, hPa
//	wind.speed     m/s
//	weather[0].description  short free-text condition, e.g. "light rain"
//	dt             observation time, Unix seconds UTC
//
// OpenWeather refreshes a location roughly every 10 minutes, so polling more
// often than that returns the same dt. The dt value is therefore the natural
// key of an observation.
//
// # Heat Index
//
// Heat index is the NWS Rothfusz regression evaluated in Fahrenheit and
// converted back to Celsius:
//
//	HI = -42.379 + 2.04901523T + 10.14333127R - 0.22475541TR
//	     - 0.00683783T² - 0.05481717R² + 0.00122874T²R
//	     + 0.00085282TR² - 0.00000199T²R²
//
// The regression is fitted for warm, humid air only. Below 26.7 °C or below
// 40 % humidity (both strict comparisons) the air temperature is returned
// unchanged. See [HeatIndex].
//
// # Errors
//
// Failures are classified as [ConfigError], [TransportError], [SchemaError]
// or [StorageError]. Use errors.As to branch on the class, or [Kind] for a
// log/metric label.
package domain
