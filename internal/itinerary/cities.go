package itinerary

import (
	"strings"

	"github.com/example/voyago/internal/models"
)

// fallbackCity is used when a city is unrecognized (Bangalore).
var fallbackCity = models.Coord{Lat: 12.9716, Lng: 77.5946}

var cityCoords = map[string]models.Coord{
	"bangalore": {Lat: 12.9716, Lng: 77.5946},
	"bengaluru": {Lat: 12.9716, Lng: 77.5946},
	"goa":       {Lat: 15.2993, Lng: 74.1240},
	"mumbai":    {Lat: 19.0760, Lng: 72.8777},
	"delhi":     {Lat: 28.7041, Lng: 77.1025},
	"chennai":   {Lat: 13.0827, Lng: 80.2707},
	"hyderabad": {Lat: 17.3850, Lng: 78.4867},
	"kolkata":   {Lat: 22.5726, Lng: 88.3639},
	"pune":      {Lat: 18.5204, Lng: 73.8567},
	"jaipur":    {Lat: 26.9124, Lng: 75.7873},
	"kochi":     {Lat: 9.9312, Lng: 76.2673},
	"manali":    {Lat: 32.2396, Lng: 77.1887},
}

// CityCoord resolves a city name to coordinates: exact lookup, then
// substring match either way, then the fixed fallback.
func CityCoord(name string) models.Coord {
	if name == "" {
		return fallbackCity
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := cityCoords[key]; ok {
		return c
	}
	for k, c := range cityCoords {
		if strings.Contains(key, k) || strings.Contains(k, key) {
			return c
		}
	}
	return fallbackCity
}

// airportOffset places a city's airport a fixed offset from its centre.
const airportOffset = 0.2

func airportFor(city models.Coord) models.Coord {
	return models.Coord{Lat: city.Lat + airportOffset, Lng: city.Lng + airportOffset}
}

// activityOffset spreads activity venues around the destination centre.
const activityOffset = 0.01

func activityCoord(city models.Coord, index int) models.Coord {
	d := activityOffset * float64(index+1)
	return models.Coord{Lat: city.Lat + d, Lng: city.Lng + d}
}
