// Package kundali приводит данные провайдера к формату карты и строит резервную карту,
// когда провайдер недоступен.
package kundali

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownSign подставляется вместо отсутствующих в ответе значений.
const UnknownSign = "Unknown"

// Signs перечисляет знаки зодиака по порядку, начиная с Овна.
var Signs = [12]string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// Planets задаёт канонический порядок девяти грах в карте.
var Planets = [9]string{
	"Sun", "Moon", "Mars", "Mercury", "Jupiter", "Venus", "Saturn", "Rahu", "Ketu",
}

var vedicNames = map[string]string{
	"Sun":     "Surya",
	"Moon":    "Chandra",
	"Mars":    "Mangal",
	"Mercury": "Budh",
	"Jupiter": "Guru",
	"Venus":   "Shukra",
	"Saturn":  "Shani",
	"Rahu":    "Rahu",
	"Ketu":    "Ketu",
}

// Nakshatras перечисляет 27 лунных стоянок.
var Nakshatras = [27]string{
	"Ashwini", "Bharani", "Krittika", "Rohini", "Mrigashira", "Ardra",
	"Punarvasu", "Pushya", "Ashlesha", "Magha", "Purva Phalguni", "Uttara Phalguni",
	"Hasta", "Chitra", "Swati", "Vishakha", "Anuradha", "Jyeshtha",
	"Mula", "Purva Ashadha", "Uttara Ashadha", "Shravana", "Dhanishta", "Shatabhisha",
	"Purva Bhadrapada", "Uttara Bhadrapada", "Revati",
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

func signIndexOf(lon float64) int {
	return int(normalizeLongitude(lon)/30) % 12
}

// SignOf возвращает знак зодиака для эклиптической долготы.
func SignOf(lon float64) string {
	return Signs[signIndexOf(lon)]
}

func signIndex(name string) int {
	for i, s := range Signs {
		if strings.EqualFold(s, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// wholeSignHouse считает дом по системе целых знаков: дом с асцендентом считается первым.
func wholeSignHouse(sign, ascendant int) int {
	return (sign-ascendant+12)%12 + 1
}

// NakshatraOf возвращает накшатру для долготы Луны.
func NakshatraOf(moonLon float64) string {
	span := 360.0 / float64(len(Nakshatras))
	idx := int(normalizeLongitude(moonLon)/span) % len(Nakshatras)
	return Nakshatras[idx]
}

func degreeInSign(lon float64) string {
	return fmt.Sprintf("%.2f", math.Mod(normalizeLongitude(lon), 30))
}

// formatDegree приводит градус провайдера к двум знакам после запятой.
func formatDegree(raw string, lon float64) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return degreeInSign(lon)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return degreeInSign(lon)
	}
	return fmt.Sprintf("%.2f", v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
