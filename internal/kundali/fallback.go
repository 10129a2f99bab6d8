package kundali

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/mmeshcher/kundali-system/internal/model"
)

// Fallback строит резервную карту, когда провайдер недоступен. Карта не имеет
// астрологического смысла, но детерминирована: одна и та же дата рождения всегда
// даёт одинаковый результат. Форма совпадает с Normalize, источник помечен как fallback.
func Fallback(in model.BirthInput) *model.KundaliResult {
	rng := rand.New(rand.NewPCG(seedOf(in.DateOfBirth)))

	ascendant := rng.IntN(len(Signs))

	houses := make([]model.HousePosition, 12)
	for i := range houses {
		houses[i] = model.HousePosition{
			Number:  i + 1,
			Sign:    Signs[(ascendant+i)%12],
			Planets: []model.PlanetPosition{},
		}
	}

	planets := make([]model.PlanetPosition, 0, len(Planets))
	var rahu float64
	for i, name := range Planets {
		var lon float64
		switch name {
		case "Ketu":
			// Кету всегда напротив Раху.
			lon = normalizeLongitude(rahu + 180)
		default:
			lon = normalizeLongitude(round2(rng.Float64() * 360))
		}
		if name == "Rahu" {
			rahu = lon
		}

		sign := signIndexOf(lon)
		planets = append(planets, model.PlanetPosition{
			ID:        i + 1,
			Name:      name,
			VedicName: vedicNames[name],
			Longitude: lon,
			Sign:      Signs[sign],
			House:     wholeSignHouse(sign, ascendant),
			Degree:    degreeInSign(lon),
		})
	}

	placePlanets(houses, planets)

	return &model.KundaliResult{
		Source: model.SourceFallback,
		BasicAnalysis: model.BasicAnalysis{
			ZodiacSign: planets[0].Sign,
			MoonSign:   planets[1].Sign,
			Ascendant:  houses[0].Sign,
			BirthStar:  NakshatraOf(planets[1].Longitude),
		},
		PlanetaryPositions: planets,
		Houses:             houses,
		BirthDetails:       birthDetails(in),
	}
}

func seedOf(date string) (uint64, uint64) {
	h := fnv.New64a()
	h.Write([]byte(strings.TrimSpace(date)))
	sum := h.Sum64()
	return sum, sum ^ 0x9e3779b97f4a7c15
}
