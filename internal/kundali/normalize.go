package kundali

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/kundali-system/internal/astrology"
	"github.com/mmeshcher/kundali-system/internal/model"
)

// ErrIncompletePayload возвращается, если в ответе провайдера не хватает обязательных планет.
var ErrIncompletePayload = errors.New("incomplete provider payload")

// Normalize преобразует ответ провайдера в карту фиксированной формы: 12 домов и 9 планет
// в каноническом порядке. Номер дома из ответа провайдера имеет приоритет; если его нет,
// дом вычисляется от асцендента по целым знакам.
func Normalize(resp *astrology.ProviderResponse, in model.BirthInput) (*model.KundaliResult, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrIncompletePayload)
	}

	houses := buildHouses(resp.Data.Houses)

	ascendant := signIndex(houses[0].Sign)
	if ascendant < 0 {
		ascendant = 0
	}

	planets := make([]model.PlanetPosition, 0, len(Planets))
	for i, name := range Planets {
		p, ok := findPlanet(resp.Data.Planets, name)
		if !ok {
			return nil, fmt.Errorf("%w: planet %s is missing", ErrIncompletePayload, name)
		}

		lon := normalizeLongitude(p.Longitude)

		sign := strings.TrimSpace(p.Sign)
		if sign == "" {
			sign = SignOf(lon)
		}

		house := 0
		if p.House != nil && *p.House >= 1 && *p.House <= 12 {
			house = *p.House
		} else {
			idx := signIndex(sign)
			if idx < 0 {
				idx = signIndexOf(lon)
			}
			house = wholeSignHouse(idx, ascendant)
		}

		vedic := strings.TrimSpace(p.VedicName)
		if vedic == "" {
			vedic = vedicNames[name]
		}

		planets = append(planets, model.PlanetPosition{
			ID:        i + 1,
			Name:      name,
			VedicName: vedic,
			Longitude: lon,
			Sign:      sign,
			House:     house,
			Degree:    formatDegree(string(p.Degree), lon),
		})
	}

	placePlanets(houses, planets)

	birthStar := UnknownSign
	if n := resp.Data.Nakshatra; n != nil && strings.TrimSpace(n.Name) != "" {
		birthStar = strings.TrimSpace(n.Name)
	}

	return &model.KundaliResult{
		Source: model.SourceProvider,
		BasicAnalysis: model.BasicAnalysis{
			ZodiacSign: planets[0].Sign,
			MoonSign:   planets[1].Sign,
			Ascendant:  houses[0].Sign,
			BirthStar:  birthStar,
		},
		PlanetaryPositions: planets,
		Houses:             houses,
		BirthDetails:       birthDetails(in),
	}, nil
}

// buildHouses строит 12 домов по списку провайдера. Дома сопоставляются по id,
// только если все id различны и лежат в диапазоне 1..12; иначе по позиции в списке.
func buildHouses(src []astrology.House) []model.HousePosition {
	byNumber, ok := housesByID(src)
	if !ok {
		byNumber = make(map[int]string, 12)
		for i, h := range src {
			if i >= 12 {
				break
			}
			byNumber[i+1] = h.Sign
		}
	}

	houses := make([]model.HousePosition, 12)
	for i := range houses {
		sign := strings.TrimSpace(byNumber[i+1])
		if sign == "" {
			sign = UnknownSign
		}
		houses[i] = model.HousePosition{
			Number:  i + 1,
			Sign:    sign,
			Planets: []model.PlanetPosition{},
		}
	}
	return houses
}

func housesByID(src []astrology.House) (map[int]string, bool) {
	byNumber := make(map[int]string, len(src))
	for _, h := range src {
		if h.ID < 1 || h.ID > 12 {
			return nil, false
		}
		if _, dup := byNumber[h.ID]; dup {
			return nil, false
		}
		byNumber[h.ID] = h.Sign
	}
	return byNumber, len(byNumber) > 0
}

func findPlanet(src []astrology.Planet, name string) (astrology.Planet, bool) {
	vedic := vedicNames[name]
	for _, p := range src {
		n := strings.TrimSpace(p.Name)
		if strings.EqualFold(n, name) || strings.EqualFold(n, vedic) || strings.EqualFold(strings.TrimSpace(p.VedicName), vedic) {
			return p, true
		}
	}
	return astrology.Planet{}, false
}

func placePlanets(houses []model.HousePosition, planets []model.PlanetPosition) {
	for _, p := range planets {
		idx := p.House - 1
		houses[idx].Planets = append(houses[idx].Planets, p)
	}
}

func birthDetails(in model.BirthInput) model.BirthDetails {
	return model.BirthDetails{
		Datetime:    in.Datetime(),
		Coordinates: in.Coordinates(),
		Timezone:    model.Timezone,
	}
}
