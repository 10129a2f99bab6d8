package astrology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mmeshcher/kundali-system/internal/model"
)

// LahiriAyanamsa задаёт идентификатор айанамши Лахири у провайдера.
const LahiriAyanamsa = 1

var (
	// ErrAuthFailed возвращается, если провайдер отказал в выдаче токена.
	ErrAuthFailed = errors.New("astrology provider authentication failed")
	// ErrRequestFailed возвращается, если запрос карты завершился ошибочным статусом.
	ErrRequestFailed = errors.New("astrology provider request failed")
	// ErrUnavailable возвращается, если провайдер недоступен по сети или не ответил вовремя.
	ErrUnavailable = errors.New("astrology provider unavailable")
	// ErrNotConfigured возвращается при обращении к клиенту без адреса провайдера.
	ErrNotConfigured = errors.New("astrology client not configured")
)

// ProviderError описывает ответ провайдера с неуспешным HTTP-статусом.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("astrology %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ChartRequest описывает тело запроса на построение натальной карты.
type ChartRequest struct {
	Datetime    string            `json:"datetime"`
	Coordinates model.Coordinates `json:"coordinates"`
	Timezone    float64           `json:"timezone"`
	Ayanamsa    int               `json:"ayanamsa"`
}

// NewChartRequest собирает запрос карты по нормализованным данным о рождении.
func NewChartRequest(in model.BirthInput) ChartRequest {
	return ChartRequest{
		Datetime:    in.Datetime(),
		Coordinates: in.Coordinates(),
		Timezone:    model.Timezone,
		Ayanamsa:    LahiriAyanamsa,
	}
}

// ProviderResponse описывает ответ провайдера на запрос карты.
type ProviderResponse struct {
	Status string    `json:"status"`
	Data   ChartData `json:"data"`
}

// ChartData содержит планеты и дома карты в формате провайдера.
type ChartData struct {
	Planets   []Planet   `json:"planets"`
	Houses    []House    `json:"houses"`
	Nakshatra *Nakshatra `json:"nakshatra,omitempty"`
}

// Planet описывает положение планеты в ответе провайдера.
type Planet struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	VedicName string  `json:"vedic_name"`
	Longitude float64 `json:"longitude"`
	Sign      string  `json:"sign"`
	Degree    Degree  `json:"degree"`
	House     *int    `json:"house,omitempty"`
}

// House описывает дом карты в ответе провайдера.
type House struct {
	ID   int    `json:"id"`
	Sign string `json:"sign"`
}

// Nakshatra описывает накшатру рождения.
type Nakshatra struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Degree хранит градус внутри знака; провайдер присылает его строкой или числом.
type Degree string

// UnmarshalJSON принимает как строковое, так и числовое представление.
func (d *Degree) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Degree(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("degree: %w", err)
	}
	*d = Degree(b)
	return nil
}
