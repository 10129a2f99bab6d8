// Package model содержит доменные сущности сервиса построения кундали.
package model

import "time"

// OrderStatus описывает сохраняемый статус платёжного заказа.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// CanTransition сообщает, допустим ли переход заказа в статус to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusCreated:
		return to == OrderStatusPaid || to == OrderStatusFailed
	case OrderStatusPaid:
		return to == OrderStatusCompleted || to == OrderStatusFailed
	default:
		return false
	}
}

// Stage описывает этап конвейера обработки заказа.
type Stage string

const (
	StageCreated        Stage = "created"
	StagePaymentPending Stage = "payment_pending"
	StageVerified       Stage = "verified"
	StageGenerated      Stage = "generated"
	StageFailed         Stage = "failed"
)

// Status возвращает статус заказа, под которым этап хранится в репозитории.
func (s Stage) Status() OrderStatus {
	switch s {
	case StageVerified:
		return OrderStatusPaid
	case StageGenerated:
		return OrderStatusCompleted
	case StageFailed:
		return OrderStatusFailed
	default:
		return OrderStatusCreated
	}
}

// StageOf восстанавливает этап конвейера по сохранённому статусу заказа.
func StageOf(status OrderStatus) Stage {
	switch status {
	case OrderStatusPaid:
		return StageVerified
	case OrderStatusCompleted:
		return StageGenerated
	case OrderStatusFailed:
		return StageFailed
	default:
		return StagePaymentPending
	}
}

// PaymentOrder описывает платёжный заказ и его жизненный цикл.
type PaymentOrder struct {
	ID          string
	PaymentID   string
	Amount      int64
	Currency    string
	Receipt     string
	Description string
	Status      OrderStatus
	Birth       *BirthInput
	Kundali     *KundaliResult
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// OrderRequest содержит параметры создания платёжного заказа. Сумма указывается в пайсах.
type OrderRequest struct {
	Amount      int64  `json:"amount" validate:"min=100"`
	Currency    string `json:"currency" validate:"oneof=INR"`
	Description string `json:"description"`
}

// CheckoutOrder содержит данные, которые клиент передаёт платёжному виджету.
type CheckoutOrder struct {
	OrderID   string `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PublicKey string `json:"publicKey"`
}

// PaymentVerification содержит данные, присланные клиентом после оплаты.
type PaymentVerification struct {
	PaymentID string `json:"paymentId" validate:"required"`
	OrderID   string `json:"orderId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// BirthInput содержит данные о рождении, необходимые для построения карты.
type BirthInput struct {
	FullName     string   `json:"fullName" validate:"required"`
	DateOfBirth  string   `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	TimeOfBirth  string   `json:"timeOfBirth,omitempty" validate:"omitempty,timeofday"`
	PlaceOfBirth string   `json:"placeOfBirth" validate:"required"`
	Latitude     *float64 `json:"latitude" validate:"required,latitude"`
	Longitude    *float64 `json:"longitude" validate:"required,longitude"`
	TimeUnknown  bool     `json:"timeUnknown,omitempty"`
	PaymentID    string   `json:"paymentId,omitempty"`
}

// Datetime возвращает дату и время рождения в формате "YYYY-MM-DD HH:MM".
func (b BirthInput) Datetime() string {
	t := b.TimeOfBirth
	if b.TimeUnknown || t == "" {
		t = DefaultTimeOfBirth
	}
	return b.DateOfBirth + " " + t
}

// Coordinates возвращает координаты места рождения; отсутствующие значения равны нулю.
func (b BirthInput) Coordinates() Coordinates {
	var c Coordinates
	if b.Latitude != nil {
		c.Latitude = *b.Latitude
	}
	if b.Longitude != nil {
		c.Longitude = *b.Longitude
	}
	return c
}

// DefaultTimeOfBirth подставляется, когда время рождения неизвестно.
const DefaultTimeOfBirth = "12:00"

// Timezone задаёт фиксированное смещение (IST), с которым строится карта.
const Timezone = 5.5

// Source указывает, откуда получены данные карты.
type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Coordinates содержит географические координаты.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlanetPosition описывает положение планеты в карте.
type PlanetPosition struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	VedicName string  `json:"vedic_name"`
	Longitude float64 `json:"longitude"`
	Sign      string  `json:"sign"`
	House     int     `json:"house"`
	Degree    string  `json:"degree"`
}

// HousePosition описывает дом карты и планеты, находящиеся в нём.
type HousePosition struct {
	Number  int              `json:"number"`
	Sign    string           `json:"sign"`
	Planets []PlanetPosition `json:"planets"`
}

// BasicAnalysis содержит краткую сводку по карте.
type BasicAnalysis struct {
	ZodiacSign string `json:"zodiac_sign"`
	MoonSign   string `json:"moon_sign"`
	Ascendant  string `json:"ascendant"`
	BirthStar  string `json:"birth_star"`
}

// BirthDetails содержит параметры, с которыми строилась карта.
type BirthDetails struct {
	Datetime    string      `json:"datetime"`
	Coordinates Coordinates `json:"coordinates"`
	Timezone    float64     `json:"timezone"`
}

// KundaliResult описывает итоговую карту, возвращаемую клиенту.
type KundaliResult struct {
	Source             Source           `json:"source"`
	BasicAnalysis      BasicAnalysis    `json:"basic_analysis"`
	PlanetaryPositions []PlanetPosition `json:"planetary_positions"`
	Houses             []HousePosition  `json:"houses"`
	BirthDetails       BirthDetails     `json:"birth_details"`
}
