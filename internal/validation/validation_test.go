package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/kundali-system/internal/model"
)

func ptr(v float64) *float64 {
	return &v
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name         string
		amount       int64
		currency     string
		wantCurrency string
		wantFields   []string
	}{
		{
			name:         "minimum amount, default currency",
			amount:       100,
			currency:     "",
			wantCurrency: "INR",
		},
		{
			name:         "lowercase currency",
			amount:       49900,
			currency:     "inr",
			wantCurrency: "INR",
		},
		{
			name:         "below minimum",
			amount:       50,
			wantCurrency: "INR",
			wantFields:   []string{"amount"},
		},
		{
			name:         "unsupported currency",
			amount:       1000,
			currency:     "USD",
			wantCurrency: "USD",
			wantFields:   []string{"currency"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			currency, err := ValidateOrder(tt.amount, tt.currency)
			assert.Equal(t, tt.wantCurrency, currency)

			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}

			var verrs Errors
			require.True(t, errors.As(err, &verrs))
			for _, f := range tt.wantFields {
				assert.Contains(t, verrs, f)
			}
		})
	}
}

func TestNormalizeBirthInput_UnknownTimeDefaultsToNoon(t *testing.T) {
	in := model.BirthInput{
		FullName:     "Asha",
		DateOfBirth:  "1990-05-15",
		TimeUnknown:  true,
		PlaceOfBirth: "Delhi, India",
		Latitude:     ptr(28.6139),
		Longitude:    ptr(77.2090),
	}

	out, err := NormalizeBirthInput(in)
	require.NoError(t, err)
	assert.Equal(t, "12:00", out.TimeOfBirth)
	assert.Equal(t, "1990-05-15 12:00", out.Datetime())
}

func TestNormalizeBirthInput_UnknownFlagOverridesTime(t *testing.T) {
	in := model.BirthInput{
		FullName:     "Asha",
		DateOfBirth:  "1990-05-15",
		TimeOfBirth:  "06:30",
		TimeUnknown:  true,
		PlaceOfBirth: "Delhi",
		Latitude:     ptr(28.6),
		Longitude:    ptr(77.2),
	}

	out, err := NormalizeBirthInput(in)
	require.NoError(t, err)
	assert.Equal(t, "1990-05-15 12:00", out.Datetime())
}

func TestNormalizeBirthInput_TruncatesSeconds(t *testing.T) {
	in := model.BirthInput{
		FullName:     "Ravi",
		DateOfBirth:  "2001-01-02",
		TimeOfBirth:  "07:05:59",
		PlaceOfBirth: "Pune",
		Latitude:     ptr(18.52),
		Longitude:    ptr(73.85),
	}

	out, err := NormalizeBirthInput(in)
	require.NoError(t, err)
	assert.Equal(t, "07:05", out.TimeOfBirth)
}

func TestNormalizeBirthInput_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    model.BirthInput
		field string
	}{
		{
			name:  "missing coordinates",
			in:    model.BirthInput{FullName: "A", DateOfBirth: "1990-05-15", PlaceOfBirth: "X", Longitude: ptr(1)},
			field: "latitude",
		},
		{
			name:  "latitude out of range",
			in:    model.BirthInput{FullName: "A", DateOfBirth: "1990-05-15", PlaceOfBirth: "X", Latitude: ptr(91), Longitude: ptr(1)},
			field: "latitude",
		},
		{
			name:  "longitude out of range",
			in:    model.BirthInput{FullName: "A", DateOfBirth: "1990-05-15", PlaceOfBirth: "X", Latitude: ptr(1), Longitude: ptr(-181)},
			field: "longitude",
		},
		{
			name:  "bad date",
			in:    model.BirthInput{FullName: "A", DateOfBirth: "15/05/1990", PlaceOfBirth: "X", Latitude: ptr(1), Longitude: ptr(1)},
			field: "dateOfBirth",
		},
		{
			name:  "bad time",
			in:    model.BirthInput{FullName: "A", DateOfBirth: "1990-05-15", TimeOfBirth: "25:99", PlaceOfBirth: "X", Latitude: ptr(1), Longitude: ptr(1)},
			field: "timeOfBirth",
		},
		{
			name:  "blank name",
			in:    model.BirthInput{FullName: "   ", DateOfBirth: "1990-05-15", PlaceOfBirth: "X", Latitude: ptr(1), Longitude: ptr(1)},
			field: "fullName",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeBirthInput(tt.in)

			var verrs Errors
			require.True(t, errors.As(err, &verrs), "expected Errors, got %v", err)
			assert.Contains(t, verrs, tt.field)
		})
	}
}

func TestValidateVerification(t *testing.T) {
	err := ValidateVerification(model.PaymentVerification{OrderID: "order_1"})

	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "paymentId")
	assert.Contains(t, verrs, "signature")
	assert.NotContains(t, verrs, "orderId")

	assert.NoError(t, ValidateVerification(model.PaymentVerification{
		PaymentID: "pay_1",
		OrderID:   "order_1",
		Signature: "abc",
	}))
}

func TestErrorsMessageIsSorted(t *testing.T) {
	err := Errors{"b": "two", "a": "one"}
	assert.Equal(t, "validation failed: a: one; b: two", err.Error())
}

func TestNormalizeKundaliRequest_RequiresPayment(t *testing.T) {
	in := model.BirthInput{
		FullName:     "Asha",
		DateOfBirth:  "1990-05-15",
		PlaceOfBirth: "Delhi, India",
		Latitude:     ptr(28.6139),
		Longitude:    ptr(77.2090),
	}

	_, err := NormalizeKundaliRequest(in)
	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, Errors{"paymentId": "is required"}, verrs)

	in.PaymentID = " pay_1 "
	out, err := NormalizeKundaliRequest(in)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", out.PaymentID)
	assert.Equal(t, "12:00", out.TimeOfBirth)

	in.Latitude = nil
	_, err = NormalizeKundaliRequest(in)
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "latitude")
	assert.NotContains(t, verrs, "paymentId")
}

func TestNormalizeBirthInput_EquatorAndMeridianAreValid(t *testing.T) {
	in := model.BirthInput{
		FullName:     "Kofi",
		DateOfBirth:  "1985-03-01",
		TimeOfBirth:  "23:59",
		PlaceOfBirth: "Gulf of Guinea",
		Latitude:     ptr(0),
		Longitude:    ptr(0),
	}

	out, err := NormalizeBirthInput(in)
	require.NoError(t, err)
	assert.Equal(t, "23:59", out.TimeOfBirth)
}

func TestNormalizeBirthInput_MessagesUseJSONNames(t *testing.T) {
	_, err := NormalizeBirthInput(model.BirthInput{
		DateOfBirth: "1990-13-40",
		TimeOfBirth: "7pm",
		Latitude:    ptr(-90.5),
		Longitude:   ptr(180.01),
	})

	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, Errors{
		"fullName":     "is required",
		"placeOfBirth": "is required",
		"dateOfBirth":  "must be in YYYY-MM-DD format",
		"timeOfBirth":  "must be in HH:MM format",
		"latitude":     "must be between -90 and 90",
		"longitude":    "must be between -180 and 180",
	}, verrs)
}

func TestValidateOrder_Messages(t *testing.T) {
	_, err := ValidateOrder(99, "usd")

	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, Errors{
		"amount":   "must be at least 100",
		"currency": "must be one of: INR",
	}, verrs)
}
