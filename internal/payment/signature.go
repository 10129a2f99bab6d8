// Package payment содержит проверку подписи платёжного шлюза и выдачу идентификаторов заказов.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Sign вычисляет подпись шлюза: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись клиента с ожидаемой за постоянное время.
// Любое пустое поле даёт отрицательный результат.
func Verify(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}

	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// NewOrderID выдаёт новый идентификатор заказа.
func NewOrderID() string {
	return "order_" + compactUUID()
}

// NewReceipt выдаёт номер квитанции для заказа.
func NewReceipt() string {
	return "receipt_" + compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
