package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerify_AcceptsOwnSignature(t *testing.T) {
	cases := []struct {
		orderID   string
		paymentID string
		secret    string
	}{
		{"order_1", "pay_1", "secret"},
		{"order_IluGWxBm9U8zJ8", "pay_IluGWxBm9U8zJ9", "VD2-test-secret"},
		{"o", "p", "s"},
	}

	for _, c := range cases {
		sig := Sign(c.orderID, c.paymentID, c.secret)
		if !Verify(c.orderID, c.paymentID, sig, c.secret) {
			t.Fatalf("Verify(%q, %q) rejected its own signature", c.orderID, c.paymentID)
		}
	}
}

func TestSign_MatchesHMACOverPipeJoinedIDs(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("order_1|pay_1"))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := Sign("order_1", "pay_1", "secret"); got != want {
		t.Fatalf("Sign = %s, want %s", got, want)
	}
}

func TestVerify_RejectsSingleCharacterFlip(t *testing.T) {
	sig := Sign("order_1", "pay_1", "secret")

	for i := range sig {
		b := []byte(sig)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		if Verify("order_1", "pay_1", string(b), "secret") {
			t.Fatalf("signature with flipped char at %d was accepted", i)
		}
	}
}

func TestVerify_RejectsMissingFields(t *testing.T) {
	sig := Sign("order_1", "pay_1", "secret")

	if Verify("", "pay_1", sig, "secret") {
		t.Fatalf("empty order id must fail")
	}
	if Verify("order_1", "", sig, "secret") {
		t.Fatalf("empty payment id must fail")
	}
	if Verify("order_1", "pay_1", "", "secret") {
		t.Fatalf("empty signature must fail")
	}
	if Verify("order_1", "pay_1", sig, "") {
		t.Fatalf("empty secret must fail")
	}
	if Verify("order_1", "pay_1", "<wrong>", "secret") {
		t.Fatalf("wrong signature must fail")
	}
}

func TestVerify_SwappedIDsFail(t *testing.T) {
	sig := Sign("order_1", "pay_1", "secret")
	if Verify("pay_1", "order_1", sig, "secret") {
		t.Fatalf("swapped identifiers must not verify")
	}
}

func TestNewOrderID(t *testing.T) {
	a := NewOrderID()
	b := NewOrderID()

	if !strings.HasPrefix(a, "order_") || strings.Contains(a, "-") {
		t.Fatalf("unexpected order id format: %s", a)
	}
	if a == b {
		t.Fatalf("order ids must be unique")
	}
	if !strings.HasPrefix(NewReceipt(), "receipt_") {
		t.Fatalf("unexpected receipt format")
	}
}
