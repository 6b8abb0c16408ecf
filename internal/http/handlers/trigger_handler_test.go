package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"airline_code":"UA","flight_number":"123"}`)
	secret := "webhook-secret"

	tests := []struct {
		name      string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", body, sign(body, secret), true},
		{"empty signature", body, "", false},
		{"wrong secret", body, sign(body, "other-secret"), false},
		{"tampered body", []byte(`{"airline_code":"UA","flight_number":"999"}`), sign(body, secret), false},
		{"garbage signature", body, "deadbeef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifySignature(tt.body, tt.signature, secret); got != tt.want {
				t.Errorf("verifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
