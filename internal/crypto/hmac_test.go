package crypto

import (
	"encoding/base64"
	"testing"
)

func TestVerifyWebhookRoundTrip(t *testing.T) {
	secret := "super-secret"
	body := []byte(`{"token_id":"123","side":"BUY","amount":50}`)

	sig := SignWebhook(secret, body)
	if !VerifyWebhook(secret, body, sig) {
		t.Error("signature produced by SignWebhook should verify")
	}

	// Bare hex digest (no sha256= prefix) is accepted too.
	if !VerifyWebhook(secret, body, sig[len("sha256="):]) {
		t.Error("bare hex digest should verify")
	}
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	secret := "super-secret"
	sig := SignWebhook(secret, []byte(`{"amount":50}`))

	if VerifyWebhook(secret, []byte(`{"amount":5000}`), sig) {
		t.Error("tampered body must not verify")
	}
}

func TestVerifyWebhookEmptySecretPasses(t *testing.T) {
	if !VerifyWebhook("", []byte("anything"), "garbage") {
		t.Error("verification is disabled when no secret is configured")
	}
}

func TestL2HeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("secret-bytes")),
		Passphrase: "pass",
	}

	h1 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	h2 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)

	if h1["POLY_SIGNATURE"] == "" {
		t.Fatal("expected non-empty signature")
	}
	if h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] {
		t.Error("same inputs should produce the same signature")
	}
	if h1["POLY_TIMESTAMP"] != "1700000000" {
		t.Errorf("unexpected timestamp %q", h1["POLY_TIMESTAMP"])
	}

	h3 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"a":2}`, 1700000000)
	if h1["POLY_SIGNATURE"] == h3["POLY_SIGNATURE"] {
		t.Error("different bodies should produce different signatures")
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != keyHex {
		t.Errorf("round trip mismatch: got %s", got)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("wrong password must fail")
	}
}
