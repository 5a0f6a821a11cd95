package maker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestSignHeadersIncludesAllRequiredKeys(t *testing.T) {
	t.Parallel()
	creds := Credentials{APIKey: "key", APISecret: "secret", Passphrase: "phrase"}
	headers := signHeaders(creds, "GET", "/api/v1/position", "?symbol=ETHUSDTM")

	for _, k := range []string{"kc-api-key", "kc-api-sign", "kc-api-timestamp", "kc-api-passphrase", "kc-api-key-version"} {
		if headers[k] == "" {
			t.Errorf("missing header %q", k)
		}
	}
	if headers["kc-api-key-version"] != "2" {
		t.Errorf("kc-api-key-version = %q, want \"2\"", headers["kc-api-key-version"])
	}
	if headers["kc-api-key"] != "key" {
		t.Errorf("kc-api-key = %q, want \"key\"", headers["kc-api-key"])
	}
}

func TestSignHeadersPassphraseIsHMACOfPassphrase(t *testing.T) {
	t.Parallel()
	creds := Credentials{APIKey: "key", APISecret: "secret", Passphrase: "phrase"}
	headers := signHeaders(creds, "GET", "/api/v1/position", "")

	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(creds.Passphrase))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if headers["kc-api-passphrase"] != want {
		t.Errorf("kc-api-passphrase = %q, want %q", headers["kc-api-passphrase"], want)
	}
}

func TestVenueSymbolTranslation(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"ETH-PERP": "ETHUSDTM",
		"BTC-PERP": "BTCUSDTM",
		"SUI-PERP": "SUIUSDTM",
		"DOGE-PERP": "DOGE-PERP", // unmapped symbols pass through unchanged
	}
	for in, want := range cases {
		if got := VenueSymbol(in); got != want {
			t.Errorf("VenueSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
