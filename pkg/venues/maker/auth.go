package maker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// signHeaders computes venue M's HMAC request-signing header set.
//
//	nonce        = current time in milliseconds
//	sig_payload  = nonce || METHOD || endpoint || (query_or_body)
//	sig          = base64(hmac_sha256(secret, sig_payload))
//	passphrase   = base64(hmac_sha256(secret, passphrase))
//
// For GET/DELETE, payloadOrBody is the query string (starting with "?");
// for POST, it's the compact JSON body. Pass "" when there is neither.
func signHeaders(creds Credentials, method, endpoint, payloadOrBody string) map[string]string {
	nonce := fmt.Sprintf("%d", time.Now().UnixMilli())
	strToSign := nonce + method + endpoint + payloadOrBody

	sig := hmacBase64(creds.APISecret, strToSign)
	passphrase := hmacBase64(creds.APISecret, creds.Passphrase)

	return map[string]string{
		"kc-api-key":         creds.APIKey,
		"kc-api-sign":        sig,
		"kc-api-timestamp":   nonce,
		"kc-api-passphrase":  passphrase,
		"kc-api-key-version": "2",
	}
}

func hmacBase64(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
