package taker

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Wallet holds the ed25519 signing key used for both onboarding and order
// signing on venue T, plus the address derived from it.
type Wallet struct {
	signingKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewWallet derives a Wallet from a hex-encoded 32-byte ed25519 seed.
func NewWallet(keyHex string) (*Wallet, error) {
	keyHex = strings.TrimPrefix(keyHex, "0x")
	seed, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode wallet key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	signingKey := ed25519.NewKeyFromSeed(seed)
	publicKey := signingKey.Public().(ed25519.PublicKey)

	addr, err := deriveAddress(publicKey)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	return &Wallet{signingKey: signingKey, publicKey: publicKey, address: addr}, nil
}

// Address returns the "0x"-prefixed, lowercase-hex wallet address.
func (w *Wallet) Address() string { return w.address }

// PublicKey returns the raw ed25519 public key bytes.
func (w *Wallet) PublicKey() ed25519.PublicKey { return w.publicKey }

// deriveAddress computes address = "0x" || lowercase_hex(blake2b32(0x00 || pubkey)).
func deriveAddress(pub ed25519.PublicKey) (string, error) {
	h, err := blake2b.New(32, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte{0x00})
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum), nil
}

// signTransport produces the wire signature format venue T expects
// everywhere a signature is transmitted: lowercase_hex(sig) + "1" +
// base64(pubkey). The trailing "1" is a scheme tag the verifier consumes
// literally — it is not a typo and must not be stripped.
func (w *Wallet) signTransport(message []byte) string {
	sig := ed25519.Sign(w.signingKey, message)
	return hex.EncodeToString(sig) + "1" + base64.StdEncoding.EncodeToString(w.publicKey)
}

// onboardingIntent builds the bit-exact intent bytes for the onboarding
// signature: [0x03,0x00,0x00,len(P)] || P, where P is compact JSON
// {"onboardingUrl": url}.
func onboardingIntent(onboardingURL string) ([]byte, error) {
	payload := struct {
		OnboardingURL string `json:"onboardingUrl"`
	}{OnboardingURL: onboardingURL}

	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal onboarding payload: %w", err)
	}
	if len(p) > 255 {
		return nil, fmt.Errorf("onboarding payload too long: %d bytes", len(p))
	}

	intent := make([]byte, 0, 4+len(p))
	intent = append(intent, 0x03, 0x00, 0x00, byte(len(p)))
	intent = append(intent, p...)
	return intent, nil
}

// SignOnboarding produces the full signature transport string for the
// /authorize handshake: blake2b-32(intent) is signed, then wrapped per
// signTransport.
func (w *Wallet) SignOnboarding(onboardingURL string) (string, error) {
	intent, err := onboardingIntent(onboardingURL)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New(32, nil)
	if err != nil {
		return "", err
	}
	h.Write(intent)
	digest := h.Sum(nil)
	return w.signTransport(digest), nil
}

// SignOrder computes the order hash (sha256 of the canonical serialized
// buffer) and signs that digest, returning both the hex hash and the
// transport signature string.
func (w *Wallet) SignOrder(o Order) (hashHex, signature string, err error) {
	buf, err := canonicalSerialize(o)
	if err != nil {
		return "", "", err
	}
	raw, err := hex.DecodeString(buf)
	if err != nil {
		return "", "", fmt.Errorf("decode canonical buffer: %w", err)
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:]), w.signTransport(digest[:]), nil
}
