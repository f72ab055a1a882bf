package transcoder

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the service signs webhook deliveries with.
const SignatureHeader = "Mux-Signature"

const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature   = errors.New("missing signature")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// Verifier checks "t=<unix>,v1=<hex>" headers where v1 is
// HMAC-SHA256(secret, "<t>.<raw body>").
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook signing secret is empty")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}, nil
}

func (v *Verifier) Verify(rawBody []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrMalformedSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return ErrSignatureExpired
	}

	expected := v.sign(timestamp, rawBody)
	for _, sig := range signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign builds a header value for body at time t. Used by tests and local
// tooling that replays deliveries.
func (v *Verifier) Sign(rawBody []byte, t time.Time) string {
	timestamp := strconv.FormatInt(t.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(v.sign(timestamp, rawBody)))
}

func (v *Verifier) sign(timestamp string, rawBody []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return mac.Sum(nil)
}
