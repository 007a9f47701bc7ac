package webhook

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

// SignatureHeader carries "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 of
// "<t>.<body>" under the signing secret.
const SignatureHeader = "Provider-Signature"

// SignatureTolerance bounds how far the signed timestamp may drift from now.
const SignatureTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook: missing signature")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrStaleSignature   = errors.New("webhook: signature timestamp outside tolerance")
)

// Sign returns the header value for body signed at ts.
func Sign(body []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + computeSignature(unix, body, secret)
}

// VerifySignature checks header against body. Several v1 values may be
// present while the provider rotates secrets; any match is accepted.
func VerifySignature(header string, body []byte, secret string, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	var (
		timestamp  string
		signatures []string
	)
	for _, element := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(element), "=")
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
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, timestamp)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("%w: age %v", ErrStaleSignature, age.Round(time.Second))
	}

	expected := computeSignature(timestamp, body, secret)
	for _, provided := range signatures {
		if hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func computeSignature(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
