package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"umuhanda-backend/internal/domain"
)

// SignatureHeader carries "t=<unix ms>,s=<hex hmac>".
const SignatureHeader = "irembopay-signature"

// SignatureTolerance bounds how old a signed timestamp may be.
const SignatureTolerance = 5 * time.Minute

// Sign computes the hex HMAC-SHA256 of "<timestamp>#<body>".
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("#"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a webhook signature header against body. An empty
// secret disables the check.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	if secret == "" {
		return nil
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "s":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: missing timestamp or signature", domain.ErrInvalidSignature)
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrInvalidSignature)
	}
	age := now.Sub(time.UnixMilli(ms))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}
	expected := Sign(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return domain.ErrInvalidSignature
	}
	return nil
}
