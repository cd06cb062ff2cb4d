package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how stale a signed payload may be before
// it is treated as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature checks a provider webhook signature header of the form
//
//	t=<unix seconds>,v1=<hex hmac-sha256 of "<t>.<raw body>">
//
// against the shared secret. The timestamp is covered by the MAC, so a
// replayed body cannot be re-signed with a fresh timestamp without the
// secret. Comparison is constant time.
func VerifySignature(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	if header == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}

	var ts int64
	var sig []byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(strings.ToLower(v))
			if err != nil {
				return false
			}
			sig = decoded
		}
	}
	if ts == 0 || len(sig) == 0 {
		return false
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), sig)
}

// SignPayload produces a signature header for a payload, used by tests and
// the local provider simulator.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
