package payments

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test"

func TestVerifySignatureValid(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1","credits":10}`)
	now := time.Now()

	header := SignPayload(payload, testSecret, now)

	assert.True(t, VerifySignature(payload, header, testSecret, DefaultSignatureTolerance, now))
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	now := time.Now()

	header := SignPayload(payload, "other_secret", now)

	assert.False(t, VerifySignature(payload, header, testSecret, DefaultSignatureTolerance, now))
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	now := time.Now()
	header := SignPayload([]byte(`{"credits":10}`), testSecret, now)

	assert.False(t, VerifySignature([]byte(`{"credits":9999}`), header, testSecret, DefaultSignatureTolerance, now))
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	signedAt := time.Now().Add(-10 * time.Minute)

	header := SignPayload(payload, testSecret, signedAt)

	// The signature itself is valid but the timestamp is outside tolerance.
	assert.False(t, VerifySignature(payload, header, testSecret, 5*time.Minute, time.Now()))
	// Widening the tolerance accepts it again.
	assert.True(t, VerifySignature(payload, header, testSecret, 15*time.Minute, time.Now()))
}

func TestVerifySignatureFutureTimestamp(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	signedAt := time.Now().Add(10 * time.Minute)

	header := SignPayload(payload, testSecret, signedAt)

	assert.False(t, VerifySignature(payload, header, testSecret, 5*time.Minute, time.Now()))
}

func TestVerifySignatureCannotRestampReplay(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	now := time.Now()

	// Splice a fresh timestamp onto an hour-old MAC: the timestamp is inside
	// tolerance but no longer matches what the MAC covers.
	old := SignPayload(payload, testSecret, now.Add(-time.Hour))
	mac := old[strings.Index(old, ",v1="):]
	restamped := fmt.Sprintf("t=%d%s", now.Unix(), mac)

	assert.False(t, VerifySignature(payload, restamped, testSecret, DefaultSignatureTolerance, now))
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"missing v1", "t=1700000000"},
		{"missing t", "v1=deadbeef"},
		{"bad timestamp", "t=soon,v1=deadbeef"},
		{"bad hex", "t=1700000000,v1=zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(payload, tt.header, testSecret, DefaultSignatureTolerance, now))
		})
	}
}

func TestVerifySignatureEmptySecret(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Now()
	header := SignPayload(payload, "", now)

	assert.False(t, VerifySignature(payload, header, "", DefaultSignatureTolerance, now))
}
