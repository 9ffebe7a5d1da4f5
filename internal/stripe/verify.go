// internal/stripe/verify.go
package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed timestamp.
const DefaultTolerance = 300 * time.Second

// Verification errors. Their messages are returned to the caller as the
// invalid-event reason.
var (
	ErrNoSecret          = errors.New("webhook secret is not configured")
	ErrInvalidHeader     = errors.New("unable to extract timestamp and signatures from header")
	ErrNoSignatures      = errors.New("no signatures found with expected scheme")
	ErrSignatureMismatch = errors.New("no signatures found matching the expected signature for payload")
	ErrTimestampTooOld   = errors.New("timestamp outside the tolerance zone")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// Event is the part of a Stripe event the system stores.
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode *bool
	Raw      json.RawMessage
}

// Verifier checks Stripe-Signature headers against a shared secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier. A non-positive tolerance uses
// DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// SetClock overrides the time source.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// ConstructEvent verifies header ("t=<unix>,v1=<hex>[,v1=...]") over
// payload and parses the event.
func (v *Verifier) ConstructEvent(payload []byte, header string) (*Event, error) {
	if v.secret == "" {
		return nil, ErrNoSecret
	}
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	expected := computeSignature(v.secret, ts, payload)
	matched := false
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrSignatureMismatch
	}
	if v.now().Sub(ts) > v.tolerance {
		return nil, ErrTimestampTooOld
	}

	return parseEvent(payload)
}

func parseHeader(header string) (time.Time, [][]byte, error) {
	var (
		ts    time.Time
		hasTS bool
		sigs  [][]byte
	)
	for _, item := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, ErrInvalidHeader
			}
			ts, hasTS = time.Unix(unix, 0), true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if !hasTS {
		return time.Time{}, nil, ErrInvalidHeader
	}
	if len(sigs) == 0 {
		return time.Time{}, nil, ErrNoSignatures
	}
	return ts, sigs, nil
}

func computeSignature(secret string, ts time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeader builds a valid Stripe-Signature header for payload. It is
// used by tests and local tooling.
func SignatureHeader(secret string, payload []byte, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(computeSignature(secret, ts, payload)))
}

func parseEvent(payload []byte) (*Event, error) {
	var body struct {
		ID       string `json:"id"`
		Object   string `json:"object"`
		Type     string `json:"type"`
		Created  int64  `json:"created"`
		Livemode *bool  `json:"livemode"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.ID == "" || body.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}
	ev := &Event{
		ID:       body.ID,
		Type:     body.Type,
		Livemode: body.Livemode,
		Raw:      json.RawMessage(payload),
	}
	if body.Created > 0 {
		ev.Created = time.Unix(body.Created, 0).UTC()
	}
	return ev, nil
}
