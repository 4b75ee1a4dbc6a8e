package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Label string

const (
	LabelPub   Label = "PUB"
	LabelNoPub Label = "NO PUB"
)

var (
	ErrUnknownLabel     = errors.New("unknown label")
	ErrConfidenceRange  = errors.New("confidence out of range")
	ErrMissingOwner     = errors.New("missing owner")
	ErrMissingImagePath = errors.New("missing image path")
)

// ParseLabel normalises a backend label case-insensitively.
func ParseLabel(raw string) (Label, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PUB":
		return LabelPub, nil
	case "NO PUB", "NOPUB", "NO_PUB", "NO-PUB":
		return LabelNoPub, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
	}
}

func (l Label) Valid() bool {
	return l == LabelPub || l == LabelNoPub
}

// UnmarshalJSON normalises stored labels; unknown values are kept as sent.
func (l *Label) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, err := ParseLabel(raw); err == nil {
		*l = parsed
		return nil
	}
	*l = Label(raw)
	return nil
}

// OwnerID identifies the user a prediction belongs to. Numeric ids are
// encoded as JSON numbers so the backend's integer column accepts them.
type OwnerID string

func (o OwnerID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(o), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(o))
}

func (o *OwnerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OwnerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*o = OwnerID(n.String())
	return nil
}

// Prediction is a persisted classification result.
type Prediction struct {
	ID         *int64     `json:"id,omitempty"`
	Label      Label      `json:"label"`
	Confidence float64    `json:"confidence"`
	ImagePath  string     `json:"image_path"`
	Timestamp  *Timestamp `json:"timestamp,omitempty"`
	UserID     OwnerID    `json:"user_id"`
}

func (p Prediction) Validate() error {
	if !p.Label.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, p.Label)
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return fmt.Errorf("%w: %v", ErrConfidenceRange, p.Confidence)
	}
	if p.ImagePath == "" {
		return ErrMissingImagePath
	}
	if p.UserID == "" {
		return ErrMissingOwner
	}
	return nil
}

func (p Prediction) IsPub() bool {
	return p.Label == LabelPub
}

// ConfidenceText renders the confidence without trailing zeros.
func (p Prediction) ConfidenceText() string {
	return strconv.FormatFloat(p.Confidence, 'f', -1, 64)
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO form the
// backend emits; zone-less values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339))
}
