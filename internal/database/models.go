package database

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"time"
)

// Clip is one recorder-named video file in the catalog. Path is unique and
// ID never changes once assigned.
type Clip struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	DirSource    string    `json:"dirSource"`
	RecordedAt   time.Time `json:"recordedAt"`
	FileSize     int64     `json:"fileSize"`
	DurationSecs *float64  `json:"durationSecs,omitempty"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	ThumbPath    *string   `json:"thumbPath,omitempty"`
	Description  string    `json:"description"`
	Starred      bool      `json:"starred"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	ClipCount int       `json:"clipCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	SortOrder   int       `json:"sortOrder"`
	ClipCount   int       `json:"clipCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SmartFolder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Rules     RuleSet   `json:"rules"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RuleSet is a smart folder's serialized rules. The catalog stores and
// returns it verbatim and never looks inside.
type RuleSet []byte

// Value implements driver.Valuer.
func (r RuleSet) Value() (driver.Value, error) {
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *RuleSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case string:
		*r = RuleSet(v)
	case []byte:
		*r = bytes.Clone(v)
	default:
		return fmt.Errorf("cannot scan %T into RuleSet", src)
	}
	return nil
}

// MarshalJSON emits the stored payload as raw JSON.
func (r RuleSet) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps the raw payload.
func (r *RuleSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	*r = bytes.Clone(data)
	return nil
}

// Embedding is a clip's description vector, little-endian float32s.
type Embedding struct {
	ClipID       string    `json:"clipId"`
	Vector       []byte    `json:"-"`
	ModelVersion string    `json:"modelVersion"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Waveform is a clip's cached audio peak samples.
type Waveform struct {
	ClipID      string    `json:"clipId"`
	Samples     []byte    `json:"-"`
	SampleCount int       `json:"sampleCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
