// Package models provides data model definitions for the nutrilog core.
package models

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh UUID v4 string.
func NewID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as a UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SourceTag records where a nutrition record came from.
type SourceTag string

const (
	SourceAIText  SourceTag = "ai_text"
	SourceBarcode SourceTag = "barcode"
	SourceManual  SourceTag = "manual"
	SourceCache   SourceTag = "cache"
	SourceVoice   SourceTag = "voice"
	SourceCamera  SourceTag = "camera"
)

// ConfidenceLevel is the coarse trust classification of a nutrition record.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// NutritionRecord holds resolved nutritional facts for one food item or serving.
// Records are immutable once built; adjustments produce a new value.
type NutritionRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Brand       *string   `json:"brand,omitempty"`
	Calories    float64   `json:"calories"`
	Protein     float64   `json:"protein"`
	Carbs       float64   `json:"carbs"`
	Fat         float64   `json:"fat"`
	Fiber       *float64  `json:"fiber,omitempty"`
	Sugar       *float64  `json:"sugar,omitempty"`
	Sodium      *float64  `json:"sodium,omitempty"`
	Confidence  float64   `json:"confidence"` // 0..1
	Source      SourceTag `json:"source"`
	ServingSize *string   `json:"serving_size,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snapshot copies the record's fields into an entry snapshot.
func (r NutritionRecord) Snapshot() NutritionSnapshot {
	return NutritionSnapshot{
		RecordID:    r.ID,
		Name:        r.Name,
		Brand:       cloneString(r.Brand),
		Calories:    r.Calories,
		Protein:     r.Protein,
		Carbs:       r.Carbs,
		Fat:         r.Fat,
		Fiber:       cloneFloat(r.Fiber),
		Sugar:       cloneFloat(r.Sugar),
		Sodium:      cloneFloat(r.Sodium),
		Confidence:  r.Confidence,
		Source:      r.Source,
		ServingSize: cloneString(r.ServingSize),
	}
}

// Clone returns a deep copy of the record.
func (r NutritionRecord) Clone() NutritionRecord {
	c := r
	c.Brand = cloneString(r.Brand)
	c.Fiber = cloneFloat(r.Fiber)
	c.Sugar = cloneFloat(r.Sugar)
	c.Sodium = cloneFloat(r.Sodium)
	c.ServingSize = cloneString(r.ServingSize)
	return c
}

// Float returns a pointer to v, for optional record fields.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s, for optional record fields.
func String(s string) *string {
	return &s
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
