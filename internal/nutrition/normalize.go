// Package nutrition keeps nutrition facts numerically self-consistent.
package nutrition

import (
	"math"
	"strings"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

const (
	// Atwater factors, kcal per gram.
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9

	// ToleranceRatio is the relative slack allowed between reported and derived calories.
	ToleranceRatio = 0.15
	// MinTolerance is the absolute floor of that slack, in kcal.
	MinTolerance = 15.0
	// MinReasonableCalories is the floor applied when macros are present.
	MinReasonableCalories = 10.0

	estimatedPrefix = "⚠️ "
	estimatedSuffix = " (calories adjusted for consistency)"
)

// NormalizedRecord is the result of Normalize.
type NormalizedRecord struct {
	Calories    float64
	Protein     float64
	Carbs       float64
	Fat         float64
	Description string
	// Adjusted is true when calories were replaced or raised.
	Adjusted bool
}

// Normalize clamps, rounds and reconciles calories against macros.
// It never fails and is a fixed point: normalizing its own output changes nothing.
func Normalize(calories, protein, carbs, fat float64, description string) NormalizedRecord {
	protein = round1(clamp(protein))
	carbs = round1(clamp(carbs))
	fat = round1(clamp(fat))
	calories = math.Round(clamp(calories))

	out := NormalizedRecord{
		Calories:    calories,
		Protein:     protein,
		Carbs:       carbs,
		Fat:         fat,
		Description: description,
	}

	calculated := CalculatedCalories(protein, carbs, fat)
	if math.Abs(calculated-calories) > Tolerance(calculated) {
		out.Calories = math.Round(calculated)
		out.Description = MarkEstimated(description)
		out.Adjusted = true
	}

	hasMacros := protein > 0 || carbs > 0 || fat > 0
	if hasMacros && out.Calories < MinReasonableCalories {
		out.Calories = math.Round(math.Max(calculated, MinReasonableCalories))
		out.Adjusted = true
	}

	return out
}

// NormalizeRecord returns a normalized copy of r; r itself is not modified.
func NormalizeRecord(r models.NutritionRecord) models.NutritionRecord {
	n := Normalize(r.Calories, r.Protein, r.Carbs, r.Fat, r.Name)
	out := r.Clone()
	out.Calories = n.Calories
	out.Protein = n.Protein
	out.Carbs = n.Carbs
	out.Fat = n.Fat
	out.Name = n.Description
	if out.Confidence < 0 {
		out.Confidence = 0
	} else if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out
}

// CalculatedCalories derives calories from macros with the Atwater factors.
func CalculatedCalories(protein, carbs, fat float64) float64 {
	return protein*kcalPerGramProtein + carbs*kcalPerGramCarbs + fat*kcalPerGramFat
}

// Tolerance returns the allowed gap for a derived calorie value.
func Tolerance(calculated float64) float64 {
	return math.Max(calculated*ToleranceRatio, MinTolerance)
}

// IsCalorieConsistent re-derives the normalization check on an existing record.
func IsCalorieConsistent(r models.NutritionRecord) bool {
	calculated := CalculatedCalories(r.Protein, r.Carbs, r.Fat)
	return math.Abs(calculated-r.Calories) <= Tolerance(calculated)
}

// Classify maps a record to a coarse confidence level.
func Classify(r models.NutritionRecord) models.ConfidenceLevel {
	switch {
	case HasEstimatedMarker(r.Name):
		return models.ConfidenceLow
	case IsCalorieConsistent(r):
		return models.ConfidenceHigh
	default:
		return models.ConfidenceMedium
	}
}

// HasEstimatedMarker reports whether description already carries the marker.
func HasEstimatedMarker(description string) bool {
	return strings.HasSuffix(description, estimatedSuffix)
}

// MarkEstimated adds the estimated marker once.
func MarkEstimated(description string) string {
	if HasEstimatedMarker(description) {
		return description
	}
	return estimatedPrefix + description + estimatedSuffix
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
