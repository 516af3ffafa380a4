package models

import (
	"time"
)

// InputMethod records how the user captured an entry.
type InputMethod string

const (
	InputText    InputMethod = "text"
	InputVoice   InputMethod = "voice"
	InputCamera  InputMethod = "camera"
	InputBarcode InputMethod = "barcode"
	InputManual  InputMethod = "manual"
)

// ItemKind tags an entry's role inside a composite meal.
type ItemKind string

const (
	ItemStandalone ItemKind = "standalone"
	ItemMeal       ItemKind = "meal"
	ItemMain       ItemKind = "main_item"
	ItemSide       ItemKind = "side"
	ItemDrink      ItemKind = "drink"
)

// NutritionSnapshot is the denormalized copy of a NutritionRecord stored on an entry.
type NutritionSnapshot struct {
	RecordID    string    `json:"record_id,omitempty"`
	Name        string    `json:"name"`
	Brand       *string   `json:"brand,omitempty"`
	Calories    float64   `json:"calories"`
	Protein     float64   `json:"protein"`
	Carbs       float64   `json:"carbs"`
	Fat         float64   `json:"fat"`
	Fiber       *float64  `json:"fiber,omitempty"`
	Sugar       *float64  `json:"sugar,omitempty"`
	Sodium      *float64  `json:"sodium,omitempty"`
	Confidence  float64   `json:"confidence"`
	Source      SourceTag `json:"source,omitempty"`
	ServingSize *string   `json:"serving_size,omitempty"`
}

// FoodEntry is one logged item in a user's food ledger.
// A composite entry (non-empty SubItems) derives its totals from its children.
type FoodEntry struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Nutrition   NutritionSnapshot `json:"nutrition"`
	InputMethod InputMethod       `json:"input_method"`
	Kind        ItemKind          `json:"kind,omitempty"`
	SubItems    []FoodEntry       `json:"sub_items,omitempty"`
	MealGroupID *string           `json:"meal_group_id,omitempty"`
}

// IsComposite reports whether the entry carries sub-items.
func (e FoodEntry) IsComposite() bool {
	return len(e.SubItems) > 0
}

// Totals returns the entry's nutrition totals: the sum over SubItems when
// present, otherwise the entry's own scalar fields. Never both.
func (e FoodEntry) Totals() Totals {
	if !e.IsComposite() {
		return Totals{
			Calories: e.Nutrition.Calories,
			Protein:  e.Nutrition.Protein,
			Carbs:    e.Nutrition.Carbs,
			Fat:      e.Nutrition.Fat,
			Fiber:    deref(e.Nutrition.Fiber),
			Sugar:    deref(e.Nutrition.Sugar),
			Sodium:   deref(e.Nutrition.Sodium),
		}
	}
	var t Totals
	for _, sub := range e.SubItems {
		t = t.Add(sub.Totals())
	}
	return t
}

// Leaves returns the non-composite items making up the entry.
func (e FoodEntry) Leaves() []FoodEntry {
	if !e.IsComposite() {
		return []FoodEntry{e}
	}
	var out []FoodEntry
	for _, sub := range e.SubItems {
		out = append(out, sub.Leaves()...)
	}
	return out
}

// Clone returns a deep copy so callers never share mutable state with the ledger.
func (e FoodEntry) Clone() FoodEntry {
	c := e
	c.Nutrition.Brand = cloneString(e.Nutrition.Brand)
	c.Nutrition.Fiber = cloneFloat(e.Nutrition.Fiber)
	c.Nutrition.Sugar = cloneFloat(e.Nutrition.Sugar)
	c.Nutrition.Sodium = cloneFloat(e.Nutrition.Sodium)
	c.Nutrition.ServingSize = cloneString(e.Nutrition.ServingSize)
	c.MealGroupID = cloneString(e.MealGroupID)
	if e.SubItems != nil {
		c.SubItems = make([]FoodEntry, len(e.SubItems))
		for i, sub := range e.SubItems {
			c.SubItems[i] = sub.Clone()
		}
	}
	return c
}

// Totals is an aggregate of nutrition values.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Sugar    float64 `json:"sugar"`
	Sodium   float64 `json:"sodium"`
}

// Add returns t + o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Calories: t.Calories + o.Calories,
		Protein:  t.Protein + o.Protein,
		Carbs:    t.Carbs + o.Carbs,
		Fat:      t.Fat + o.Fat,
		Fiber:    t.Fiber + o.Fiber,
		Sugar:    t.Sugar + o.Sugar,
		Sodium:   t.Sodium + o.Sodium,
	}
}
