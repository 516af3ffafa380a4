package models

import "time"

// UserProfile is the single profile record of a signed-in identity.
type UserProfile struct {
	ID          string     `json:"id" validate:"required"`
	FirstName   string     `json:"first_name" validate:"required,max=100"`
	LastName    *string    `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Age         int        `json:"age" validate:"gte=1,lte=130"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	HeightCm    float64    `json:"height_cm" validate:"gt=0,lte=300"`
	WeightKg    float64    `json:"weight_kg" validate:"gt=0,lte=700"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the profile.
func (p UserProfile) Clone() UserProfile {
	c := p
	c.LastName = cloneString(p.LastName)
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		c.DateOfBirth = &dob
	}
	return c
}

// ProfilePatch is a field-level update; nil fields are left untouched.
type ProfilePatch struct {
	FirstName   *string
	LastName    *string
	Age         *int
	DateOfBirth *time.Time
	HeightCm    *float64
	WeightKg    *float64
}

// IsEmpty reports whether the patch changes nothing.
func (pp ProfilePatch) IsEmpty() bool {
	return pp.FirstName == nil && pp.LastName == nil && pp.Age == nil &&
		pp.DateOfBirth == nil && pp.HeightCm == nil && pp.WeightKg == nil
}

// Apply returns a copy of p with the patch's non-nil fields merged in.
func (pp ProfilePatch) Apply(p UserProfile) UserProfile {
	out := p.Clone()
	if pp.FirstName != nil {
		out.FirstName = *pp.FirstName
	}
	if pp.LastName != nil {
		out.LastName = cloneString(pp.LastName)
	}
	if pp.Age != nil {
		out.Age = *pp.Age
	}
	if pp.DateOfBirth != nil {
		dob := *pp.DateOfBirth
		out.DateOfBirth = &dob
	}
	if pp.HeightCm != nil {
		out.HeightCm = *pp.HeightCm
	}
	if pp.WeightKg != nil {
		out.WeightKg = *pp.WeightKg
	}
	return out
}
