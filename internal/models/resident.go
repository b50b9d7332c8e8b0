package models

import (
	"github.com/jinzhu/gorm"
)

// Resident represents a diner with a known table seat assignment
type Resident struct {
	gorm.Model
	Name         string
	TableID      int
	SeatNumber   int
	Restrictions []DietaryRestriction `gorm:"foreignkey:ResidentID"`
}

// DietaryRestriction names a restriction attached to a resident,
// e.g. "Gluten-free" or "No nuts"
type DietaryRestriction struct {
	gorm.Model
	ResidentID uint
	Name       string
}
