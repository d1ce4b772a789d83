package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Function groups the events a single registration can book tickets for.
type Function struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"not null"`
	Events    []Event
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	FunctionID uuid.UUID `gorm:"type:uuid;not null;index"`
	Title      string    `gorm:"not null"`
	StartTime  time.Time
	EndTime    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Package struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	FunctionID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name       string    `gorm:"not null"`
	Price      int64     `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (function *Function) BeforeCreate(tx *gorm.DB) (err error) {
	if function.ID == uuid.Nil {
		function.ID = uuid.New()
	}
	return
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

func (pkg *Package) BeforeCreate(tx *gorm.DB) (err error) {
	if pkg.ID == uuid.Nil {
		pkg.ID = uuid.New()
	}
	return
}
