package config

import (
	"time"

	"github.com/farellandr/ticketflow/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedCatalogue creates a demo function with one event and two ticket types
// when no function with the same name exists. It is safe to run repeatedly.
func SeedCatalogue(db *gorm.DB) (*models.Function, error) {
	var function models.Function
	result := db.Where("name = ?", "Grand Installation").First(&function)
	if result.Error == nil {
		return &function, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return nil, result.Error
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		function = models.Function{Name: "Grand Installation"}
		if err := tx.Create(&function).Error; err != nil {
			return err
		}

		start := time.Now().AddDate(0, 1, 0).Truncate(24 * time.Hour).Add(18 * time.Hour)
		event := models.Event{
			FunctionID: function.ID,
			Title:      "Installation Banquet",
			StartTime:  start,
			EndTime:    start.Add(5 * time.Hour),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		tickets := []models.EventTicket{
			seedTicket(function.ID, event.ID, "Banquet Seat", 12000, 200),
			seedTicket(function.ID, event.ID, "Ceremony Only", 0, 50),
		}
		if err := tx.Create(&tickets).Error; err != nil {
			return err
		}

		pkg := models.Package{FunctionID: function.ID, Name: "Full Weekend", Price: 25000}
		return tx.Create(&pkg).Error
	})
	if err != nil {
		return nil, err
	}
	return &function, nil
}

func seedTicket(functionID, eventID uuid.UUID, name string, price int64, capacity int) models.EventTicket {
	return models.EventTicket{
		EventID:        eventID,
		FunctionID:     functionID,
		Name:           name,
		Price:          price,
		TotalCapacity:  capacity,
		AvailableCount: capacity,
		Status:         models.EventTicketActive,
	}
}
