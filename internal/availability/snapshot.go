package availability

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
)

// TicketAvailability is one ticket type with its derived fields.
type TicketAvailability struct {
	TicketTypeID    uuid.UUID `json:"ticket_type_id"`
	Name            string    `json:"name"`
	Price           int64     `json:"price"`
	TotalCapacity   int       `json:"total_capacity"`
	AvailableCount  int       `json:"available_count"`
	ReservedCount   int       `json:"reserved_count"`
	SoldCount       int       `json:"sold_count"`
	Status          string    `json:"status"`
	ActualAvailable int       `json:"actual_available"`
	PercentageSold  float64   `json:"percentage_sold"`
	SoldOut         bool      `json:"sold_out"`
}

type Snapshot struct {
	EventID   uuid.UUID            `json:"event_id"`
	Tickets   []TicketAvailability `json:"tickets"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func derive(row models.EventTicket) TicketAvailability {
	actual := row.AvailableCount - row.ReservedCount
	if actual < 0 {
		actual = 0
	}

	percentage := 0.0
	if row.TotalCapacity > 0 {
		percentage = float64(row.SoldCount) / float64(row.TotalCapacity) * 100
	}

	return TicketAvailability{
		TicketTypeID:    row.ID,
		Name:            row.Name,
		Price:           row.Price,
		TotalCapacity:   row.TotalCapacity,
		AvailableCount:  row.AvailableCount,
		ReservedCount:   row.ReservedCount,
		SoldCount:       row.SoldCount,
		Status:          row.Status,
		ActualAvailable: actual,
		PercentageSold:  percentage,
		SoldOut:         actual == 0 || row.Status == models.EventTicketSoldOut,
	}
}

// crossings returns the threshold notifications caused by moving a ticket
// type from prev to next.
func crossings(prev, next TicketAvailability, lowStockThreshold int) []UpdateKind {
	var kinds []UpdateKind
	if next.SoldOut && !prev.SoldOut {
		return append(kinds, KindSoldOut)
	}
	if !next.SoldOut && next.ActualAvailable < lowStockThreshold && prev.ActualAvailable >= lowStockThreshold {
		kinds = append(kinds, KindLowStock)
	}
	return kinds
}

func buildSnapshot(eventID uuid.UUID, entries map[uuid.UUID]TicketAvailability, at time.Time) *Snapshot {
	tickets := make([]TicketAvailability, 0, len(entries))
	for _, entry := range entries {
		tickets = append(tickets, entry)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Name != tickets[j].Name {
			return tickets[i].Name < tickets[j].Name
		}
		return tickets[i].TicketTypeID.String() < tickets[j].TicketTypeID.String()
	})
	return &Snapshot{EventID: eventID, Tickets: tickets, UpdatedAt: at}
}

// NewSnapshot derives a snapshot straight from inventory rows, for callers
// that have no live channel for the event.
func NewSnapshot(eventID uuid.UUID, rows []models.EventTicket, at time.Time) *Snapshot {
	entries := make(map[uuid.UUID]TicketAvailability, len(rows))
	for _, row := range rows {
		entries[row.ID] = derive(row)
	}
	return buildSnapshot(eventID, entries, at)
}
