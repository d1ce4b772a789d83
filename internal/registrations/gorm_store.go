package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/ticketflow/internal/models"
)

// GormStore implements Store with gorm. UpsertRegistration runs the whole
// registration graph inside one db.Transaction.
type GormStore struct {
	db     *gorm.DB
	node   *snowflake.Node
	logger *slog.Logger
	opts   Options
}

func NewGormStore(db *gorm.DB, node *snowflake.Node, logger *slog.Logger, opts Options) *GormStore {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultCurrency
	}
	return &GormStore{db: db, node: node, logger: logger, opts: opts}
}

func (s *GormStore) UpsertRegistration(ctx context.Context, payload *UpsertPayload) (*UpsertResult, error) {
	if err := validatePayload(payload); err != nil {
		return failedResult(uuid.Nil, err), err
	}

	registrationID := uuid.New()
	if payload.RegistrationID != nil && *payload.RegistrationID != uuid.Nil {
		registrationID = *payload.RegistrationID
	}

	result := &UpsertResult{RegistrationID: registrationID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Registration
		err := tx.Where("id = ?", registrationID).Take(&existing).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load registration: %w", err)
		}

		if !exists {
			if payload.CustomerID == "" {
				return fmt.Errorf("%w: customerId", ErrMissingIdentifier)
			}
			if payload.FunctionID == nil || *payload.FunctionID == uuid.Nil {
				return fmt.Errorf("%w: functionId", ErrMissingIdentifier)
			}
		}

		if payload.CustomerID != "" && (payload.BookingContact != nil || !exists) {
			if err := upsertCustomer(tx, payload.CustomerID, payload.BookingContact); err != nil {
				return err
			}
		}

		var reg *models.Registration
		if exists {
			reg, err = updateRegistration(tx, &existing, payload)
		} else {
			reg, err = createRegistration(tx, registrationID, payload, s.opts.DefaultCurrency)
		}
		if err != nil {
			return err
		}

		if payload.PrimaryAttendee != nil || len(payload.AdditionalAttendees) > 0 {
			if err := upsertAttendees(tx, reg.ID, payload); err != nil {
				return err
			}
			if payload.hasRelationshipLinks() {
				s.logger.Debug("discarding attendee relationship links", "registration_id", reg.ID)
			}
		}

		if len(payload.Tickets) > 0 {
			byClient, err := attendeeIndex(tx, reg.ID)
			if err != nil {
				return err
			}
			for _, selection := range payload.Tickets {
				created, err := insertTicket(tx, reg, byClient, selection)
				if err != nil {
					return err
				}
				if created {
					result.TicketsCreated++
				}
			}
		}

		result.Created = !exists
		result.PaymentStatus = string(reg.PaymentStatus)
		switch {
		case reg.ConfirmationNumber != nil:
			result.ConfirmationNumber = reg.ConfirmationNumber
			result.ConfirmationFinal = true
		case payload.ConfirmationNumber != nil:
			result.ConfirmationNumber = payload.ConfirmationNumber
		}
		return nil
	})
	if err != nil {
		return failedResult(registrationID, err), err
	}

	result.Success = true
	return result, nil
}

func validatePayload(payload *UpsertPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if payload.PaymentStatus != "" && !payload.PaymentStatus.Valid() {
		return fmt.Errorf("%w: payment status %q", ErrInvalidPayload, payload.PaymentStatus)
	}
	if payload.RegistrationType != "" && !payload.RegistrationType.Valid() {
		return fmt.Errorf("%w: registration type %q", ErrInvalidPayload, payload.RegistrationType)
	}
	for _, selection := range payload.Tickets {
		if selection.EventTicketID == uuid.Nil {
			return fmt.Errorf("%w: ticket without eventTicketId", ErrInvalidPayload)
		}
	}
	return nil
}

func failedResult(registrationID uuid.UUID, err error) *UpsertResult {
	return &UpsertResult{
		Success:        false,
		RegistrationID: registrationID,
		Error:          err.Error(),
		Code:           codeForError(err),
	}
}

func (p *UpsertPayload) hasRelationshipLinks() bool {
	attendees := p.AdditionalAttendees
	if p.PrimaryAttendee != nil {
		attendees = append([]AttendeePayload{*p.PrimaryAttendee}, attendees...)
	}
	for _, a := range attendees {
		if a.RelatedAttendeeID != nil || a.PartnerOf != nil {
			return true
		}
	}
	return false
}

func upsertCustomer(tx *gorm.DB, customerID string, contact *ContactPayload) error {
	customer := models.Customer{ID: customerID}
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	if contact != nil {
		customer.Email = contact.Email
		customer.FirstName = contact.FirstName
		customer.LastName = contact.LastName
		customer.PhoneNumber = contact.Phone
		customer.AddressLine1 = contact.AddressLine1
		customer.AddressLine2 = contact.AddressLine2
		customer.City = contact.City
		customer.State = contact.State
		customer.PostalCode = contact.PostalCode
		customer.Country = contact.Country
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "first_name", "last_name", "phone_number",
				"address_line1", "address_line2", "city", "state",
				"postal_code", "country", "updated_at",
			}),
		}
	}

	if err := tx.Clauses(conflict).Create(&customer).Error; err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func rawRegistrationData(payload *UpsertPayload) datatypes.JSON {
	if len(payload.RegistrationData) > 0 {
		return datatypes.JSON(payload.RegistrationData)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func createRegistration(tx *gorm.DB, registrationID uuid.UUID, payload *UpsertPayload, currency string) (*models.Registration, error) {
	reg := &models.Registration{
		ID:                 registrationID,
		CustomerID:         payload.CustomerID,
		FunctionID:         *payload.FunctionID,
		OrganisationID:     payload.OrganisationID,
		RegistrationType:   models.RegistrationIndividual,
		PaymentStatus:      models.PaymentPending,
		Currency:           currency,
		PaymentReference:   payload.PaymentReference,
		ConnectedAccountID: payload.ConnectedAccountID,
		RegistrationData:   rawRegistrationData(payload),
	}
	if payload.RegistrationType != "" {
		reg.RegistrationType = payload.RegistrationType
	}
	if payload.PaymentStatus != "" {
		reg.PaymentStatus = payload.PaymentStatus
	}
	if payload.Currency != "" {
		reg.Currency = payload.Currency
	}
	if payload.Subtotal != nil {
		reg.Subtotal = *payload.Subtotal
	}
	if payload.ProcessingFee != nil {
		reg.ProcessingFee = *payload.ProcessingFee
	}
	if payload.TotalAmountPaid != nil {
		reg.TotalAmountPaid = *payload.TotalAmountPaid
	}

	// A concurrent create for the same id lands here as a conflict and is
	// merged with the same rules as an update.
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"organisation_id":      gorm.Expr("COALESCE(excluded.organisation_id, registrations.organisation_id)"),
			"payment_status":       gorm.Expr("CASE WHEN registrations.payment_status IN ? THEN excluded.payment_status ELSE registrations.payment_status END", predecessorStrings(reg.PaymentStatus)),
			"payment_reference":    gorm.Expr("COALESCE(excluded.payment_reference, registrations.payment_reference)"),
			"subtotal":             gorm.Expr("excluded.subtotal"),
			"processing_fee":       gorm.Expr("excluded.processing_fee"),
			"total_amount_paid":    gorm.Expr("excluded.total_amount_paid"),
			"registration_data":    gorm.Expr("excluded.registration_data"),
			"connected_account_id": gorm.Expr("COALESCE(excluded.connected_account_id, registrations.connected_account_id)"),
			"updated_at":           time.Now(),
		}),
	}).Create(reg).Error
	if err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	return reloadRegistration(tx, registrationID)
}

func updateRegistration(tx *gorm.DB, existing *models.Registration, payload *UpsertPayload) (*models.Registration, error) {
	updates := map[string]interface{}{}
	// Organisation linkage only ever moves from NULL to a value.
	if payload.OrganisationID != nil {
		updates["organisation_id"] = *payload.OrganisationID
	}
	if payload.RegistrationType != "" {
		updates["registration_type"] = string(payload.RegistrationType)
	}
	// Disallowed moves keep the current status; the guard repeats the check
	// against the row as it is at write time.
	if payload.PaymentStatus != "" && models.CanTransition(existing.PaymentStatus, payload.PaymentStatus) {
		updates["payment_status"] = gorm.Expr("CASE WHEN payment_status IN ? THEN ? ELSE payment_status END",
			predecessorStrings(payload.PaymentStatus), string(payload.PaymentStatus))
	}
	if payload.PaymentReference != nil {
		updates["payment_reference"] = *payload.PaymentReference
	}
	if payload.ConnectedAccountID != nil {
		updates["connected_account_id"] = *payload.ConnectedAccountID
	}
	if payload.Subtotal != nil {
		updates["subtotal"] = *payload.Subtotal
	}
	if payload.ProcessingFee != nil {
		updates["processing_fee"] = *payload.ProcessingFee
	}
	if payload.TotalAmountPaid != nil {
		updates["total_amount_paid"] = *payload.TotalAmountPaid
	}
	if payload.Currency != "" {
		updates["currency"] = payload.Currency
	}
	if len(payload.RegistrationData) > 0 {
		updates["registration_data"] = datatypes.JSON(payload.RegistrationData)
	}

	if len(updates) > 0 {
		err := tx.Model(&models.Registration{}).Where("id = ?", existing.ID).Updates(updates).Error
		if err != nil {
			return nil, fmt.Errorf("update registration: %w", err)
		}
	}

	return reloadRegistration(tx, existing.ID)
}

func predecessorStrings(status models.PaymentStatus) []string {
	var from []string
	for _, p := range models.Predecessors(status) {
		from = append(from, string(p))
	}
	return from
}

func reloadRegistration(tx *gorm.DB, registrationID uuid.UUID) (*models.Registration, error) {
	var reg models.Registration
	if err := tx.Where("id = ?", registrationID).Take(&reg).Error; err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	return &reg, nil
}

func attendeeRow(registrationID uuid.UUID, a AttendeePayload, primary bool, fallbackClientID string) models.Attendee {
	clientID := a.AttendeeID
	if clientID == "" {
		clientID = fallbackClientID
	}
	attendeeType := a.AttendeeType
	if attendeeType == "" {
		attendeeType = "guest"
	}
	return models.Attendee{
		RegistrationID:   registrationID,
		ClientAttendeeID: clientID,
		IsPrimary:        primary,
		AttendeeType:     attendeeType,
		Title:            a.Title,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Email:            a.Email,
		PhoneNumber:      a.Phone,
		Metadata:         datatypes.JSON(a.Metadata),
	}
}

func upsertAttendees(tx *gorm.DB, registrationID uuid.UUID, payload *UpsertPayload) error {
	var rows []models.Attendee
	if payload.PrimaryAttendee != nil {
		rows = append(rows, attendeeRow(registrationID, *payload.PrimaryAttendee, true, "primary"))
	}
	for i, a := range payload.AdditionalAttendees {
		rows = append(rows, attendeeRow(registrationID, a, false, fmt.Sprintf("additional-%d", i+1)))
	}

	for i := range rows {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "registration_id"}, {Name: "client_attendee_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_primary", "attendee_type", "title", "first_name", "last_name",
				"email", "phone_number", "related_attendee_id", "metadata", "updated_at",
			}),
		}).Create(&rows[i]).Error
		if err != nil {
			return fmt.Errorf("upsert attendee %q: %w", rows[i].ClientAttendeeID, err)
		}
	}

	primaryClientID := ""
	if payload.PrimaryAttendee != nil {
		primaryClientID = rows[0].ClientAttendeeID
	} else {
		var primaries int64
		err := tx.Model(&models.Attendee{}).
			Where("registration_id = ? AND is_primary = ?", registrationID, true).
			Count(&primaries).Error
		if err != nil {
			return fmt.Errorf("count primary attendees: %w", err)
		}
		if primaries == 0 && len(rows) > 0 {
			primaryClientID = rows[0].ClientAttendeeID
		}
	}
	if primaryClientID == "" {
		return nil
	}

	err := tx.Model(&models.Attendee{}).
		Where("registration_id = ?", registrationID).
		Update("is_primary", gorm.Expr("client_attendee_id = ?", primaryClientID)).Error
	if err != nil {
		return fmt.Errorf("set primary attendee: %w", err)
	}
	return nil
}

// attendeeIndex maps both client and server attendee identifiers of a
// registration to server ids.
func attendeeIndex(tx *gorm.DB, registrationID uuid.UUID) (map[string]uuid.UUID, error) {
	var attendees []models.Attendee
	if err := tx.Where("registration_id = ?", registrationID).Find(&attendees).Error; err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}

	index := make(map[string]uuid.UUID, len(attendees)*2)
	for _, a := range attendees {
		index[a.ClientAttendeeID] = a.ID
		index[a.ID.String()] = a.ID
	}
	return index, nil
}

type inventoryDelta struct {
	available int
	reserved  int
	sold      int
}

func adjustInventory(tx *gorm.DB, eventTicketID uuid.UUID, delta inventoryDelta) error {
	err := tx.Model(&models.EventTicket{}).Where("id = ?", eventTicketID).Updates(map[string]interface{}{
		"available_count": gorm.Expr("available_count + ?", delta.available),
		"reserved_count":  gorm.Expr("reserved_count + ?", delta.reserved),
		"sold_count":      gorm.Expr("sold_count + ?", delta.sold),
	}).Error
	if err != nil {
		return fmt.Errorf("adjust inventory: %w", err)
	}

	err = tx.Model(&models.EventTicket{}).Where("id = ?", eventTicketID).
		Update("status", gorm.Expr("CASE WHEN available_count - reserved_count <= 0 THEN ? ELSE ? END",
			models.EventTicketSoldOut, models.EventTicketActive)).Error
	if err != nil {
		return fmt.Errorf("update ticket type status: %w", err)
	}
	return nil
}

func insertTicket(tx *gorm.DB, reg *models.Registration, byClient map[string]uuid.UUID, selection TicketSelection) (bool, error) {
	attendeeID, ok := byClient[selection.AttendeeID]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownAttendee, selection.AttendeeID)
	}

	var eventTicket models.EventTicket
	if err := tx.Where("id = ?", selection.EventTicketID).Take(&eventTicket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: %s", ErrUnknownTicketType, selection.EventTicketID)
		}
		return false, fmt.Errorf("load ticket type: %w", err)
	}

	var existing models.Ticket
	err := tx.Where("attendee_id = ? AND event_ticket_id = ?", attendeeID, eventTicket.ID).Take(&existing).Error
	if err == nil {
		updates := map[string]interface{}{"price_paid": selection.Price}
		if selection.PackageID != nil {
			updates["package_id"] = *selection.PackageID
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return false, fmt.Errorf("update ticket: %w", err)
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("load ticket: %w", err)
	}

	status, paymentStatus := models.TicketStatusReserved, models.TicketUnpaid
	delta := inventoryDelta{reserved: 1}
	if reg.PaymentStatus == models.PaymentCompleted {
		status, paymentStatus = models.TicketStatusSold, models.TicketPaid
		delta = inventoryDelta{available: -1, sold: 1}
	}

	originalPrice := eventTicket.Price
	if selection.OriginalPrice != nil {
		originalPrice = *selection.OriginalPrice
	}

	ticket := models.Ticket{
		RegistrationID:  reg.ID,
		AttendeeID:      attendeeID,
		EventID:         eventTicket.EventID,
		EventTicketID:   eventTicket.ID,
		PackageID:       selection.PackageID,
		PricePaid:       selection.Price,
		OriginalPrice:   originalPrice,
		Status:          status,
		PaymentStatus:   paymentStatus,
		IsPartnerTicket: selection.IsPartnerTicket,
	}
	if err := tx.Create(&ticket).Error; err != nil {
		return false, fmt.Errorf("insert ticket: %w", err)
	}
	if err := adjustInventory(tx, eventTicket.ID, delta); err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) UpdatePaymentStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	if !update.Status.Valid() {
		return false, fmt.Errorf("%w: payment status %q", ErrInvalidPayload, update.Status)
	}

	updates := map[string]interface{}{"payment_status": string(update.Status)}
	if update.PaymentReference != "" {
		updates["payment_reference"] = update.PaymentReference
	}
	if update.AmountPaid != nil {
		updates["total_amount_paid"] = *update.AmountPaid
	}
	if update.Currency != "" {
		updates["currency"] = update.Currency
	}
	if update.ConnectedAccountID != "" {
		updates["connected_account_id"] = update.ConnectedAccountID
	}

	res := s.db.WithContext(ctx).Model(&models.Registration{}).
		Where("id = ? AND payment_status IN ?", update.RegistrationID, predecessorStrings(update.Status)).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update payment status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Registration{}).Where("id = ?", update.RegistrationID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	if count == 0 {
		return false, fmt.Errorf("%w: %s", ErrRegistrationNotFound, update.RegistrationID)
	}
	return false, nil
}

func (s *GormStore) MarkTicketsSold(ctx context.Context, registrationID uuid.UUID) (int64, error) {
	var sold int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.Select("id", "payment_status").Where("id = ?", registrationID).Take(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRegistrationNotFound, registrationID)
			}
			return fmt.Errorf("load registration: %w", err)
		}
		if reg.PaymentStatus != models.PaymentCompleted {
			return nil
		}

		var reserved []models.Ticket
		err := tx.Where("registration_id = ? AND status = ?", registrationID, models.TicketStatusReserved).Find(&reserved).Error
		if err != nil {
			return fmt.Errorf("load reserved tickets: %w", err)
		}

		for _, ticket := range reserved {
			res := tx.Model(&models.Ticket{}).
				Where("id = ? AND status = ?", ticket.ID, models.TicketStatusReserved).
				Updates(map[string]interface{}{
					"status":         string(models.TicketStatusSold),
					"payment_status": string(models.TicketPaid),
				})
			if res.Error != nil {
				return fmt.Errorf("mark ticket sold: %w", res.Error)
			}
			// Another delivery already moved this ticket.
			if res.RowsAffected == 0 {
				continue
			}
			if err := adjustInventory(tx, ticket.EventTicketID, inventoryDelta{available: -1, reserved: -1, sold: 1}); err != nil {
				return err
			}
			sold++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sold, nil
}

func (s *GormStore) PersistTickets(ctx context.Context, registrationID uuid.UUID, tickets []TicketSelection, updates []AttendeeUpdate) (int, error) {
	for _, selection := range tickets {
		if selection.EventTicketID == uuid.Nil {
			return 0, fmt.Errorf("%w: ticket without eventTicketId", ErrInvalidPayload)
		}
	}

	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg, err := reloadRegistration(tx, registrationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRegistrationNotFound, registrationID)
			}
			return err
		}

		byClient, err := attendeeIndex(tx, reg.ID)
		if err != nil {
			return err
		}

		for _, update := range updates {
			if err := applyAttendeeUpdate(tx, byClient, update); err != nil {
				return err
			}
		}

		for _, selection := range tickets {
			ok, err := insertTicket(tx, reg, byClient, selection)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func applyAttendeeUpdate(tx *gorm.DB, byClient map[string]uuid.UUID, update AttendeeUpdate) error {
	key := update.ClientAttendeeID
	if update.AttendeeID != nil {
		key = update.AttendeeID.String()
	}
	attendeeID, ok := byClient[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttendee, key)
	}

	fields := map[string]interface{}{}
	if update.FirstName != nil {
		fields["first_name"] = *update.FirstName
	}
	if update.LastName != nil {
		fields["last_name"] = *update.LastName
	}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if update.Phone != nil {
		fields["phone_number"] = *update.Phone
	}
	if len(update.Metadata) > 0 {
		fields["metadata"] = datatypes.JSON(update.Metadata)
	}
	if len(fields) == 0 {
		return nil
	}

	if err := tx.Model(&models.Attendee{}).Where("id = ?", attendeeID).Updates(fields).Error; err != nil {
		return fmt.Errorf("update attendee: %w", err)
	}
	return nil
}

func (s *GormStore) GetRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.WithContext(ctx).
		Preload("Attendees", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("Tickets", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("id = ?", registrationID).
		Take(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRegistrationNotFound, registrationID)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

func (s *GormStore) ListTickets(ctx context.Context, registrationID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).Where("registration_id = ?", registrationID).Order("created_at").Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

func (s *GormStore) RecordPlatformFee(ctx context.Context, fee PlatformFee) error {
	row := models.PlatformFee{
		ID:                 s.node.Generate().Int64(),
		RegistrationID:     fee.RegistrationID,
		ConnectedAccountID: fee.ConnectedAccountID,
		PaymentReference:   fee.PaymentReference,
		Amount:             fee.Amount,
		Currency:           fee.Currency,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_reference"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("record platform fee: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertConnectedAccount(ctx context.Context, account models.ConnectedAccount) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"charges_enabled", "payouts_enabled", "details_submitted", "updated_at"}),
		}).
		Create(&account).Error
	if err != nil {
		return fmt.Errorf("upsert connected account: %w", err)
	}
	return nil
}

// RecordProcessorEvent stores a delivery and reports whether it was the
// first one for this processor event id.
func (s *GormStore) RecordProcessorEvent(ctx context.Context, event ProcessorEventRecord) (bool, error) {
	row := models.ProcessorEvent{
		ID:               s.node.Generate().Int64(),
		ProcessorEventID: event.ProcessorEventID,
		EventType:        event.EventType,
		AccountContext:   event.AccountContext,
		Account:          event.Account,
		Payload:          datatypes.JSON(event.Payload),
		Deliveries:       1,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "processor_event_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("record processor event: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	err := s.db.WithContext(ctx).Model(&models.ProcessorEvent{}).
		Where("processor_event_id = ?", event.ProcessorEventID).
		Update("deliveries", gorm.Expr("deliveries + 1")).Error
	if err != nil {
		return false, fmt.Errorf("count processor event delivery: %w", err)
	}
	return false, nil
}

func (s *GormStore) MarkProcessorEvent(ctx context.Context, processorEventID string, processingErr error) error {
	message := ""
	if processingErr != nil {
		message = processingErr.Error()
	}
	err := s.db.WithContext(ctx).Model(&models.ProcessorEvent{}).
		Where("processor_event_id = ?", processorEventID).
		Updates(map[string]interface{}{
			"processed_at":     time.Now().UTC(),
			"processing_error": message,
		}).Error
	if err != nil {
		return fmt.Errorf("mark processor event: %w", err)
	}
	return nil
}
