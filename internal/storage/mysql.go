package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"localhost-events/internal/config"
	"localhost-events/internal/logger"
	"localhost-events/internal/models"
)

type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

func (s *MySQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "mysql", "Creating tables if not exist")

	// The uniqueness constraint on external_payment_ref is the idempotency
	// fence: it must live in storage, never in application logic alone.
	// The CHECK on remaining_capacity is a backstop; the guarded UPDATE in
	// DecrementCapacity is what actually prevents overselling.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS events (
			event_id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			location VARCHAR(255) NOT NULL DEFAULT '',
			date TIMESTAMP NOT NULL,
			organizer_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_date (date)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS inventory_units (
			unit_id VARCHAR(64) PRIMARY KEY,
			event_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			unit_price_minor BIGINT NOT NULL,
			remaining_capacity BIGINT NOT NULL CHECK (remaining_capacity >= 0),
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_event_id (event_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(64) PRIMARY KEY,
			buyer_id VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			total_amount_minor BIGINT NOT NULL,
			external_payment_ref VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_external_payment_ref (external_payment_ref),
			INDEX idx_buyer_id (buyer_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			inventory_unit_id VARCHAR(64) NOT NULL,
			event_id VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			redemption_token VARCHAR(128) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_order_id (order_id),
			INDEX idx_event_id (event_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "mysql", "All tables ready")
	return nil
}

type txKey struct{}

// WithTx begins a transaction and carries it in the context so every store
// call inside fn joins it. Nested calls reuse the outer transaction.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("DATABASE", "Rollback failed: "+rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

func (s *MySQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *MySQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *MySQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *MySQLStore) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
    INSERT INTO events (event_id, title, description, location, date, organizer_id, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.exec(ctx, query,
		event.EventID, event.Title, event.Description, event.Location,
		event.Date, event.OrganizerID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	s.log.LogDatabase("SELECT", "events", fmt.Sprintf("Fetching event %s", eventID))

	query := `
    SELECT event_id, title, description, location, date, organizer_id, created_at
    FROM events WHERE event_id = ?
    `

	event := &models.Event{}
	err := s.queryRow(ctx, query, eventID).Scan(
		&event.EventID, &event.Title, &event.Description, &event.Location,
		&event.Date, &event.OrganizerID, &event.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	units, err := s.listInventoryUnits(ctx, eventID)
	if err != nil {
		return nil, err
	}
	event.InventoryUnits = units
	return event, nil
}

func (s *MySQLStore) ListEvents(ctx context.Context, search string) ([]*models.Event, error) {
	s.log.LogDatabase("SELECT", "events", fmt.Sprintf("Listing events (query: %q)", search))

	query := `
    SELECT event_id, title, description, location, date, organizer_id, created_at
    FROM events
    WHERE title LIKE ? OR location LIKE ? OR description LIKE ?
    ORDER BY date ASC
    `
	pattern := "%" + strings.TrimSpace(search) + "%"

	rows, err := s.query(ctx, query, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event := &models.Event{}
		err := rows.Scan(
			&event.EventID, &event.Title, &event.Description, &event.Location,
			&event.Date, &event.OrganizerID, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, event := range events {
		units, err := s.listInventoryUnits(ctx, event.EventID)
		if err != nil {
			return nil, err
		}
		event.InventoryUnits = units
	}
	return events, nil
}

func (s *MySQLStore) listInventoryUnits(ctx context.Context, eventID string) ([]*models.InventoryUnit, error) {
	query := `
    SELECT unit_id, event_id, name, unit_price_minor, remaining_capacity, retired, created_at
    FROM inventory_units WHERE event_id = ? ORDER BY unit_price_minor ASC
    `

	rows, err := s.query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory units: %w", err)
	}
	defer rows.Close()

	var units []*models.InventoryUnit
	for rows.Next() {
		unit := &models.InventoryUnit{}
		err := rows.Scan(
			&unit.UnitID, &unit.EventID, &unit.Name, &unit.UnitPriceMinor,
			&unit.RemainingCapacity, &unit.Retired, &unit.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return units, nil
}

func (s *MySQLStore) CreateInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error {
	query := `
    INSERT INTO inventory_units (unit_id, event_id, name, unit_price_minor, remaining_capacity, retired, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.exec(ctx, query,
		unit.UnitID, unit.EventID, unit.Name, unit.UnitPriceMinor,
		unit.RemainingCapacity, unit.Retired, unit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory unit: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetInventoryUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error) {
	s.log.LogDatabase("SELECT", "inventory_units", fmt.Sprintf("Fetching inventory unit %s", unitID))

	query := `
    SELECT unit_id, event_id, name, unit_price_minor, remaining_capacity, retired, created_at
    FROM inventory_units WHERE unit_id = ?
    `

	unit := &models.InventoryUnit{}
	err := s.queryRow(ctx, query, unitID).Scan(
		&unit.UnitID, &unit.EventID, &unit.Name, &unit.UnitPriceMinor,
		&unit.RemainingCapacity, &unit.Retired, &unit.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inventory unit: %w", err)
	}
	return unit, nil
}

// DecrementCapacity takes one unit of capacity with a guarded update. The
// WHERE clause is evaluated under InnoDB row locking, so concurrent buyers
// racing for the last unit serialize here: at most remaining_capacity of
// them see an affected row.
func (s *MySQLStore) DecrementCapacity(ctx context.Context, unitID string) (bool, error) {
	s.log.LogDatabase("UPDATE", "inventory_units", fmt.Sprintf("Decrementing capacity for unit %s", unitID))

	query := `
    UPDATE inventory_units
    SET remaining_capacity = remaining_capacity - 1
    WHERE unit_id = ? AND remaining_capacity >= 1
    `

	result, err := s.exec(ctx, query, unitID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement capacity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *MySQLStore) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	s.log.LogDatabase("SELECT", "orders", fmt.Sprintf("Fetching order for payment ref %s", paymentRef))

	query := `
    SELECT order_id, buyer_id, status, total_amount_minor, external_payment_ref, created_at
    FROM orders WHERE external_payment_ref = ?
    `

	order := &models.Order{}
	err := s.queryRow(ctx, query, paymentRef).Scan(
		&order.OrderID, &order.BuyerID, &order.Status,
		&order.TotalAmountMinor, &order.ExternalPaymentRef, &order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by payment ref: %w", err)
	}
	return order, nil
}

func (s *MySQLStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.log.LogDatabase("INSERT", "orders", fmt.Sprintf("Saving order %s", order.OrderID))

	query := `
    INSERT INTO orders (order_id, buyer_id, status, total_amount_minor, external_payment_ref, created_at)
    VALUES (?, ?, ?, ?, ?, ?)
    `

	_, err := s.exec(ctx, query,
		order.OrderID, order.BuyerID, order.Status,
		order.TotalAmountMinor, order.ExternalPaymentRef, order.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicatePaymentRef
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save order %s: %s", order.OrderID, err.Error()))
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *MySQLStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	s.log.LogDatabase("INSERT", "tickets", fmt.Sprintf("Minting ticket %s for order %s", ticket.TicketID, ticket.OrderID))

	query := `
    INSERT INTO tickets (ticket_id, order_id, inventory_unit_id, event_id, status, redemption_token, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.exec(ctx, query,
		ticket.TicketID, ticket.OrderID, ticket.InventoryUnitID,
		ticket.EventID, ticket.Status, ticket.RedemptionToken, ticket.CreatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to mint ticket %s: %s", ticket.TicketID, err.Error()))
		return fmt.Errorf("failed to save ticket: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpsertUser(ctx context.Context, user *models.User) error {
	s.log.LogDatabase("UPSERT", "users", fmt.Sprintf("Upserting user %s", user.UserID))

	// Existing rows keep their data; the upsert only guarantees the buyer
	// row exists before an order references it.
	query := `
    INSERT INTO users (user_id, email, name, created_at)
    VALUES (?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE user_id = user_id
    `

	_, err := s.exec(ctx, query, user.UserID, user.Email, user.Name, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	s.log.LogDatabase("SELECT", "tickets", fmt.Sprintf("Fetching ticket %s", ticketID))

	query := `
    SELECT ticket_id, order_id, inventory_unit_id, event_id, status, redemption_token, created_at
    FROM tickets WHERE ticket_id = ?
    `

	ticket := &models.Ticket{}
	err := s.queryRow(ctx, query, ticketID).Scan(
		&ticket.TicketID, &ticket.OrderID, &ticket.InventoryUnitID,
		&ticket.EventID, &ticket.Status, &ticket.RedemptionToken, &ticket.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

func (s *MySQLStore) ListTicketsByBuyer(ctx context.Context, buyerID string) ([]*models.Ticket, error) {
	s.log.LogDatabase("SELECT", "tickets", fmt.Sprintf("Listing tickets for buyer %s", buyerID))

	query := `
    SELECT t.ticket_id, t.order_id, t.inventory_unit_id, t.event_id, t.status, t.redemption_token, t.created_at
    FROM tickets t
    JOIN orders o ON o.order_id = t.order_id
    WHERE o.buyer_id = ?
    ORDER BY t.created_at DESC
    `

	rows, err := s.query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket := &models.Ticket{}
		err := rows.Scan(
			&ticket.TicketID, &ticket.OrderID, &ticket.InventoryUnitID,
			&ticket.EventID, &ticket.Status, &ticket.RedemptionToken, &ticket.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tickets, nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.log.LogDatabase("SELECT", "orders", fmt.Sprintf("Fetching order %s", orderID))

	query := `
    SELECT order_id, buyer_id, status, total_amount_minor, external_payment_ref, created_at
    FROM orders WHERE order_id = ?
    `

	order := &models.Order{}
	err := s.queryRow(ctx, query, orderID).Scan(
		&order.OrderID, &order.BuyerID, &order.Status,
		&order.TotalAmountMinor, &order.ExternalPaymentRef, &order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

func (s *MySQLStore) HealthCheck() error {
	return s.db.Ping()
}
