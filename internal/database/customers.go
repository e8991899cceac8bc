package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gprbooking/internal/models"

	"github.com/google/uuid"
)

// upsertCustomer matches c by email (case-insensitive) and fills c.ID.
// Known customers get their name and phone refreshed when new values arrive.
func upsertCustomer(ctx context.Context, tx *sql.Tx, c *models.Customer) (bool, error) {
	c.Email = strings.TrimSpace(c.Email)
	now := time.Now().UTC()

	var existing models.Customer
	err := tx.QueryRowContext(ctx,
		`SELECT id, email, name, phone, created_at FROM customers WHERE email = ?`, c.Email,
	).Scan(&existing.ID, &existing.Email, &existing.Name, &existing.Phone, &existing.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.ID = uuid.NewString()
		c.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO customers (id, email, name, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Email, c.Name, c.Phone, now, now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to create customer: %w", err)
		}
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up customer: %w", err)
	}

	if c.Name == "" {
		c.Name = existing.Name
	}
	if c.Phone == "" {
		c.Phone = existing.Phone
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE customers SET name = ?, phone = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Phone, now, existing.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update customer: %w", err)
	}
	c.ID = existing.ID
	c.Email = existing.Email
	c.CreatedAt = existing.CreatedAt
	return true, nil
}

func (db *DB) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := db.QueryRowContext(ctx,
		`SELECT id, email, name, phone, created_at FROM customers WHERE email = ?`, strings.TrimSpace(email),
	).Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}
