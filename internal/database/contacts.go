package database

import (
	"context"
	"fmt"
	"time"

	"gprbooking/internal/models"

	"github.com/google/uuid"
)

func (db *DB) CreateContactSubmission(ctx context.Context, s *models.ContactSubmission) error {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()

	query := `INSERT INTO contact_submissions (
			id, name, email, phone, service, message, source, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		s.ID, s.Name, s.Email, s.Phone, s.Service, s.Message, s.Source, s.IPAddress, s.UserAgent, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact submission: %w", err)
	}
	return nil
}

// ListContactSubmissions returns newest first, with the unpaged total.
func (db *DB) ListContactSubmissions(ctx context.Context, limit, offset int) ([]*models.ContactSubmission, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_submissions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contact submissions: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, name, email, phone, service, message, source, ip_address, user_agent, created_at
		 FROM contact_submissions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contact submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.ContactSubmission
	for rows.Next() {
		var s models.ContactSubmission
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Email, &s.Phone, &s.Service, &s.Message, &s.Source, &s.IPAddress, &s.UserAgent, &s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan contact submission: %w", err)
		}
		out = append(out, &s)
	}
	return out, total, rows.Err()
}
