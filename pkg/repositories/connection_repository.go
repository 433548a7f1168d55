package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// ConnectionRepository defines data access for warehouse connections.
// The URI is stored as encrypted TEXT - encryption/decryption is handled
// by the service layer; repository methods only see ciphertext.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection, encryptedURI string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, string, error)
	List(ctx context.Context) ([]*models.Connection, error)
	ListActive(ctx context.Context) ([]*models.Connection, []string, error)
	Update(ctx context.Context, id uuid.UUID, name, dialect, encryptedURI string, isActive bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection, encryptedURI string) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	err := r.db.QueryRow(ctx, `
		INSERT INTO connections (name, dialect, uri_ciphertext, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		conn.Name, conn.Dialect, encryptedURI, conn.IsActive, conn.CreatedAt, conn.UpdatedAt,
	).Scan(&conn.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("connection %q: %w", conn.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, string, error) {
	var conn models.Connection
	var encryptedURI string
	err := r.db.QueryRow(ctx, `
		SELECT id, name, dialect, uri_ciphertext, is_active, created_at, updated_at
		FROM connections WHERE id = $1`, id,
	).Scan(&conn.ID, &conn.Name, &conn.Dialect, &encryptedURI, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, encryptedURI, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, dialect, is_active, created_at, updated_at
		FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		var conn models.Connection
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.Dialect, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &conn)
	}
	return conns, rows.Err()
}

func (r *connectionRepository) ListActive(ctx context.Context) ([]*models.Connection, []string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, dialect, uri_ciphertext, is_active, created_at, updated_at
		FROM connections WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	var uris []string
	for rows.Next() {
		var conn models.Connection
		var encryptedURI string
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.Dialect, &encryptedURI, &conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &conn)
		uris = append(uris, encryptedURI)
	}
	return conns, uris, rows.Err()
}

func (r *connectionRepository) Update(ctx context.Context, id uuid.UUID, name, dialect, encryptedURI string, isActive bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE connections
		SET name = $2, dialect = $3, uri_ciphertext = $4, is_active = $5, updated_at = $6
		WHERE id = $1`,
		id, name, dialect, encryptedURI, isActive, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("connection %q: %w", name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
