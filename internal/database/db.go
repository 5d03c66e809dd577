package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresDB{db: db}, nil
}

// EnsureSchema creates the owner tables when they are missing.
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) FindOwner(ctx context.Context, kind models.OwnerKind, userID string) (*models.OwnerRecord, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
        SELECT id, user_id, %s, %s, %s, created_at, updated_at
        FROM %s
        WHERE user_id = $1
    `, t.nameCol, t.urlCol, t.idCol, t.name)

	rec := models.OwnerRecord{Kind: kind}
	var url, id string
	err = p.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Name,
		&url,
		&id,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.SetAsset(t.assetFor, url, id)
	return &rec, nil
}

func (p *PostgresDB) CreateOwner(ctx context.Context, rec *models.OwnerRecord) (*models.OwnerRecord, error) {
	t, err := tableFor(rec.Kind)
	if err != nil {
		return nil, err
	}

	created := *rec
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	url, id := created.Asset(t.assetFor)

	query := fmt.Sprintf(`
        INSERT INTO %s (id, user_id, %s, %s, %s, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING created_at, updated_at
    `, t.name, t.nameCol, t.urlCol, t.idCol)

	err = p.db.QueryRowContext(ctx, query,
		created.ID,
		created.UserID,
		created.Name,
		url,
		id,
	).Scan(&created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.name, err)
	}

	return &created, nil
}

// SaveOwner writes the asset reference of rec back to its table.
func (p *PostgresDB) SaveOwner(ctx context.Context, rec *models.OwnerRecord) error {
	t, err := tableFor(rec.Kind)
	if err != nil {
		return err
	}
	url, id := rec.Asset(t.assetFor)

	query := fmt.Sprintf(`
        UPDATE %s
        SET %s = $1, %s = $2, %s = $3, updated_at = NOW()
        WHERE id = $4
    `, t.name, t.nameCol, t.urlCol, t.idCol)

	result, err := p.db.ExecContext(ctx, query, rec.Name, url, id, rec.ID)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNoRowsUpdated
	}
	rec.UpdatedAt = time.Now()
	return nil
}
