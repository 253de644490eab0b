package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "embed"

	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
)

//go:embed schema.sql
var schema string

// PostgreSQLDatabase is a RecordStore backed by the users and photos tables.
// Rows are returned in id order, which is insertion order.
type PostgreSQLDatabase struct {
	db *sql.DB
}

func NewPostgreSQLDatabase(ctx context.Context, connStr string) (*PostgreSQLDatabase, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	pg := &PostgreSQLDatabase{db: db}
	if err := pg.db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("Database pinged")

	if _, err := pg.db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create database schema: %w", err)
	}

	slog.Info("Database schema is ready")

	return pg, nil
}

func (pq *PostgreSQLDatabase) Close() error {
	return pq.db.Close()
}

func (pq *PostgreSQLDatabase) LoadUsers(ctx context.Context) ([]User, error) {
	const loadUsers = `
	SELECT name
	FROM users
	ORDER BY id
	`

	rows, err := pq.db.QueryContext(ctx, loadUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Name); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		items = append(items, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return items, nil
}

func (pq *PostgreSQLDatabase) LoadPhotos(ctx context.Context) ([]Photo, error) {
	const loadPhotos = `
	SELECT
		filename,
		uploaded_by,
		tags
	FROM photos
	ORDER BY id
	`

	rows, err := pq.db.QueryContext(ctx, loadPhotos)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer rows.Close()

	var items []Photo
	for rows.Next() {
		var (
			p    Photo
			tags string
		)
		if err := rows.Scan(&p.Filename, &p.UploadedBy, &tags); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		p.Tags = SplitTags(tags)
		items = append(items, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return items, nil
}

const (
	insertUser = `
	INSERT INTO users (name)
	VALUES($1)
	`

	insertPhoto = `
	INSERT INTO photos (filename, uploaded_by, tags)
	VALUES($1, $2, $3)
	`
)

func (pq *PostgreSQLDatabase) AppendUser(ctx context.Context, user User) error {
	if _, err := pq.db.ExecContext(ctx, insertUser, user.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

func (pq *PostgreSQLDatabase) AppendPhoto(ctx context.Context, photo Photo) error {
	if _, err := pq.db.ExecContext(ctx, insertPhoto, photo.Filename, photo.UploadedBy, JoinTags(photo.Tags)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

func (pq *PostgreSQLDatabase) SaveUsers(ctx context.Context, users []User) error {
	return pq.replace(ctx, "users", func(tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx, insertUser, u.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (pq *PostgreSQLDatabase) SavePhotos(ctx context.Context, photos []Photo) error {
	return pq.replace(ctx, "photos", func(tx *sql.Tx) error {
		for _, p := range photos {
			if _, err := tx.ExecContext(ctx, insertPhoto, p.Filename, p.UploadedBy, JoinTags(p.Tags)); err != nil {
				return err
			}
		}
		return nil
	})
}

// replace empties table and refills it with fill inside one transaction.
func (pq *PostgreSQLDatabase) replace(ctx context.Context, table string, fill func(tx *sql.Tx) error) error {
	tx, err := pq.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := fill(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}
