package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// userRow is a users record including the password hash, which never
// leaves this package.
type userRow struct {
	User
	HashedPassword string
}

// userRepo runs users queries on whatever handle a Session hands out.
type userRepo struct {
	db DBTX
}

func newUserRepo(db DBTX) *userRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, hashed_password, full_name, is_active, is_superuser, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(sc rowScanner) (userRow, error) {
	var (
		r         userRow
		id        string
		fullName  sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := sc.Scan(&id, &r.Email, &r.HashedPassword, &fullName, &r.IsActive, &r.IsSuperuser, &createdAt, &updatedAt); err != nil {
		return userRow{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return userRow{}, fmt.Errorf("bad user id %q: %w", id, err)
	}
	r.ID = parsed
	r.FullName = fullName.String
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return r, nil
}

func (r *userRepo) byEmail(ctx context.Context, email string) (userRow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return userRow{}, ErrUserNotFound
		}
		return userRow{}, fmt.Errorf("db error: %w", mapDBError(err))
	}
	return u, nil
}

func (r *userRepo) byID(ctx context.Context, id uuid.UUID) (userRow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return userRow{}, ErrUserNotFound
		}
		return userRow{}, fmt.Errorf("db error: %w", mapDBError(err))
	}
	return u, nil
}

func (r *userRepo) insert(ctx context.Context, u userRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, hashed_password, full_name, is_active, is_superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), normalizeEmail(u.Email), u.HashedPassword, nullString(u.FullName),
		u.IsActive, u.IsSuperuser, u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", mapDBError(err))
	}
	return nil
}

// update writes the profile and flag columns of u. The hash is left alone.
func (r *userRepo) update(ctx context.Context, u userRow) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = ?, full_name = ?, is_active = ?, is_superuser = ?, updated_at = ?
		WHERE id = ?`,
		normalizeEmail(u.Email), nullString(u.FullName), u.IsActive, u.IsSuperuser,
		u.UpdatedAt.Unix(), u.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", mapDBError(err))
	}
	return expectOneRow(res)
}

func (r *userRepo) setPasswordHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?`,
		hash, at.Unix(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", mapDBError(err))
	}
	return expectOneRow(res)
}

// list returns one page ordered by creation time plus the total row count.
func (r *userRepo) list(ctx context.Context, offset, limit int) ([]userRow, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", mapDBError(err))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, email LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", mapDBError(err))
	}
	defer rows.Close()

	out := make([]userRow, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", mapDBError(err))
	}
	return out, total, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
