package sqlite

import (
	"context"
	"fmt"

	"github.com/sirenhq/siren/pkg/models"
)

// User methods. The alert engine only reads users; writes come from the CLI.

const userColumns = `id, username, email, phone, role, email_enabled, sms_enabled, push_enabled, created_at, updated_at`

// CreateUser inserts a new user record and populates its ID.
// A duplicate username is reported as models.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	res, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO users (username, email, phone, role, email_enabled, sms_enabled, push_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.Phone, string(user.Role),
		boolToInt(user.EmailEnabled), boolToInt(user.SMSEnabled), boolToInt(user.PushEnabled),
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "users") {
			return fmt.Errorf("%w: username %q already exists", models.ErrConflict, user.Username)
		}
		db.log.Error("failed to create user record in db", "error", err, "username", user.Username)
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = models.UserID(id)
	return nil
}

// GetUser retrieves a single user by their ID.
func (db *DB) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	row := db.readDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", int64(id))
	user, err := scanUser(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting user id %d", id))
	}
	return user, nil
}

// GetUserByUsername retrieves a single user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.readDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	user, err := scanUser(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting user %q", username))
	}
	return user, nil
}

// ListUsers retrieves all users ordered by ID.
func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	return db.queryUsers(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
}

// ListUsersByRole retrieves every user holding role.
func (db *DB) ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	return db.queryUsers(ctx, "SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY id", string(role))
}

// DeleteUser removes a user. Alerts and acknowledgments keep the bare user id.
func (db *DB) DeleteUser(ctx context.Context, id models.UserID) error {
	res, err := db.writeDB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(res)
}

func (db *DB) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                      models.User
		id                     int64
		role                   string
		emailOn, smsOn, pushOn int64
		createdAt, updatedAt   string
	)
	if err := row.Scan(&id, &u.Username, &u.Email, &u.Phone, &role, &emailOn, &smsOn, &pushOn, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.ID = models.UserID(id)
	u.Role = models.Role(role)
	u.EmailEnabled = emailOn != 0
	u.SMSEnabled = smsOn != 0
	u.PushEnabled = pushOn != 0
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
