package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

const profilesTable = "hr.profiles"

var profileColumns = []string{
	"id",
	"email",
	"role",
	"employee_id",
	"is_active",
	"is_banned",
	"session_token",
	"updated_at",
}

// ProfileRepository reads identity profiles and performs the privileged session token write.
type ProfileRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var (
	_ port.ProfileRepository  = (*ProfileRepository)(nil)
	_ port.SessionTokenWriter = (*ProfileRepository)(nil)
)

// NewProfileRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewProfileRepository(exec pgExecutor) *ProfileRepository {
	return &ProfileRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *ProfileRepository) WithTx(tx pgx.Tx) *ProfileRepository {
	if tx == nil {
		return r
	}
	return &ProfileRepository{exec: tx, builder: r.builder}
}

// GetProfile loads the profile row for the identity.
func (r *ProfileRepository) GetProfile(ctx context.Context, identityID string) (*domain.Profile, error) {
	id := strings.TrimSpace(identityID)
	if id == "" {
		return nil, repository.ErrInvalidKey
	}

	stmt, args, err := r.builder.
		Select(profileColumns...).
		From(profilesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	var (
		profile      domain.Profile
		role         string
		employeeID   sql.NullString
		sessionToken sql.NullString
		updatedAt    *time.Time
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&profile.IdentityID,
		&profile.Email,
		&role,
		&employeeID,
		&profile.IsActive,
		&profile.IsBanned,
		&sessionToken,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", mapPgError(err))
	}

	profile.Role = domain.ParseRole(role)
	if employeeID.Valid {
		val := employeeID.String
		profile.LinkedRecordID = &val
	}
	if sessionToken.Valid {
		val := sessionToken.String
		profile.SessionToken = &val
	}
	if updatedAt != nil {
		profile.UpdatedAt = updatedAt.UTC()
	}

	return &profile, nil
}

// SetSessionToken overwrites the identity's current session token. A nil token clears it.
func (r *ProfileRepository) SetSessionToken(ctx context.Context, identityID string, token *string) error {
	id := strings.TrimSpace(identityID)
	if id == "" {
		return repository.ErrInvalidKey
	}

	var value any
	if token != nil && *token != "" {
		value = *token
	}

	stmt, args, err := r.builder.Update(profilesTable).
		Set("session_token", value).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update session token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update session token: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// insufficient_privilege: row-level security or a missing grant rejected the statement.
const sqlStateInsufficientPrivilege = "42501"

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateInsufficientPrivilege {
		return fmt.Errorf("%w: %s", repository.ErrPermissionDenied, pgErr.Message)
	}
	return err
}
