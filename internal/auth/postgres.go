package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"kinoauth.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	_ UserStore          = (*PGUserStore)(nil)
	_ RoleStore          = (*PGRoleStore)(nil)
	_ SocialAccountStore = (*PGSocialAccountStore)(nil)
	_ LoginLogStore      = (*PGLoginLogStore)(nil)
)

// PGUserStore implements UserStore over PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore { return &PGUserStore{db: db} }

func (s *PGUserStore) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	u := User{ID: ids.New(), Email: email, PasswordHash: passwordHash, Active: true}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, active)
		values ($1, lower($2), $3, true)
		returning created_at, updated_at
	`, u.ID, email, passwordHash)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapPGError(err)
	}
	return &u, nil
}

func (s *PGUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `where id = $1`, id)
}

func (s *PGUserStore) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, `where email = lower($1) and active`, email)
}

func (s *PGUserStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, active, created_at, updated_at
		from users `+where, arg)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	roles, err := s.userRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *PGUserStore) userRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by ur.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *PGUserStore) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where email = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (s *PGUserStore) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PGUserStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id) values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	return mapPGError(err)
}

func (s *PGUserStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	return err
}

func (s *PGUserStore) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from user_roles ur
			join roles r on r.id = ur.role_id
			where ur.user_id = $1 and r.name = $2
		)
	`, userID, roleName).Scan(&has)
	return has, err
}

// PGRoleStore implements RoleStore over PostgreSQL.
type PGRoleStore struct {
	db *sql.DB
}

func NewPGRoleStore(db *sql.DB) *PGRoleStore { return &PGRoleStore{db: db} }

func (s *PGRoleStore) Create(ctx context.Context, name, description string) (*Role, error) {
	r := Role{ID: ids.New(), Name: name, Description: description}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description) values ($1, $2, $3)
		returning created_at, updated_at
	`, r.ID, name, description)
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapPGError(err)
	}
	return &r, nil
}

func (s *PGRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	return s.findOne(ctx, `where id = $1`, id)
}

func (s *PGRoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return s.findOne(ctx, `where name = $1`, name)
}

func (s *PGRoleStore) findOne(ctx context.Context, where string, arg any) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at from roles `+where, arg)
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *PGRoleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at, updated_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

func (s *PGRoleStore) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		update roles
		set name = coalesce($2, name),
		    description = coalesce($3, description),
		    updated_at = now()
		where id = $1
		returning id, name, description, created_at, updated_at
	`, id, upd.Name, upd.Description)
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPGError(err)
	}
	return &r, nil
}

func (s *PGRoleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// PGSocialAccountStore implements SocialAccountStore over PostgreSQL. Its
// three uniqueness constraints turn the losing writer of a concurrent link
// into ErrConflict instead of a silent duplicate.
type PGSocialAccountStore struct {
	db *sql.DB
}

func NewPGSocialAccountStore(db *sql.DB) *PGSocialAccountStore {
	return &PGSocialAccountStore{db: db}
}

func (s *PGSocialAccountStore) Create(ctx context.Context, userID string, info SocialUserInfo) (*SocialAccount, error) {
	acc := SocialAccount{
		ID:           ids.New(),
		UserID:       userID,
		SocialID:     info.SocialID,
		ProviderSlug: info.ProviderSlug,
		Email:        info.Email,
	}
	row := s.db.QueryRowContext(ctx, `
		insert into social_accounts (id, user_id, social_id, provider_slug, email)
		values ($1, $2, $3, $4, lower($5))
		returning created_at
	`, acc.ID, userID, info.SocialID, info.ProviderSlug, info.Email)
	if err := row.Scan(&acc.CreatedAt); err != nil {
		return nil, mapPGError(err)
	}
	return &acc, nil
}

func (s *PGSocialAccountStore) FindByEmail(ctx context.Context, email, providerSlug string) (*SocialAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, social_id, provider_slug, email, created_at
		from social_accounts
		where email = lower($1) and provider_slug = $2
	`, email, providerSlug)
	var acc SocialAccount
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.SocialID, &acc.ProviderSlug, &acc.Email, &acc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (s *PGSocialAccountStore) Delete(ctx context.Context, userID, providerSlug string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from social_accounts where user_id = $1 and provider_slug = $2`,
		userID, providerSlug)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// PGLoginLogStore implements LoginLogStore over PostgreSQL.
type PGLoginLogStore struct {
	db *sql.DB
}

func NewPGLoginLogStore(db *sql.DB) *PGLoginLogStore { return &PGLoginLogStore{db: db} }

func (s *PGLoginLogStore) Record(ctx context.Context, rec *LoginRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into login_log (id, user_id, ip_addr, user_agent, logged_at)
		values ($1, $2, $3, $4, $5)
	`, rec.ID, rec.UserID, rec.IPAddr, rec.UserAgent, rec.LoggedAt)
	return err
}

func (s *PGLoginLogStore) ListByUser(ctx context.Context, userID string, limit int) ([]*LoginRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, ip_addr, user_agent, logged_at
		from login_log
		where user_id = $1
		order by logged_at desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*LoginRecord
	for rows.Next() {
		var rec LoginRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.IPAddr, &rec.UserAgent, &rec.LoggedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// mapPGError translates constraint violations into domain errors.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
