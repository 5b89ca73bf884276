package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/db"
)

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
	tx   *db.TxManager
}

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool, tx: db.NewTxManager(pool)}
}

func (r *userRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const userSelect = `
	SELECT u.id, u.username, u.password_hash, u.email, u.created_at,
		COALESCE(array_agg(ur.role_name ORDER BY ur.role_name) FILTER (WHERE ur.role_name IS NOT NULL), '{}')
	FROM app_user u
	LEFT JOIN app_user_roles ur ON ur.user_id = u.id`

func (r *userRepoPG) Save(ctx context.Context, u *AppUser) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return r.tx.InTx(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO app_user (id, username, password_hash, email)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				username = EXCLUDED.username,
				password_hash = EXCLUDED.password_hash,
				email = EXCLUDED.email
			RETURNING created_at`,
			u.ID, u.Username, u.PasswordHash, u.Email,
		).Scan(&u.CreatedAt)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", u.Username, apperr.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("save user %s: %w", u.Username, err)
		}

		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM app_user_roles WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("clear roles of %s: %w", u.Username, err)
		}
		for _, role := range u.Roles {
			if _, err := r.conn(ctx).Exec(ctx,
				`INSERT INTO app_user_roles (user_id, role_name) VALUES ($1, $2)`, u.ID, role); err != nil {
				return fmt.Errorf("grant %s to %s: %w", role, u.Username, err)
			}
		}
		return nil
	})
}

func (r *userRepoPG) FindByID(ctx context.Context, id string) (*AppUser, error) {
	u, err := r.scanUser(r.conn(ctx).QueryRow(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return u, err
}

func (r *userRepoPG) FindByUsername(ctx context.Context, username string) (*AppUser, error) {
	u, err := r.scanUser(r.conn(ctx).QueryRow(ctx, userSelect+` WHERE u.username = $1 GROUP BY u.id`, username))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
	}
	return u, err
}

func (r *userRepoPG) DeleteByID(ctx context.Context, id string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	return err
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*AppUser, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, userSelect+` GROUP BY u.id ORDER BY u.username LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*AppUser
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *userRepoPG) scanUser(row pgx.Row) (*AppUser, error) {
	var u AppUser
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt, &u.Roles)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// -- Role Repository --

type roleRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoleRepoPG(pool *pgxpool.Pool) RoleRepository {
	return &roleRepoPG{pool: pool}
}

func (r *roleRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *roleRepoPG) Save(ctx context.Context, role *AppRole) error {
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO app_role (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role.Name)
	return err
}

func (r *roleRepoPG) FindByID(ctx context.Context, name string) (*AppRole, error) {
	var role AppRole
	err := r.conn(ctx).QueryRow(ctx, `SELECT name FROM app_role WHERE name = $1`, name).Scan(&role.Name)
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("role %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepoPG) DeleteByID(ctx context.Context, name string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM app_role WHERE name = $1`, name)
	return err
}

func (r *roleRepoPG) List(ctx context.Context, limit, offset int) ([]*AppRole, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_role`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT name FROM app_role ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var roles []*AppRole
	for rows.Next() {
		var role AppRole
		if err := rows.Scan(&role.Name); err != nil {
			return nil, 0, err
		}
		roles = append(roles, &role)
	}
	return roles, total, rows.Err()
}
