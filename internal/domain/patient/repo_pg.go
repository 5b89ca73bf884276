package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientColumns = `id, name, birth_date, sick, score, created_at, updated_at`

func (r *patientRepoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.BirthDate, &p.Sick, &p.Score, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Save(ctx context.Context, p *Patient) error {
	if p.ID == 0 {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patient (name, birth_date, sick, score)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			p.Name, p.BirthDate, p.Sick, p.Score,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		return nil
	}

	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name = $2, birth_date = $3, sick = $4, score = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.BirthDate, p.Sick, p.Score,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return fmt.Errorf("patient %d: %w", p.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) FindByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("patient %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find patient %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.page(ctx, "", nil, limit, offset)
}

func (r *patientRepoPG) SearchByName(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error) {
	if keyword == "" {
		return r.List(ctx, limit, offset)
	}
	return r.page(ctx, `WHERE name LIKE $1 ESCAPE '\'`, []interface{}{"%" + escapeLike(keyword) + "%"}, limit, offset)
}

func (r *patientRepoPG) page(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patient %s ORDER BY id LIMIT $%d OFFSET $%d`, patientColumns, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes keyword match literally inside a LIKE pattern.
func escapeLike(keyword string) string {
	return likeEscaper.Replace(keyword)
}
