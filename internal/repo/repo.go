package repo

import (
	"context"
	"database/sql"
	"errors"

	"gigline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,title,COALESCE(description,''),budget,COALESCE(deadline,''),poster_id,status,quote_count,assigned_provider_id,approved_quote_id,approved_amount,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var assignedProvider, approvedQuote sql.NullString
	var approvedAmount sql.NullFloat64
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Budget, &p.Deadline, &p.PosterID,
		&p.Status, &p.QuoteCount, &assignedProvider, &approvedQuote, &approvedAmount, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if assignedProvider.Valid {
		p.AssignedProviderID = &assignedProvider.String
	}
	if approvedQuote.Valid {
		p.ApprovedQuoteID = &approvedQuote.String
	}
	if approvedAmount.Valid {
		p.ApprovedAmount = &approvedAmount.Float64
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,title,description,budget,deadline,poster_id,status,quote_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.Budget, nullable(p.Deadline), p.PosterID, p.Status, p.QuoteCount, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context, posterID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if posterID != "" {
		query += ` WHERE poster_id=?`
		args = append(args, posterID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// AssignProject performs the compare-and-swap at the heart of approve: the
// project row is mutated only if it is still open at write time. Returns
// false when a competing writer won.
func (r Repo) AssignProject(ctx context.Context, tx *sql.Tx, projectID, providerID, quoteID string, amount float64, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects
SET status=?, assigned_provider_id=?, approved_quote_id=?, approved_amount=?, updated_at=?
WHERE id=? AND status=?`,
		domain.ProjectAssigned, providerID, quoteID, amount, now, projectID, domain.ProjectOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TransitionProject moves a project from one status to another with the same
// conditional-write guard. Assignment fields are untouched; cancel and
// complete are single-row transitions.
func (r Repo) TransitionProject(ctx context.Context, tx *sql.Tx, id string, from, to domain.ProjectStatus, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=? AND status=?`, to, now, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BumpQuoteCount adjusts the denormalized counter, clamped at zero.
func (r Repo) BumpQuoteCount(ctx context.Context, tx *sql.Tx, projectID string, delta int, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET quote_count=MAX(quote_count + ?, 0), updated_at=? WHERE id=?`, delta, now, projectID)
	return err
}

func (r Repo) UpsertAccount(ctx context.Context, a domain.Account) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO accounts(id,display_name,account_type,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, account_type=excluded.account_type`,
		a.ID, a.DisplayName, a.Type, a.CreatedAt)
	return err
}

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := r.DB.QueryRowContext(ctx, `SELECT id,display_name,account_type,created_at FROM accounts WHERE id=?`, id).
		Scan(&a.ID, &a.DisplayName, &a.Type, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
