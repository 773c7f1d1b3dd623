package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"leadready/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer lets writers run either inside a transaction or directly on the pool.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) on(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO clients(id,name,created_at) VALUES (?,?,?)`, c.ID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM clients WHERE id=?`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const uploadColumns = `id,client_id,filename,status,total,valid_count,invalid_count,created_at,validated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (domain.Upload, error) {
	var u domain.Upload
	var validatedAt sql.NullString
	err := row.Scan(&u.ID, &u.ClientID, &u.Filename, &u.Status, &u.Total, &u.ValidCount, &u.InvalidCount, &u.CreatedAt, &validatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if validatedAt.Valid {
		u.ValidatedAt = &validatedAt.String
	}
	return u, err
}

func (r Repo) InsertUpload(ctx context.Context, tx *sql.Tx, u domain.Upload) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO uploads(`+uploadColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.ClientID, u.Filename, u.Status, u.Total, u.ValidCount, u.InvalidCount, u.CreatedAt, nullableStringPtr(u.ValidatedAt))
	return err
}

func (r Repo) GetUpload(ctx context.Context, id string) (domain.Upload, error) {
	return scanUpload(r.DB.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id=?`, id))
}

func (r Repo) ListUploads(ctx context.Context, clientID string) ([]domain.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUploadStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE uploads SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUploadCounts recomputes the upload's totals from its contacts and
// marks it validated.
func (r Repo) RecordUploadCounts(ctx context.Context, tx *sql.Tx, id, validatedAt string) (domain.Upload, error) {
	ex := r.on(tx)
	_, err := ex.ExecContext(ctx, `UPDATE uploads SET
  total=(SELECT COUNT(*) FROM contacts WHERE upload_id=?),
  valid_count=(SELECT COUNT(*) FROM contacts WHERE upload_id=? AND valid=1),
  invalid_count=(SELECT COUNT(*) FROM contacts WHERE upload_id=? AND valid=0),
  status=?, validated_at=?
WHERE id=?`, id, id, id, domain.UploadValidated, validatedAt, id)
	if err != nil {
		return domain.Upload{}, err
	}
	return scanUpload(ex.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id=?`, id))
}

func (r Repo) IncrementUploadTotal(ctx context.Context, tx *sql.Tx, id string, n int) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE uploads SET total=total+? WHERE id=?`, n, id)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) LatestEvents(ctx context.Context, limit int, clientID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if clientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, clientID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(client_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ClientID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id greater than after, oldest
// first.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(client_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ClientID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
