package repo

import (
	"context"
	"database/sql"
	"strings"

	"leadready/internal/domain"
)

const contactColumns = `id,client_id,upload_id,COALESCE(business_name,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(website,''),
COALESCE(city,''),COALESCE(state,''),COALESCE(country,''),COALESCE(postal_code,''),
business_name_valid,email_valid,website_valid,is_free_email,valid,COALESCE(validation_reason,''),scrape_method,scrape_priority,status,
COALESCE(duplicate_status,''),duplicate_of_id,COALESCE(duplicate_reason,''),
COALESCE(resolved_website,''),COALESCE(website_source,''),COALESCE(website_confidence,''),
validated_at,created_at,updated_at`

func scanContact(row rowScanner) (domain.Contact, error) {
	var c domain.Contact
	var nameValid, emailValid, siteValid, free, valid int
	var priority sql.NullInt64
	var dupOf, validatedAt sql.NullString
	err := row.Scan(&c.ID, &c.ClientID, &c.UploadID, &c.BusinessName, &c.Email, &c.Phone, &c.Website,
		&c.City, &c.State, &c.Country, &c.PostalCode,
		&nameValid, &emailValid, &siteValid, &free, &valid, &c.ValidationReason, &c.ScrapeMethod, &priority, &c.Status,
		&c.DuplicateStatus, &dupOf, &c.DuplicateReason,
		&c.ResolvedWebsite, &c.WebsiteSource, &c.WebsiteConfidence,
		&validatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.BusinessNameValid = nameValid == 1
	c.EmailValid = emailValid == 1
	c.WebsiteValid = siteValid == 1
	c.IsFreeEmail = free == 1
	c.Valid = valid == 1
	if priority.Valid {
		p := int(priority.Int64)
		c.ScrapePriority = &p
	}
	if dupOf.Valid {
		c.DuplicateOfID = &dupOf.String
	}
	if validatedAt.Valid {
		c.ValidatedAt = &validatedAt.String
	}
	return c, nil
}

func (r Repo) InsertContact(ctx context.Context, tx *sql.Tx, c domain.Contact) error {
	if c.ScrapeMethod == "" {
		c.ScrapeMethod = domain.ScrapeNone
	}
	if c.Status == "" {
		c.Status = domain.StatusNew
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO contacts(id,client_id,upload_id,business_name,email,phone,website,city,state,country,postal_code,scrape_method,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ClientID, c.UploadID, nullable(c.BusinessName), nullable(c.Email), nullable(c.Phone), nullable(c.Website),
		nullable(c.City), nullable(c.State), nullable(c.Country), nullable(c.PostalCode), c.ScrapeMethod, c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	return scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=?`, id))
}

type ContactFilters struct {
	ClientID string
	UploadID string
	Status   string
	Valid    *bool
	Limit    int
}

func (r Repo) ListContacts(ctx context.Context, f ContactFilters) ([]domain.Contact, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.UploadID != "" {
		clauses = append(clauses, "upload_id=?")
		args = append(args, f.UploadID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Valid != nil {
		clauses = append(clauses, "valid=?")
		args = append(args, boolInt(*f.Valid))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + contactColumns + ` FROM contacts ` + where + ` ORDER BY rowid ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryContacts(ctx, query, args...)
}

// ContactsBefore returns the client's contacts inserted before contactID, in
// insertion order.
func (r Repo) ContactsBefore(ctx context.Context, clientID, contactID string) ([]domain.Contact, error) {
	return r.queryContacts(ctx, `SELECT `+contactColumns+` FROM contacts
WHERE client_id=? AND rowid < (SELECT rowid FROM contacts WHERE id=?)
ORDER BY rowid ASC`, clientID, contactID)
}

func (r Repo) queryContacts(ctx context.Context, query string, args ...any) ([]domain.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateContactValidation writes the verdict fields only; input fields are
// never touched.
func (r Repo) UpdateContactValidation(ctx context.Context, tx *sql.Tx, c domain.Contact) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE contacts SET
business_name_valid=?, email_valid=?, website_valid=?, is_free_email=?, valid=?, validation_reason=?,
scrape_method=?, scrape_priority=?, status=?, duplicate_status=?, duplicate_of_id=?, duplicate_reason=?,
validated_at=?, updated_at=?
WHERE id=?`,
		boolInt(c.BusinessNameValid), boolInt(c.EmailValid), boolInt(c.WebsiteValid), boolInt(c.IsFreeEmail), boolInt(c.Valid), nullable(c.ValidationReason),
		c.ScrapeMethod, nullableIntPtr(c.ScrapePriority), c.Status, nullable(c.DuplicateStatus), nullableStringPtr(c.DuplicateOfID), nullable(c.DuplicateReason),
		nullableStringPtr(c.ValidatedAt), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateContactWebsite(ctx context.Context, tx *sql.Tx, id, website, source, confidence, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE contacts SET resolved_website=?, website_source=?, website_confidence=?, updated_at=? WHERE id=?`,
		nullable(website), nullable(source), nullable(confidence), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
