package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadready/internal/config"
	"leadready/internal/domain"
	"leadready/internal/emailcheck"
	"leadready/internal/events"
	"leadready/internal/repo"
	"leadready/internal/retry"
	"leadready/internal/webprobe"
)

// EmailValidator decides whether an address is deliverable enough to keep.
type EmailValidator interface {
	Validate(ctx context.Context, address string) emailcheck.Result
}

// WebsiteProber checks a URL for reachability.
type WebsiteProber interface {
	Probe(ctx context.Context, raw string) webprobe.Result
}

// WebsiteResolver finds a website for a contact that may not have one.
type WebsiteResolver interface {
	Resolve(ctx context.Context, in webprobe.Input) webprobe.Resolution
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Email    EmailValidator
	Website  WebsiteProber
	Resolver WebsiteResolver
	Retry    retry.Executor
	Now      func() time.Time
	Logger   *slog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// inTx runs fn in a transaction under the database retry policy.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return e.Retry.Do(ctx, retry.PolicyFor(retry.Database), func(ctx context.Context) error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (e Engine) CreateClient(ctx context.Context, name string) (domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Client{}, InputError{Field: "name", Reason: "client name is required"}
	}
	c := domain.Client{ID: uuid.NewString(), Name: name, CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ClientCreated, c.ID, events.KindClient, c.ID, events.EventPayload{"name": c.Name})
	})
	if err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) CreateUpload(ctx context.Context, clientID, filename string) (domain.Upload, error) {
	if clientID == "" {
		return domain.Upload{}, InputError{Field: "client_id", Reason: "client is required"}
	}
	if _, err := e.Repo.GetClient(ctx, clientID); err != nil {
		return domain.Upload{}, err
	}
	if filename == "" {
		filename = "manual"
	}
	u := domain.Upload{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Filename:  filename,
		Status:    domain.UploadUploaded,
		CreatedAt: e.stamp(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUpload(ctx, tx, u); err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}
		return e.Events.Append(ctx, tx, events.UploadCreated, u.ClientID, events.KindUpload, u.ID, events.EventPayload{"filename": u.Filename})
	})
	if err != nil {
		return domain.Upload{}, err
	}
	return u, nil
}

// ContactInput carries the caller-supplied fields of a contact.
type ContactInput struct {
	BusinessName string `json:"business_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

// AddContacts stores contacts under an upload in one transaction. They start
// unvalidated with status new.
func (e Engine) AddContacts(ctx context.Context, uploadID string, in []ContactInput) ([]domain.Contact, error) {
	u, err := e.Repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, InputError{Field: "contacts", Reason: "at least one contact is required"}
	}
	now := e.stamp()
	out := make([]domain.Contact, 0, len(in))
	for _, ci := range in {
		out = append(out, domain.Contact{
			ID:           uuid.NewString(),
			ClientID:     u.ClientID,
			UploadID:     u.ID,
			BusinessName: strings.TrimSpace(ci.BusinessName),
			Email:        strings.TrimSpace(ci.Email),
			Phone:        strings.TrimSpace(ci.Phone),
			Website:      strings.TrimSpace(ci.Website),
			City:         strings.TrimSpace(ci.City),
			State:        strings.TrimSpace(ci.State),
			Country:      strings.TrimSpace(ci.Country),
			PostalCode:   strings.TrimSpace(ci.PostalCode),
			ScrapeMethod: domain.ScrapeNone,
			Status:       domain.StatusNew,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range out {
			if err := e.Repo.InsertContact(ctx, tx, c); err != nil {
				return fmt.Errorf("insert contact: %w", err)
			}
			if err := e.Events.Append(ctx, tx, events.ContactCreated, c.ClientID, events.KindContact, c.ID, events.EventPayload{"upload_id": c.UploadID}); err != nil {
				return err
			}
		}
		return e.Repo.IncrementUploadTotal(ctx, tx, u.ID, len(out))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e Engine) ListClients(ctx context.Context) ([]domain.Client, error) {
	return e.Repo.ListClients(ctx)
}

func (e Engine) GetUpload(ctx context.Context, id string) (domain.Upload, error) {
	return e.Repo.GetUpload(ctx, id)
}

// ListUploads returns uploads, restricted to one client when clientID is set.
func (e Engine) ListUploads(ctx context.Context, clientID string) ([]domain.Upload, error) {
	return e.Repo.ListUploads(ctx, clientID)
}

func (e Engine) ListContacts(ctx context.Context, f repo.ContactFilters) ([]domain.Contact, error) {
	return e.Repo.ListContacts(ctx, f)
}

// ListEvents returns the most recent events matching the non-empty filters.
func (e Engine) ListEvents(ctx context.Context, limit int, clientID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, clientID, evtType, entityKind, entityID)
}
