package repo_test

import (
	"context"
	"errors"
	"testing"

	"leadready/internal/db"
	"leadready/internal/domain"
	"leadready/internal/events"
	"leadready/internal/migrate"
	"leadready/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestContactsBeforeFollowsInsertionOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	const ts = "2024-01-01T00:00:00Z"
	if err := r.InsertClient(ctx, nil, domain.Client{ID: "cl", Name: "Client", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertClient(ctx, nil, domain.Client{ID: "other", Name: "Other", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	for _, u := range []domain.Upload{{ID: "u1", ClientID: "cl"}, {ID: "u2", ClientID: "other"}} {
		u.Filename, u.Status, u.CreatedAt = "f.csv", domain.UploadUploaded, ts
		if err := r.InsertUpload(ctx, nil, u); err != nil {
			t.Fatal(err)
		}
	}
	// ids deliberately out of lexical order; insertion order decides
	for _, c := range []domain.Contact{
		{ID: "z", ClientID: "cl", UploadID: "u1"},
		{ID: "x", ClientID: "other", UploadID: "u2"},
		{ID: "a", ClientID: "cl", UploadID: "u1"},
		{ID: "m", ClientID: "cl", UploadID: "u1"},
	} {
		c.CreatedAt, c.UpdatedAt = ts, ts
		if err := r.InsertContact(ctx, nil, c); err != nil {
			t.Fatal(err)
		}
	}
	before, err := r.ContactsBefore(ctx, "cl", "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 2 || before[0].ID != "z" || before[1].ID != "a" {
		t.Fatalf("before = %+v", before)
	}
	if before, _ := r.ContactsBefore(ctx, "cl", "z"); len(before) != 0 {
		t.Fatalf("first contact has nothing before it: %+v", before)
	}
}

func TestContactValidationRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	const ts = "2024-01-01T00:00:00Z"
	_ = r.InsertClient(ctx, nil, domain.Client{ID: "cl", Name: "Client", CreatedAt: ts})
	_ = r.InsertUpload(ctx, nil, domain.Upload{ID: "u1", ClientID: "cl", Filename: "f.csv", Status: domain.UploadUploaded, CreatedAt: ts})
	c := domain.Contact{ID: "c1", ClientID: "cl", UploadID: "u1", BusinessName: "Tech Corp", Website: "techcorp.com", CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertContact(ctx, nil, c); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetContact(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ScrapeMethod != domain.ScrapeNone || got.Status != domain.StatusNew || got.ScrapePriority != nil {
		t.Fatalf("new contact defaults: %+v", got)
	}

	p := 1
	dup := "c0"
	got.Valid, got.WebsiteValid, got.BusinessNameValid = true, true, true
	got.ScrapeMethod, got.ScrapePriority, got.Status = domain.ScrapeDirectURL, &p, domain.StatusReadyToScrape
	got.DuplicateStatus, got.DuplicateOfID = "potential_duplicate", &dup
	got.ValidatedAt = &got.UpdatedAt
	got.Website = "changed.com"
	if err := r.UpdateContactValidation(ctx, nil, got); err != nil {
		t.Fatal(err)
	}
	again, _ := r.GetContact(ctx, "c1")
	if !again.Valid || again.ScrapePriority == nil || *again.ScrapePriority != 1 || *again.DuplicateOfID != "c0" {
		t.Fatalf("verdict not stored: %+v", again)
	}
	if again.Website != "techcorp.com" {
		t.Fatalf("validation update must not touch inputs: %q", again.Website)
	}

	bad := again
	bad.ScrapeMethod = domain.ScrapeNone
	if err := r.UpdateContactValidation(ctx, nil, bad); err == nil {
		t.Fatalf("valid contact without a scrape method must be rejected by the schema")
	}

	upload, err := r.RecordUploadCounts(ctx, nil, "u1", ts)
	if err != nil {
		t.Fatal(err)
	}
	if upload.Total != 1 || upload.ValidCount != 1 || upload.Status != domain.UploadValidated {
		t.Fatalf("counts: %+v", upload)
	}
	if _, err := r.GetContact(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsAfterCursor(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	latest, err := r.LatestEventID(ctx)
	if err != nil || latest != 0 {
		t.Fatalf("empty log: latest=%d err=%v", latest, err)
	}
	w := events.Writer{DB: r.DB}
	for _, typ := range []string{events.ClientCreated, events.UploadCreated, events.ContactCreated} {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Append(ctx, tx, typ, "cl", "client", "cl", nil); err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	all, err := r.EventsAfter(ctx, 10, 0)
	if err != nil || len(all) != 3 || all[0].Type != events.ClientCreated {
		t.Fatalf("events after 0: %+v err=%v", all, err)
	}
	rest, err := r.EventsAfter(ctx, 10, all[0].ID)
	if err != nil || len(rest) != 2 || rest[0].Type != events.UploadCreated {
		t.Fatalf("events after first: %+v err=%v", rest, err)
	}
	latest, err = r.LatestEventID(ctx)
	if err != nil || latest != all[2].ID {
		t.Fatalf("latest=%d want %d err=%v", latest, all[2].ID, err)
	}
}
