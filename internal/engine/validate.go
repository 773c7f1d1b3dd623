package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"leadready/internal/dedupe"
	"leadready/internal/domain"
	"leadready/internal/emailcheck"
	"leadready/internal/events"
	"leadready/internal/repo"
	"leadready/internal/webprobe"
)

// UploadSummary reports one batch validation pass.
type UploadSummary struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
}

func (e Engine) minNameLength() int {
	if e.Config != nil && e.Config.Validation.MinBusinessNameLength > 0 {
		return e.Config.Validation.MinBusinessNameLength
	}
	return 3
}

func (e Engine) brokenWebsiteBlocks() bool {
	return e.Config == nil || e.Config.Validation.BrokenWebsiteBlocks
}

func (e Engine) blockConfirmedDuplicates() bool {
	return e.Config != nil && e.Config.Duplicates.BlockConfirmed
}

// Evaluate computes the verdict fields of c without persisting anything.
// existing is the set c is checked against for duplicates.
func (e Engine) Evaluate(ctx context.Context, c domain.Contact, existing []domain.Contact) domain.Contact {
	var reasons []string

	websiteSupplied := strings.TrimSpace(c.Website) != ""
	c.WebsiteValid = false
	if websiteSupplied {
		res := e.Website.Probe(ctx, c.Website)
		c.WebsiteValid = res.Reachable
		switch {
		case res.Reachable:
			reasons = append(reasons, fmt.Sprintf("website reachable (HTTP %d)", res.StatusCode))
		case res.StatusCode > 0:
			reasons = append(reasons, fmt.Sprintf("website unreachable (HTTP %d)", res.StatusCode))
		default:
			reasons = append(reasons, "website unreachable")
		}
	} else {
		reasons = append(reasons, "no website")
	}

	c.EmailValid, c.IsFreeEmail = false, false
	if strings.TrimSpace(c.Email) != "" {
		res := e.Email.Validate(ctx, c.Email)
		c.EmailValid = res.IsValid
		c.IsFreeEmail = res.IsFreeEmail
		if res.IsValid {
			reasons = append(reasons, "email valid: "+res.Reason)
		} else {
			reasons = append(reasons, "email invalid: "+res.Reason)
		}
	} else {
		reasons = append(reasons, "no email")
	}

	c.BusinessNameValid = utf8.RuneCountInString(strings.TrimSpace(c.BusinessName)) >= e.minNameLength()
	if c.BusinessNameValid {
		reasons = append(reasons, "business name ok")
	} else {
		reasons = append(reasons, "business name missing or too short")
	}

	c.Valid = c.WebsiteValid || c.EmailValid || c.BusinessNameValid
	if websiteSupplied && !c.WebsiteValid && e.brokenWebsiteBlocks() {
		c.Valid = false
		reasons = append(reasons, "broken website blocks readiness")
	}

	c.ScrapeMethod = domain.ScrapeNone
	if c.Valid {
		switch {
		case c.WebsiteValid:
			c.ScrapeMethod = domain.ScrapeDirectURL
		case c.EmailValid && !c.IsFreeEmail:
			c.ScrapeMethod = domain.ScrapeEmailDomain
		case c.BusinessNameValid:
			c.ScrapeMethod = domain.ScrapeBusinessSearch
		default:
			c.Valid = false
			reasons = append(reasons, "free-mail address alone gives no scrape method")
		}
	}
	c.ScrapePriority = nil
	if p := domain.ScrapePriority(c.ScrapeMethod); p > 0 {
		c.ScrapePriority = &p
		reasons = append(reasons, "scrape via "+c.ScrapeMethod)
	}

	dup := dedupe.Detect(c, existing)
	c.DuplicateStatus = string(dup.Status)
	c.DuplicateOfID = nil
	if dup.MatchID != "" {
		id := dup.MatchID
		c.DuplicateOfID = &id
	}
	c.DuplicateReason = dup.Reason
	if dup.Status != dedupe.Unique {
		reasons = append(reasons, dup.Reason)
	}

	switch {
	case dup.Status == dedupe.Confirmed && e.blockConfirmedDuplicates():
		c.Status = domain.StatusDuplicate
	case c.Valid:
		c.Status = domain.StatusReadyToScrape
	default:
		c.Status = domain.StatusNew
	}
	c.ValidationReason = strings.Join(reasons, "; ")
	now := e.stamp()
	c.ValidatedAt = &now
	c.UpdatedAt = now
	return c
}

func (e Engine) saveVerdict(ctx context.Context, c domain.Contact) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateContactValidation(ctx, tx, c); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ContactValidated, c.ClientID, events.KindContact, c.ID, events.EventPayload{
			"valid":            c.Valid,
			"scrape_method":    c.ScrapeMethod,
			"status":           c.Status,
			"duplicate_status": c.DuplicateStatus,
		})
	})
}

// ValidateContact validates one stored contact and persists the verdict. Only
// a missing contact or a storage failure is returned as an error.
func (e Engine) ValidateContact(ctx context.Context, id string) (bool, error) {
	c, err := e.Repo.GetContact(ctx, id)
	if err != nil {
		return false, err
	}
	existing, err := e.Repo.ContactsBefore(ctx, c.ClientID, c.ID)
	if err != nil {
		return false, fmt.Errorf("load existing contacts: %w", err)
	}
	out := e.Evaluate(ctx, c, existing)
	if err := e.saveVerdict(ctx, out); err != nil {
		return false, fmt.Errorf("save verdict for %s: %w", id, err)
	}
	e.logger().Info("contact validated", "contact_id", id, "valid", out.Valid, "scrape_method", out.ScrapeMethod)
	return out.Valid, nil
}

// GetContact returns a stored contact.
func (e Engine) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	return e.Repo.GetContact(ctx, id)
}

// ValidateUpload validates every contact of an upload one at a time. A
// failing contact is recorded as invalid with the failure in its reason and
// the batch moves on.
func (e Engine) ValidateUpload(ctx context.Context, uploadID string) (UploadSummary, error) {
	return e.validateBatch(ctx, uploadID, false)
}

// RevalidateInvalid re-runs validation for the upload's invalid contacts and
// returns how many were re-checked.
func (e Engine) RevalidateInvalid(ctx context.Context, uploadID string) (int, error) {
	sum, err := e.validateBatch(ctx, uploadID, true)
	return sum.Validated, err
}

func (e Engine) validateBatch(ctx context.Context, uploadID string, onlyInvalid bool) (UploadSummary, error) {
	var sum UploadSummary
	u, err := e.Repo.GetUpload(ctx, uploadID)
	if err != nil {
		return sum, err
	}
	if err := e.Repo.UpdateUploadStatus(ctx, nil, u.ID, domain.UploadValidating); err != nil {
		return sum, err
	}
	// one read of the client's contacts serves every duplicate check
	all, err := e.Repo.ListContacts(ctx, repo.ContactFilters{ClientID: u.ClientID})
	if err != nil {
		return sum, fmt.Errorf("load client contacts: %w", err)
	}

	var becameValid int
	for i, c := range all {
		if c.UploadID != u.ID {
			continue
		}
		sum.Total++
		if onlyInvalid && c.Valid {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		out, err := e.validateOne(ctx, c, all[:i])
		sum.Validated++
		if err != nil {
			e.logger().Error("contact validation failed", "contact_id", c.ID, "err", err)
			sum.Invalid++
			continue
		}
		if out.Valid {
			sum.Valid++
			if onlyInvalid {
				becameValid++
			}
		} else {
			sum.Invalid++
		}
	}

	evt := events.UploadValidated
	if onlyInvalid {
		evt = events.UploadRevalidated
	}
	// counts are written even after cancellation so the upload never stays in "validating"
	finishCtx := context.WithoutCancel(ctx)
	err = e.inTx(finishCtx, func(tx *sql.Tx) error {
		if _, err := e.Repo.RecordUploadCounts(finishCtx, tx, u.ID, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(finishCtx, tx, evt, u.ClientID, events.KindUpload, u.ID, events.EventPayload{
			"total":        sum.Total,
			"validated":    sum.Validated,
			"valid":        sum.Valid,
			"invalid":      sum.Invalid,
			"became_valid": becameValid,
		})
	})
	if err != nil {
		return sum, fmt.Errorf("record upload counts: %w", err)
	}
	e.logger().Info("upload validated", "upload_id", u.ID, "total", sum.Total, "validated", sum.Validated, "valid", sum.Valid, "invalid", sum.Invalid)
	return sum, ctx.Err()
}

// validateOne isolates a single contact: a panic in a probe or a failed write
// becomes an invalid verdict carrying the failure.
func (e Engine) validateOne(ctx context.Context, c domain.Contact, existing []domain.Contact) (out domain.Contact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			e.recordFailure(ctx, c, err)
		}
	}()
	out = e.Evaluate(ctx, c, existing)
	err = e.saveVerdict(ctx, out)
	return out, err
}

func (e Engine) recordFailure(ctx context.Context, c domain.Contact, cause error) {
	now := e.stamp()
	c.Valid, c.WebsiteValid, c.EmailValid, c.BusinessNameValid = false, false, false, false
	c.ScrapeMethod, c.ScrapePriority = domain.ScrapeNone, nil
	c.Status = domain.StatusNew
	c.ValidationReason = "validation error: " + cause.Error()
	c.ValidatedAt, c.UpdatedAt = &now, now
	if err := e.Repo.UpdateContactValidation(context.WithoutCancel(ctx), nil, c); err != nil {
		e.logger().Error("recording validation failure", "contact_id", c.ID, "err", err)
	}
}

// ValidateUploadAsync starts ValidateUpload detached from ctx's cancellation
// and returns a channel that receives its outcome. Callers may ignore it.
func (e Engine) ValidateUploadAsync(ctx context.Context, uploadID string) <-chan error {
	done := make(chan error, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		_, err := e.ValidateUpload(bg, uploadID)
		if err != nil {
			e.logger().Error("background upload validation failed", "upload_id", uploadID, "err", err)
		}
		done <- err
	}()
	return done
}

// ValidateEmail reports whether address passes email validation.
func (e Engine) ValidateEmail(ctx context.Context, address string) bool {
	return e.Email.Validate(ctx, address).IsValid
}

// ValidateWebsite reports whether raw answers HTTP with a status below 400.
func (e Engine) ValidateWebsite(ctx context.Context, raw string) bool {
	return e.Website.Probe(ctx, raw).Reachable
}

// ResolveWebsite runs the website fallback chain for a stored contact and
// records the outcome on it.
func (e Engine) ResolveWebsite(ctx context.Context, id string) (webprobe.Resolution, error) {
	c, err := e.Repo.GetContact(ctx, id)
	if err != nil {
		return webprobe.Resolution{}, err
	}
	res := e.Resolver.Resolve(ctx, webprobe.Input{
		BusinessName: c.BusinessName,
		Email:        c.Email,
		Website:      c.Website,
		City:         c.City,
	})
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateContactWebsite(ctx, tx, c.ID, res.Website, string(res.Source), string(res.Confidence), e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ContactWebsiteResolved, c.ClientID, events.KindContact, c.ID, events.EventPayload{
			"website":    res.Website,
			"source":     res.Source,
			"confidence": res.Confidence,
		})
	})
	if err != nil {
		return res, fmt.Errorf("save resolution for %s: %w", id, err)
	}
	return res, nil
}

// CheckEmail returns the full email verdict for address.
func (e Engine) CheckEmail(ctx context.Context, address string) emailcheck.Result {
	return e.Email.Validate(ctx, address)
}

// CheckWebsite returns the full reachability result for raw.
func (e Engine) CheckWebsite(ctx context.Context, raw string) webprobe.Result {
	return e.Website.Probe(ctx, raw)
}
