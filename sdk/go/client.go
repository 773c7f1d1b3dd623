package leadreadysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal leadready HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. Checks run live probes, so the
// timeout is longer than a plain CRUD client would need.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  60 * time.Second,
	}
}

// Account is a leadready client, the customer that owns uploads.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type Upload struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	Total        int    `json:"total"`
	ValidCount   int    `json:"valid_count"`
	InvalidCount int    `json:"invalid_count"`
}

// ContactInput is one row to ingest.
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

// Contact represents the API contact model (partial).
type Contact struct {
	ID               string `json:"id"`
	UploadID         string `json:"upload_id"`
	BusinessName     string `json:"business_name"`
	Email            string `json:"email"`
	Website          string `json:"website"`
	Valid            bool   `json:"valid"`
	ValidationReason string `json:"validation_reason"`
	ScrapeMethod     string `json:"scrape_method"`
	ScrapePriority   *int   `json:"scrape_priority"`
	Status           string `json:"status"`
	DuplicateStatus  string `json:"duplicate_status"`
	ResolvedWebsite  string `json:"resolved_website"`
}

type UploadSummary struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
}

type EmailCheck struct {
	Email       string `json:"email"`
	Valid       bool   `json:"valid"`
	Domain      string `json:"domain"`
	IsFreeEmail bool   `json:"is_free_email"`
	Mailbox     string `json:"mailbox"`
	Reason      string `json:"reason"`
}

type WebsiteCheck struct {
	URL        string `json:"url"`
	Valid      bool   `json:"valid"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
}

type Resolution struct {
	ContactID  string `json:"contact_id"`
	Website    string `json:"website"`
	Source     string `json:"source"`
	Confidence string `json:"confidence"`
	Message    string `json:"message"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateClient(ctx context.Context, name string) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodPost, "clients", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateUpload(ctx context.Context, clientID, filename string) (Upload, error) {
	var resp Upload
	err := c.do(ctx, http.MethodPost, "uploads", map[string]any{"client_id": clientID, "filename": filename}, &resp)
	return resp, err
}

func (c *Client) GetUpload(ctx context.Context, uploadID string) (Upload, error) {
	var resp Upload
	err := c.do(ctx, http.MethodGet, "uploads/"+url.PathEscape(uploadID), nil, &resp)
	return resp, err
}

// AddContacts ingests contacts; with validate set the server starts
// validating the upload in the background.
func (c *Client) AddContacts(ctx context.Context, uploadID string, contacts []ContactInput, validate bool) ([]Contact, error) {
	var resp struct {
		Items []Contact `json:"items"`
	}
	body := map[string]any{"contacts": contacts, "validate": validate}
	err := c.do(ctx, http.MethodPost, "uploads/"+url.PathEscape(uploadID)+"/contacts", body, &resp)
	return resp.Items, err
}

// ListContacts lists an upload's contacts. valid may be nil for no filter.
func (c *Client) ListContacts(ctx context.Context, uploadID string, valid *bool) ([]Contact, error) {
	var resp struct {
		Items []Contact `json:"items"`
	}
	endpoint := "uploads/" + url.PathEscape(uploadID) + "/contacts"
	if valid != nil {
		endpoint += fmt.Sprintf("?valid=%t", *valid)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetContact(ctx context.Context, contactID string) (Contact, error) {
	var resp Contact
	err := c.do(ctx, http.MethodGet, "contacts/"+url.PathEscape(contactID), nil, &resp)
	return resp, err
}

// ValidateContact validates one contact and returns its stored state.
func (c *Client) ValidateContact(ctx context.Context, contactID string) (Contact, error) {
	var resp struct {
		Contact Contact `json:"contact"`
	}
	err := c.do(ctx, http.MethodPost, "contacts/"+url.PathEscape(contactID)+"/validate", nil, &resp)
	return resp.Contact, err
}

// ValidateUpload runs a synchronous batch validation.
func (c *Client) ValidateUpload(ctx context.Context, uploadID string) (UploadSummary, error) {
	var resp struct {
		Summary *UploadSummary `json:"summary"`
	}
	if err := c.do(ctx, http.MethodPost, "uploads/"+url.PathEscape(uploadID)+"/validate", nil, &resp); err != nil {
		return UploadSummary{}, err
	}
	if resp.Summary == nil {
		return UploadSummary{}, fmt.Errorf("validate upload %s: response carried no summary", uploadID)
	}
	return *resp.Summary, nil
}

// StartValidateUpload triggers background validation and returns at once.
func (c *Client) StartValidateUpload(ctx context.Context, uploadID string) error {
	return c.do(ctx, http.MethodPost, "uploads/"+url.PathEscape(uploadID)+"/validate?async=true", nil, nil)
}

func (c *Client) RevalidateUpload(ctx context.Context, uploadID string) (int, error) {
	var resp struct {
		Revalidated int `json:"revalidated"`
	}
	err := c.do(ctx, http.MethodPost, "uploads/"+url.PathEscape(uploadID)+"/revalidate", nil, &resp)
	return resp.Revalidated, err
}

func (c *Client) ResolveWebsite(ctx context.Context, contactID string) (Resolution, error) {
	var resp Resolution
	err := c.do(ctx, http.MethodPost, "contacts/"+url.PathEscape(contactID)+"/resolve-website", nil, &resp)
	return resp, err
}

func (c *Client) CheckEmail(ctx context.Context, email string) (EmailCheck, error) {
	var resp EmailCheck
	err := c.do(ctx, http.MethodPost, "validate/email", map[string]any{"email": email}, &resp)
	return resp, err
}

func (c *Client) CheckWebsite(ctx context.Context, website string) (WebsiteCheck, error) {
	var resp WebsiteCheck
	err := c.do(ctx, http.MethodPost, "validate/website", map[string]any{"url": website}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	p := strings.Trim(c.BasePath, "/")
	if p == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + p
}
