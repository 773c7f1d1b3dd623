package server

import (
	"leadready/internal/domain"
	"leadready/internal/engine"
)

// Request payloads

type CreateClientRequest struct {
	Name string `json:"name" minLength:"1"`
}

type CreateUploadRequest struct {
	ClientID string `json:"client_id" minLength:"1"`
	Filename string `json:"filename,omitempty"`
}

type AddContactsRequest struct {
	Contacts []engine.ContactInput `json:"contacts" minItems:"1"`
	// Validate starts background validation of the upload once stored.
	Validate bool `json:"validate,omitempty"`
}

type EmailCheckRequest struct {
	Email string `json:"email" minLength:"1"`
}

type WebsiteCheckRequest struct {
	URL string `json:"url" minLength:"1"`
}

// Response payloads

type ClientList struct {
	Items []domain.Client `json:"items"`
}

type UploadList struct {
	Items []domain.Upload `json:"items"`
}

type ContactList struct {
	Items []domain.Contact `json:"items"`
}

type ContactValidationResponse struct {
	ContactID string         `json:"contact_id"`
	Valid     bool           `json:"valid"`
	Contact   domain.Contact `json:"contact"`
}

type UploadValidationResponse struct {
	UploadID string                `json:"upload_id"`
	Status   string                `json:"status" enum:"accepted,completed"`
	Summary  *engine.UploadSummary `json:"summary,omitempty"`
}

type RevalidateResponse struct {
	UploadID    string `json:"upload_id"`
	Revalidated int    `json:"revalidated"`
}

type EmailCheckResponse struct {
	Email       string `json:"email"`
	Valid       bool   `json:"valid"`
	Domain      string `json:"domain,omitempty"`
	IsFreeEmail bool   `json:"is_free_email"`
	Mailbox     string `json:"mailbox,omitempty" enum:"exists,does_not_exist,indeterminate"`
	MXHost      string `json:"mx_host,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type WebsiteCheckResponse struct {
	URL        string `json:"url"`
	Valid      bool   `json:"valid"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type EventList struct {
	Items []domain.Event `json:"items"`
}

type ResolutionResponse struct {
	ContactID  string `json:"contact_id"`
	Website    string `json:"website,omitempty"`
	Source     string `json:"source" enum:"direct,email_domain,business_search,failed"`
	Confidence string `json:"confidence" enum:"high,medium,low,none"`
	Message    string `json:"message,omitempty"`
}
