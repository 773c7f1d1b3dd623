package domain

const (
	ScrapeDirectURL      = "direct_url"
	ScrapeEmailDomain    = "email_domain"
	ScrapeBusinessSearch = "business_search"
	ScrapeNone           = "none"

	StatusNew           = "new"
	StatusReadyToScrape = "ready_to_scrape"
	StatusDuplicate     = "duplicate"

	UploadUploaded   = "uploaded"
	UploadValidating = "validating"
	UploadValidated  = "validated"
)

// ScrapePriority maps a scrape method to its rank; 0 means unranked.
func ScrapePriority(method string) int {
	switch method {
	case ScrapeDirectURL:
		return 1
	case ScrapeEmailDomain:
		return 2
	case ScrapeBusinessSearch:
		return 3
	}
	return 0
}

type Client struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Upload struct {
	ID           string  `json:"id"`
	ClientID     string  `json:"client_id"`
	Filename     string  `json:"filename"`
	Status       string  `json:"status" enum:"uploaded,validating,validated"`
	Total        int     `json:"total"`
	ValidCount   int     `json:"valid_count"`
	InvalidCount int     `json:"invalid_count"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	ValidatedAt  *string `json:"validated_at,omitempty" format:"date-time"`
}

type Contact struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	UploadID     string `json:"upload_id"`
	BusinessName string `json:"business_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`

	BusinessNameValid bool   `json:"business_name_valid"`
	EmailValid        bool   `json:"email_valid"`
	WebsiteValid      bool   `json:"website_valid"`
	IsFreeEmail       bool   `json:"is_free_email"`
	Valid             bool   `json:"valid"`
	ValidationReason  string `json:"validation_reason,omitempty"`
	ScrapeMethod      string `json:"scrape_method" enum:"direct_url,email_domain,business_search,none"`
	ScrapePriority    *int   `json:"scrape_priority,omitempty"`
	Status            string `json:"status" enum:"new,ready_to_scrape,duplicate"`

	DuplicateStatus string  `json:"duplicate_status,omitempty"`
	DuplicateOfID   *string `json:"duplicate_of_id,omitempty"`
	DuplicateReason string  `json:"duplicate_reason,omitempty"`

	ResolvedWebsite   string `json:"resolved_website,omitempty"`
	WebsiteSource     string `json:"website_source,omitempty"`
	WebsiteConfidence string `json:"website_confidence,omitempty"`

	ValidatedAt *string `json:"validated_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ClientID   string `json:"client_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
