package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"leadready/internal/domain"
	"leadready/internal/engine"
	"leadready/internal/repo"
	"leadready/internal/smtpprobe"
)

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Create client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.CreateClient(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ClientList `json:"body"`
	}, error) {
		items, err := e.ListClients(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Client{}
		}
		return &struct {
			Body ClientList `json:"body"`
		}{Body: ClientList{Items: items}}, nil
	})
}

func registerUploads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-upload",
		Method:        http.MethodPost,
		Path:          "/uploads",
		Summary:       "Create upload",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateUploadRequest `json:"body"`
	}) (*struct {
		Body domain.Upload `json:"body"`
	}, error) {
		u, err := e.CreateUpload(ctx, input.Body.ClientID, input.Body.Filename)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Upload `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-uploads",
		Method:      http.MethodGet,
		Path:        "/uploads",
		Summary:     "List uploads",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body UploadList `json:"body"`
	}, error) {
		items, err := e.ListUploads(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Upload{}
		}
		return &struct {
			Body UploadList `json:"body"`
		}{Body: UploadList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-upload",
		Method:      http.MethodGet,
		Path:        "/uploads/{upload_id}",
		Summary:     "Get upload",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UploadID string `path:"upload_id"`
	}) (*struct {
		Body domain.Upload `json:"body"`
	}, error) {
		u, err := e.GetUpload(ctx, input.UploadID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Upload `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-contacts",
		Method:        http.MethodPost,
		Path:          "/uploads/{upload_id}/contacts",
		Summary:       "Add contacts to an upload",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UploadID string             `path:"upload_id"`
		Body     AddContactsRequest `json:"body"`
	}) (*struct {
		Body ContactList `json:"body"`
	}, error) {
		items, err := e.AddContacts(ctx, input.UploadID, input.Body.Contacts)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Validate {
			e.ValidateUploadAsync(ctx, input.UploadID)
		}
		return &struct {
			Body ContactList `json:"body"`
		}{Body: ContactList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-upload-contacts",
		Method:      http.MethodGet,
		Path:        "/uploads/{upload_id}/contacts",
		Summary:     "List contacts of an upload",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UploadID string `path:"upload_id"`
		Status   string `query:"status" enum:"new,ready_to_scrape,duplicate"`
		Valid    string `query:"valid" enum:"true,false"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body ContactList `json:"body"`
	}, error) {
		if _, err := e.GetUpload(ctx, input.UploadID); err != nil {
			return nil, handleError(err)
		}
		f := repo.ContactFilters{
			UploadID: input.UploadID,
			Status:   input.Status,
			Limit:    normalizeLimit(input.Limit),
		}
		if input.Valid != "" {
			v, err := strconv.ParseBool(input.Valid)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid valid filter", map[string]any{"valid": input.Valid})
			}
			f.Valid = &v
		}
		items, err := e.ListContacts(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Contact{}
		}
		return &struct {
			Body ContactList `json:"body"`
		}{Body: ContactList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-upload",
		Method:      http.MethodPost,
		Path:        "/uploads/{upload_id}/validate",
		Summary:     "Validate every contact of an upload",
		Description: "With async=true the run continues in the background and the call returns 202 at once.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UploadID string `path:"upload_id"`
		Async    bool   `query:"async"`
	}) (*struct {
		Status int
		Body   UploadValidationResponse `json:"body"`
	}, error) {
		type out = struct {
			Status int
			Body   UploadValidationResponse `json:"body"`
		}
		if input.Async {
			if _, err := e.GetUpload(ctx, input.UploadID); err != nil {
				return nil, handleError(err)
			}
			e.ValidateUploadAsync(ctx, input.UploadID)
			return &out{
				Status: http.StatusAccepted,
				Body:   UploadValidationResponse{UploadID: input.UploadID, Status: "accepted"},
			}, nil
		}
		sum, err := e.ValidateUpload(ctx, input.UploadID)
		if err != nil {
			return nil, handleError(err)
		}
		return &out{
			Status: http.StatusOK,
			Body:   UploadValidationResponse{UploadID: input.UploadID, Status: "completed", Summary: &sum},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revalidate-upload",
		Method:      http.MethodPost,
		Path:        "/uploads/{upload_id}/revalidate",
		Summary:     "Re-check the invalid contacts of an upload",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UploadID string `path:"upload_id"`
	}) (*struct {
		Body RevalidateResponse `json:"body"`
	}, error) {
		n, err := e.RevalidateInvalid(ctx, input.UploadID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RevalidateResponse `json:"body"`
		}{Body: RevalidateResponse{UploadID: input.UploadID, Revalidated: n}}, nil
	})
}

func registerContacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-contact",
		Method:      http.MethodGet,
		Path:        "/contacts/{contact_id}",
		Summary:     "Get contact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContactID string `path:"contact_id"`
	}) (*struct {
		Body domain.Contact `json:"body"`
	}, error) {
		c, err := e.GetContact(ctx, input.ContactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contact `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-contact",
		Method:      http.MethodPost,
		Path:        "/contacts/{contact_id}/validate",
		Summary:     "Validate one contact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContactID string `path:"contact_id"`
	}) (*struct {
		Body ContactValidationResponse `json:"body"`
	}, error) {
		valid, err := e.ValidateContact(ctx, input.ContactID)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.GetContact(ctx, input.ContactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContactValidationResponse `json:"body"`
		}{Body: ContactValidationResponse{ContactID: c.ID, Valid: valid, Contact: c}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-contact-website",
		Method:      http.MethodPost,
		Path:        "/contacts/{contact_id}/resolve-website",
		Summary:     "Find a website for a contact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContactID string `path:"contact_id"`
	}) (*struct {
		Body ResolutionResponse `json:"body"`
	}, error) {
		res, err := e.ResolveWebsite(ctx, input.ContactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolutionResponse `json:"body"`
		}{Body: ResolutionResponse{
			ContactID:  input.ContactID,
			Website:    res.Website,
			Source:     string(res.Source),
			Confidence: string(res.Confidence),
			Message:    res.Message,
		}}, nil
	})
}

func registerChecks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-email",
		Method:      http.MethodPost,
		Path:        "/validate/email",
		Summary:     "Validate a single email address",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EmailCheckRequest `json:"body"`
	}) (*struct {
		Body EmailCheckResponse `json:"body"`
	}, error) {
		res := e.CheckEmail(ctx, input.Body.Email)
		resp := EmailCheckResponse{
			Email:       input.Body.Email,
			Valid:       res.IsValid,
			Domain:      res.Domain,
			IsFreeEmail: res.IsFreeEmail,
			Reason:      res.Reason,
		}
		if res.MXHost != "" || res.Mailbox != smtpprobe.Indeterminate {
			resp.Mailbox = res.Mailbox.String()
			resp.MXHost = res.MXHost
		}
		return &struct {
			Body EmailCheckResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-website",
		Method:      http.MethodPost,
		Path:        "/validate/website",
		Summary:     "Check that a website answers",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body WebsiteCheckRequest `json:"body"`
	}) (*struct {
		Body WebsiteCheckResponse `json:"body"`
	}, error) {
		res := e.CheckWebsite(ctx, input.Body.URL)
		url := res.URL
		if url == "" {
			url = input.Body.URL
		}
		return &struct {
			Body WebsiteCheckResponse `json:"body"`
		}{Body: WebsiteCheckResponse{
			URL:        url,
			Valid:      res.Reachable,
			StatusCode: res.StatusCode,
			Error:      res.Error,
		}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		ClientID   string `query:"client_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"client,upload,contact"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		items, err := e.ListEvents(ctx, normalizeLimit(input.Limit), input.ClientID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: items}}, nil
	})
}
