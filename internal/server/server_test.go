package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"leadready/internal/config"
	"leadready/internal/db"
	"leadready/internal/domain"
	"leadready/internal/emailcheck"
	"leadready/internal/engine"
	"leadready/internal/events"
	"leadready/internal/migrate"
	"leadready/internal/repo"
	"leadready/internal/smtpprobe"
	"leadready/internal/webprobe"
)

type stubEmail map[string]emailcheck.Result

func (s stubEmail) Validate(_ context.Context, address string) emailcheck.Result {
	if r, ok := s[address]; ok {
		return r
	}
	return emailcheck.Result{Reason: "no MX records"}
}

type stubWebsite map[string]bool

func (s stubWebsite) Probe(_ context.Context, raw string) webprobe.Result {
	n, err := webprobe.Normalize(raw)
	if err != nil {
		return webprobe.Result{URL: raw, Error: err.Error()}
	}
	if s[n] {
		return webprobe.Result{URL: n, Reachable: true, StatusCode: 200}
	}
	return webprobe.Result{URL: n, Error: "dial tcp: no such host"}
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, in webprobe.Input) webprobe.Resolution {
	return webprobe.Resolution{Website: "https://bakery.com", Source: webprobe.SourceBusinessSearch, Confidence: webprobe.ConfidenceMedium}
}

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Email = stubEmail{
		"info@techcorp.com": {IsValid: true, Domain: "techcorp.com", Reason: "mailbox confirmed", Mailbox: smtpprobe.Exists, MXHost: "mx1.techcorp.com"},
		"owner@gmail.com":   {IsValid: true, Domain: "gmail.com", IsFreeEmail: true, Reason: "free-mail provider with MX records"},
	}
	e.Website = stubWebsite{"https://techcorp.com": true}
	e.Resolver = stubResolver{}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
}

// seedUpload creates a client and an upload holding the given contacts.
func seedUpload(t *testing.T, srv *testServer, contacts ...engine.ContactInput) (domain.Upload, []domain.Contact) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": "Acme Agency"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create client status %d: %s", res.StatusCode, string(data))
	}
	var c domain.Client
	decode(t, data, &c)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads", map[string]any{"client_id": c.ID, "filename": "leads.csv"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create upload status %d: %s", res.StatusCode, string(data))
	}
	var u domain.Upload
	decode(t, data, &u)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads/"+u.ID+"/contacts", map[string]any{"contacts": contacts})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add contacts status %d: %s", res.StatusCode, string(data))
	}
	var list ContactList
	decode(t, data, &list)
	return u, list.Items
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var h healthStatus
	decode(t, data, &h)
	if h.Status != "ok" || h.SchemaVersion < 1 {
		t.Fatalf("health = %+v", h)
	}
}

func TestValidateUploadFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	u, contacts := seedUpload(t, srv,
		engine.ContactInput{BusinessName: "Tech Corp", Email: "info@techcorp.com", Website: "https://techcorp.com"},
		engine.ContactInput{BusinessName: "X", Email: "bad@nowhere.invalid", Website: "https://gone.example"},
	)
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads/"+u.ID+"/validate", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var out UploadValidationResponse
	decode(t, data, &out)
	if out.Status != "completed" || out.Summary == nil {
		t.Fatalf("unexpected response: %s", string(data))
	}
	if *out.Summary != (engine.UploadSummary{Total: 2, Validated: 2, Valid: 1, Invalid: 1}) {
		t.Fatalf("summary = %+v", *out.Summary)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/uploads/"+u.ID+"/contacts?valid=true", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list ContactList
	decode(t, data, &list)
	if len(list.Items) != 1 || list.Items[0].ScrapeMethod != domain.ScrapeDirectURL || list.Items[0].Status != domain.StatusReadyToScrape {
		t.Fatalf("valid contacts = %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/contacts/"+contacts[1].ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get contact status %d: %s", res.StatusCode, string(data))
	}
	var bad domain.Contact
	decode(t, data, &bad)
	if bad.Valid || bad.ScrapeMethod != domain.ScrapeNone || bad.ScrapePriority != nil {
		t.Fatalf("invalid contact = %+v", bad)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/uploads/"+u.ID, nil)
	var upload domain.Upload
	decode(t, data, &upload)
	if res.StatusCode != http.StatusOK || upload.Status != domain.UploadValidated || upload.ValidCount != 1 || upload.InvalidCount != 1 {
		t.Fatalf("upload = %+v", upload)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads/"+u.ID+"/revalidate", nil)
	var re RevalidateResponse
	decode(t, data, &re)
	if res.StatusCode != http.StatusOK || re.Revalidated != 1 {
		t.Fatalf("revalidate status %d: %s", res.StatusCode, string(data))
	}
}

func TestValidateUploadAsync(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	u, _ := seedUpload(t, srv, engine.ContactInput{BusinessName: "Tech Corp", Website: "techcorp.com"})

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads/"+u.ID+"/validate?async=true", nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("async validate status %d: %s", res.StatusCode, string(data))
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/uploads/"+u.ID, nil)
		var upload domain.Upload
		decode(t, data, &upload)
		if upload.Status == domain.UploadValidated {
			if upload.ValidCount != 1 {
				t.Fatalf("upload = %+v", upload)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("upload never finished validating: %+v", upload)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSingleContactEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, contacts := seedUpload(t, srv, engine.ContactInput{BusinessName: "Corner Bakery", Email: "owner@gmail.com", City: "Austin"})
	id := contacts[0].ID

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/contacts/"+id+"/validate", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var v ContactValidationResponse
	decode(t, data, &v)
	if !v.Valid || v.Contact.ScrapeMethod != domain.ScrapeBusinessSearch || !v.Contact.IsFreeEmail {
		t.Fatalf("validation = %+v", v)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/contacts/"+id+"/resolve-website", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, string(data))
	}
	var r ResolutionResponse
	decode(t, data, &r)
	if r.Website != "https://bakery.com" || r.Source != "business_search" || r.Confidence != "medium" {
		t.Fatalf("resolution = %+v", r)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/contacts/"+id, nil)
	var c domain.Contact
	decode(t, data, &c)
	if c.ResolvedWebsite != "https://bakery.com" || c.WebsiteSource != "business_search" {
		t.Fatalf("resolution not stored: %+v", c)
	}
}

func TestCheckEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/validate/email", map[string]any{"email": "info@techcorp.com"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("email status %d: %s", res.StatusCode, string(data))
	}
	var em EmailCheckResponse
	decode(t, data, &em)
	if !em.Valid || em.Mailbox != "exists" || em.MXHost != "mx1.techcorp.com" {
		t.Fatalf("email = %+v", em)
	}

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/validate/email", map[string]any{"email": "x@nowhere.invalid"})
	var unknown EmailCheckResponse
	decode(t, data, &unknown)
	if unknown.Valid || unknown.Mailbox != "" || unknown.MXHost != "" || unknown.Domain != "" {
		t.Fatalf("email = %+v", unknown)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/validate/website", map[string]any{"url": "TechCorp.com/"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("website status %d: %s", res.StatusCode, string(data))
	}
	var web WebsiteCheckResponse
	decode(t, data, &web)
	if !web.Valid || web.URL != "https://techcorp.com" || web.StatusCode != 200 {
		t.Fatalf("website = %+v", web)
	}
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/contacts/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	decode(t, data, &env)
	if env.Error.Code != "not_found" {
		t.Fatalf("error envelope = %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads", map[string]any{"client_id": "nope"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("upload for unknown client: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": ""})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty client name: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": "   "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank client name: %d %s", res.StatusCode, string(data))
	}
	var blank struct {
		Error apiErrorBody `json:"error"`
	}
	decode(t, data, &blank)
	if blank.Error.Code != "invalid_input" || blank.Error.Details["field"] != "name" {
		t.Fatalf("blank name envelope = %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/uploads/missing/validate?async=true", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("async validate of missing upload: %d %s", res.StatusCode, string(data))
	}
}

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("load upload: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{engine.InputError{Field: "contacts", Reason: "at least one contact is required"}, http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("validate: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		got, ok := handleError(c.err).(*apiError)
		if !ok || got.GetStatus() != c.status || got.Body.Code != c.code {
			t.Fatalf("%v mapped to %+v", c.err, got)
		}
	}
	if handleError(nil) != nil {
		t.Fatalf("nil error should map to nil")
	}
}

func TestDocsAndOpenAPI(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v0/openapi.json") {
		t.Fatalf("docs page: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Responses map[string]struct {
				Content map[string]struct {
					Schema struct {
						Ref string `json:"$ref"`
					} `json:"schema"`
				} `json:"content"`
			} `json:"responses"`
		} `json:"paths"`
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	decode(t, data, &doc)
	op, ok := doc.Paths["/v0/uploads/{upload_id}/validate"]["post"]
	if !ok {
		t.Fatalf("validate operation missing from document")
	}
	ref := op.Responses["default"].Content["application/json"].Schema.Ref
	if ref != "#/components/schemas/ApiError" {
		t.Fatalf("default response ref = %q", ref)
	}
	if _, ok := doc.Components.Schemas["ApiError"]; !ok {
		t.Fatalf("error envelope schema not published")
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	_, contacts := seedUpload(t, srv, engine.ContactInput{BusinessName: "Tech Corp"})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?entity_kind=contact&entity_id="+contacts[0].ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var list EventList
	decode(t, data, &list)
	if len(list.Items) != 1 || list.Items[0].Type != events.ContactCreated {
		t.Fatalf("events = %+v", list.Items)
	}
}

type hookSink struct {
	mu      sync.Mutex
	types   []string
	headers []http.Header
}

func (h *hookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evt webhookEvent
	_ = json.NewDecoder(r.Body).Decode(&evt)
	h.mu.Lock()
	h.types = append(h.types, evt.Type)
	h.headers = append(h.headers, r.Header.Clone())
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestWebhookDispatcherForwardsNewEvents(t *testing.T) {
	srv := newTestServer(t)
	sink := &hookSink{}
	hook := httptest.NewServer(sink)
	defer hook.Close()

	ctx := context.Background()
	if _, err := srv.Engine.CreateClient(ctx, "Before Hook"); err != nil {
		t.Fatalf("create client: %v", err)
	}
	e := srv.Engine
	cfg := *e.Config
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{events.ClientCreated}, Secret: "s3cret"}}
	e.Config = &cfg
	d := NewWebhookDispatcher(e, nil)
	if d == nil {
		t.Fatalf("expected a dispatcher")
	}
	d.dispatchAll(ctx)

	c, err := e.CreateClient(ctx, "After Hook")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := e.CreateUpload(ctx, c.ID, "skip.csv"); err != nil {
		t.Fatalf("create upload: %v", err)
	}
	d.dispatchAll(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.types) != 1 || sink.types[0] != events.ClientCreated {
		t.Fatalf("delivered = %v", sink.types)
	}
	if sink.headers[0].Get("X-Leadready-Secret") != "s3cret" || sink.headers[0].Get("X-Leadready-Client") != c.ID {
		t.Fatalf("headers = %v", sink.headers[0])
	}
}

func TestWebhookDispatcherDisabled(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: "https://hooks.example.com", Enabled: &off}}
	if d := NewWebhookDispatcher(engine.Engine{Config: cfg}, nil); d != nil {
		t.Fatalf("expected nil dispatcher when every hook is disabled")
	}
}
