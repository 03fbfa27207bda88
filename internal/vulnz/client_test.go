package vulnz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/cache"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"go.uber.org/zap/zaptest"
)

const testBaseURL = "https://api.vulnz.test"

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// fakeAPI serves requests in-process so the client can keep its https and
// public-host requirements.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func (f *fakeAPI) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	f.mu.Unlock()

	rec := httptest.NewRecorder()
	f.handler(rec, r)
	return rec.Result(), nil
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method)
	}
	return out
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestClient(t *testing.T, rt http.RoundTripper, ttl time.Duration) (*Client, *cache.WebsiteCache) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	wc := cache.NewWebsiteCache(cache.NewMemoryStore(), ttl, logger)
	c := NewClient(Config{
		BaseURL:    testBaseURL + "/",
		APIKey:     "abc123",
		HTTPClient: &http.Client{Transport: rt},
		Cache:      wc,
		SortOrder:  website.SortByTitle,
		Logger:     logger,
	})
	return c, wc
}

func equalMethods(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func sampleUpdate() *website.Update {
	return &website.Update{
		Title: "Example",
		IsSSL: true,
		Meta: map[string]string{
			website.MetaAdminURL:  "https://example.com/wp-login.php",
			website.MetaWPVersion: "6.6.1",
		},
		Plugins: []website.InstalledExtension{{Slug: "akismet", Version: "5.3"}},
	}
}

func TestUpsertExistingWebsite(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}}
	c, _ := newTestClient(t, api, time.Minute)
	ctx := context.Background()

	if !c.CreateOrUpdateWebsite(ctx, "example.com", sampleUpdate()) {
		t.Fatal("expected first upsert to succeed")
	}
	if !c.CreateOrUpdateWebsite(ctx, "example.com", sampleUpdate()) {
		t.Fatal("expected second upsert to succeed")
	}

	if got := api.methods(); !equalMethods(got, "GET", "PUT", "GET", "PUT") {
		t.Fatalf("unexpected request sequence %v", got)
	}

	for _, r := range api.requests {
		if r.Path != "/api/websites/example.com" {
			t.Fatalf("unexpected path %q", r.Path)
		}
		if r.Header.Get("X-Api-Key") != "abc123" {
			t.Fatalf("missing api key header on %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json; charset=utf-8" {
			t.Fatalf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
	}

	var put map[string]any
	if err := json.Unmarshal([]byte(api.requests[1].Body), &put); err != nil {
		t.Fatalf("PUT body is not JSON: %v", err)
	}
	if put["title"] != "Example" || put["is_ssl"] != true {
		t.Fatalf("unexpected PUT body %v", put)
	}
	if _, ok := put["wordpress-plugins"]; !ok {
		t.Fatalf("PUT body missing plugin list: %v", put)
	}
}

func TestUpsertCreatesMissingWebsite(t *testing.T) {
	for _, createStatus := range []int{http.StatusOK, http.StatusCreated} {
		api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPost:
				w.WriteHeader(createStatus)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}}
		c, _ := newTestClient(t, api, time.Minute)

		if err := c.UpsertWebsite(context.Background(), "example.com", sampleUpdate()); err != nil {
			t.Fatalf("create status %d: unexpected error %v", createStatus, err)
		}
		if got := api.methods(); !equalMethods(got, "GET", "POST", "PUT") {
			t.Fatalf("unexpected request sequence %v", got)
		}

		post := api.requests[1]
		if post.Path != "/api/websites" {
			t.Fatalf("unexpected POST path %q", post.Path)
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(post.Body), &body); err != nil {
			t.Fatalf("POST body is not JSON: %v", err)
		}
		if body["domain"] != "example.com" || body["title"] != "Example" {
			t.Fatalf("POST body must carry domain and update fields: %v", body)
		}
	}
}

func TestUpsertCreateFailureSkipsUpdate(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}}
	c, _ := newTestClient(t, api, time.Minute)

	err := c.UpsertWebsite(context.Background(), "example.com", sampleUpdate())
	if !errors.Is(err, sharedErrors.ErrUnexpectedStatus) {
		t.Fatalf("expected unexpected status error, got %v", err)
	}
	var statusErr *sharedErrors.StatusError
	if !errors.As(err, &statusErr) || statusErr.Method != http.MethodPost || statusErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected POST status error, got %v", err)
	}
	if got := api.methods(); !equalMethods(got, "GET", "POST") {
		t.Fatalf("unexpected request sequence %v", got)
	}
}

func TestUpsertUnexpectedLookupStatus(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusInternalServerError, http.StatusNoContent} {
		api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}}
		c, _ := newTestClient(t, api, time.Minute)

		if c.CreateOrUpdateWebsite(context.Background(), "example.com", sampleUpdate()) {
			t.Fatalf("status %d: expected failure", status)
		}
		if got := api.methods(); !equalMethods(got, "GET") {
			t.Fatalf("status %d: expected only the lookup, got %v", status, got)
		}
	}
}

func TestUpsertUpdateRequiresExactly200(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}}
	c, _ := newTestClient(t, api, time.Minute)

	if c.CreateOrUpdateWebsite(context.Background(), "example.com", sampleUpdate()) {
		t.Fatal("expected PUT 201 to be treated as failure")
	}
}

func TestUpsertInvalidDomainMakesNoRequests(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}}
	c, _ := newTestClient(t, api, time.Minute)

	for _, domain := range []string{"", "not a domain", "-bad.example", strings.Repeat("a", 64) + ".com"} {
		err := c.UpsertWebsite(context.Background(), domain, sampleUpdate())
		if !errors.Is(err, sharedErrors.ErrInvalidDomain) {
			t.Fatalf("domain %q: expected ErrInvalidDomain, got %v", domain, err)
		}
	}
	if api.count() != 0 {
		t.Fatalf("expected no requests, got %d", api.count())
	}
}

func TestUnavailableClientMakesNoRequests(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}}
	c := NewClient(Config{
		BaseURL:    "http://api.vulnz.test",
		APIKey:     "abc123",
		HTTPClient: &http.Client{Transport: api},
	})

	if c.IsAvailable() {
		t.Fatal("http base url must not be available")
	}
	if err := c.UpsertWebsite(context.Background(), "example.com", sampleUpdate()); !errors.Is(err, sharedErrors.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := c.FetchWebsite(context.Background(), "example.com"); !errors.Is(err, sharedErrors.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if api.count() != 0 {
		t.Fatalf("expected no requests, got %d", api.count())
	}
}

func TestTransportFailure(t *testing.T) {
	c, _ := newTestClient(t, failingTransport{}, time.Minute)

	if err := c.UpsertWebsite(context.Background(), "example.com", sampleUpdate()); !errors.Is(err, sharedErrors.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if c.GetWebsite(context.Background(), "example.com") != nil {
		t.Fatal("expected nil record on transport failure")
	}
}

func TestUpsertInvalidatesCache(t *testing.T) {
	statuses := map[string]int{http.MethodGet: http.StatusOK, http.MethodPut: http.StatusOK}
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[r.Method])
	}}
	c, wc := newTestClient(t, api, time.Minute)
	ctx := context.Background()

	wc.Put(ctx, "example.com", &website.Record{Domain: "example.com"}, time.Minute)
	if err := c.UpsertWebsite(ctx, "example.com", sampleUpdate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := wc.Get(ctx, "example.com"); ok {
		t.Fatal("expected cache entry to be dropped after a successful upsert")
	}

	statuses[http.MethodGet] = http.StatusInternalServerError
	wc.Put(ctx, "example.com", &website.Record{Domain: "example.com"}, time.Minute)
	if err := c.UpsertWebsite(ctx, "example.com", sampleUpdate()); err == nil {
		t.Fatal("expected failure")
	}
	if _, ok := wc.Get(ctx, "example.com"); ok {
		t.Fatal("expected cache entry to be dropped after a failed upsert")
	}
}

const websiteBody = `{
  "domain": "example.com",
  "title": "Example",
  "is_ssl": true,
  "wordpress-plugins": [
    {"slug": "zeta", "title": "zeta tools", "version": "1.0", "has_vulnerabilities": false},
    {"slug": "beta", "title": "Beta", "version": "2.0", "has_vulnerabilities": true, "vulnerabilities": ["https://example.com/CVE-1"]},
    {"slug": "alpha", "title": "Alpha", "version": "3.0", "has_vulnerabilities": false},
    {"slug": "omega", "title": "omega", "version": "4.0", "has_vulnerabilities": true}
  ]
}`

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func TestFetchWebsiteSortsAndCaches(t *testing.T) {
	api := &fakeAPI{handler: jsonHandler(websiteBody)}
	c, wc := newTestClient(t, api, time.Minute)
	ctx := context.Background()

	rec, err := c.FetchWebsite(ctx, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []string
	for _, e := range rec.Extensions {
		order = append(order, e.Slug)
	}
	if got := strings.Join(order, ","); got != "beta,omega,alpha,zeta" {
		t.Fatalf("unexpected order %s", got)
	}

	if _, ok := wc.Get(ctx, "example.com"); !ok {
		t.Fatal("expected record to be cached")
	}

	again, err := c.FetchWebsite(ctx, "example.com")
	if err != nil || again.Domain != "example.com" {
		t.Fatalf("unexpected cached fetch: %+v, %v", again, err)
	}
	if api.count() != 1 {
		t.Fatalf("expected second fetch to be served from cache, got %d requests", api.count())
	}
}

func TestFetchWebsiteZeroTTLAlwaysFetches(t *testing.T) {
	api := &fakeAPI{handler: jsonHandler(websiteBody)}
	c, _ := newTestClient(t, api, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if c.GetWebsite(ctx, "example.com") == nil {
			t.Fatalf("fetch %d: expected record", i)
		}
	}
	if api.count() != 2 {
		t.Fatalf("expected two live fetches, got %d", api.count())
	}
}

func TestFetchWebsiteWithoutPluginList(t *testing.T) {
	api := &fakeAPI{handler: jsonHandler(`{"domain":"example.com"}`)}
	c, _ := newTestClient(t, api, time.Minute)

	rec, err := c.FetchWebsite(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.HasExtensions() {
		t.Fatal("expected no plugin data")
	}
}

func TestFetchWebsiteFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, sharedErrors.ErrUnexpectedStatus},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }, sharedErrors.ErrUnexpectedStatus},
		{"invalid json", jsonHandler(`{"domain":`), sharedErrors.ErrMalformedResponse},
		{"json array", jsonHandler(`[1,2,3]`), sharedErrors.ErrMalformedResponse},
		{"json null", jsonHandler(`null`), sharedErrors.ErrMalformedResponse},
		{"json string", jsonHandler(`"example.com"`), sharedErrors.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{handler: tt.handler}
			c, wc := newTestClient(t, api, time.Minute)

			_, err := c.FetchWebsite(context.Background(), "example.com")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if _, ok := wc.Get(context.Background(), "example.com"); ok {
				t.Fatal("failures must not be cached")
			}
		})
	}
}

func TestFetchWebsiteAfterUpsertGoesLive(t *testing.T) {
	api := &fakeAPI{handler: jsonHandler(websiteBody)}
	c, _ := newTestClient(t, api, time.Minute)
	ctx := context.Background()

	if c.GetWebsite(ctx, "example.com") == nil {
		t.Fatal("expected record")
	}
	if !c.CreateOrUpdateWebsite(ctx, "example.com", sampleUpdate()) {
		t.Fatal("expected upsert to succeed")
	}
	if c.GetWebsite(ctx, "example.com") == nil {
		t.Fatal("expected record")
	}

	if got := api.methods(); !equalMethods(got, "GET", "GET", "PUT", "GET") {
		t.Fatalf("expected a live fetch after upsert, got %v", got)
	}
}

func TestBaseURLTrimsTrailingSlash(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://api.vulnz.net///", APIKey: "k"})
	if c.BaseURL() != "https://api.vulnz.net" {
		t.Fatalf("unexpected base url %q", c.BaseURL())
	}
}

const looseWebsiteBody = `{
  "id": 42,
  "owner": "bob",
  "domain": "example.com",
  "title": "Example",
  "is_ssl": 1,
  "wordpress-plugins": [
    {"slug": "akismet", "title": "Akismet", "version": 5.3, "has_vulnerabilities": 0},
    {"slug": "forms", "title": "Forms", "version": "1.0", "has_vulnerabilities": "1",
     "vulnerabilities": [{"id": "CVE-2024-1", "url": "https://vulnz.test/CVE-2024-1", "severity": "high"}]}
  ]
}`

func TestFetchWebsiteAcceptsLooselyTypedObject(t *testing.T) {
	api := &fakeAPI{handler: jsonHandler(looseWebsiteBody)}
	c, wc := newTestClient(t, api, time.Minute)
	ctx := context.Background()

	rec, err := c.FetchWebsite(ctx, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsSSL {
		t.Fatal("expected is_ssl 1 to decode as true")
	}
	if len(rec.Extensions) != 2 || rec.Extensions[0].Slug != "forms" {
		t.Fatalf("expected vulnerable plugin first, got %+v", rec.Extensions)
	}
	forms, akismet := rec.Extensions[0], rec.Extensions[1]
	if !forms.HasVulnerabilities || len(forms.Vulnerabilities) != 1 || forms.Vulnerabilities[0].Link != "https://vulnz.test/CVE-2024-1" {
		t.Fatalf("unexpected vulnerability data: %+v", forms)
	}
	if akismet.HasVulnerabilities || akismet.Version != "5.3" {
		t.Fatalf("unexpected plugin data: %+v", akismet)
	}

	cached, ok := wc.Get(ctx, "example.com")
	if !ok {
		t.Fatal("expected record to be cached")
	}
	data, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var members map[string]any
	if err := json.Unmarshal(data, &members); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if members["id"] != float64(42) || members["owner"] != "bob" {
		t.Fatalf("expected unknown members to survive caching, got %s", data)
	}
	if !strings.Contains(string(data), `"severity":"high"`) {
		t.Fatalf("expected vulnerability object kept whole, got %s", data)
	}
}
