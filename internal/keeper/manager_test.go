package keeper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeAuthServer is a scriptable token endpoint handling both
// authorization_code and refresh_token grants. Codes are single-use.
type fakeAuthServer struct {
	mu            sync.Mutex
	codes         map[string]string // code -> space-separated granted scope
	refreshStatus int               // 0 means success
	refreshScope  string
	exchangeCalls int64
	refreshCalls  int64
}

func newFakeAuthServer() *fakeAuthServer {
	return &fakeAuthServer{codes: map[string]string{}}
}

func (s *fakeAuthServer) issueCode(code, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = scope
}

func (s *fakeAuthServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if r.FormValue("grant_type") == "refresh_token" {
			atomic.AddInt64(&s.refreshCalls, 1)

			s.mu.Lock()
			status := s.refreshStatus
			scope := s.refreshScope
			s.mu.Unlock()

			if status != 0 {
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}

			resp := `{"access_token":"at-refreshed","token_type":"Bearer","expires_in":3600`
			if scope != "" {
				resp += fmt.Sprintf(`,"scope":"%s"`, scope)
			}
			resp += `}`
			fmt.Fprint(w, resp)
			return
		}

		atomic.AddInt64(&s.exchangeCalls, 1)

		code := r.FormValue("code")

		s.mu.Lock()
		scope, ok := s.codes[code]
		delete(s.codes, code)
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"code expired or already redeemed"}`)
			return
		}

		fmt.Fprintf(w, `{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600,"scope":"%s"}`, scope)
	}
}

func newTestManager(t *testing.T, auth *fakeAuthServer, opts ...ManagerOption) (*Manager, *MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(auth.handler())
	t.Cleanup(srv.Close)

	conf := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://auth.example.com/o/oauth2/auth",
			TokenURL: srv.URL + "/token",
		},
	}

	store := NewMemoryStore()
	flow := NewFlow(conf, 0, nil)
	t.Cleanup(flow.Stop)

	refresher := NewRefresher(conf, store, nil)
	refresher.retryDelay = time.Millisecond

	return NewManager(store, flow, refresher, nil, opts...), store
}

func TestManagerRegisterIdempotent(t *testing.T) {
	m, _ := newTestManager(t, newFakeAuthServer())
	ctx := context.Background()

	first, err := m.Register(ctx, "a@example.com", "work", "primary")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	again, err := m.Register(ctx, "a@example.com", "personal", "other")
	if err != nil {
		t.Fatalf("Register() repeat error = %v", err)
	}
	if again.Category != "work" || again.Seq != first.Seq {
		t.Errorf("repeat Register() = %+v, want the original record unchanged", again)
	}

	_, err = m.Register(ctx, "", "work", "")
	if err == nil {
		t.Error("Register() with empty id should fail")
	}
	if KindOf(err) == KindNotRegistered {
		t.Errorf("Register() empty-id error carries kind %q, want a plain validation error", KindOf(err))
	}
}

func TestManagerValidateUnregistered(t *testing.T) {
	m, _ := newTestManager(t, newFakeAuthServer())

	res, err := m.Validate(context.Background(), "nobody@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() of unregistered account should be invalid")
	}
	if res.Reason != ReasonNoCredential {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonNoCredential)
	}
}

func TestManagerValidateNoCredential(t *testing.T) {
	m, _ := newTestManager(t, newFakeAuthServer())
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() without credential should be invalid")
	}
	if res.Reason != ReasonNoCredential {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonNoCredential)
	}
}

func TestManagerValidateFreshCredentialNoNetwork(t *testing.T) {
	auth := newFakeAuthServer()
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-fresh",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       []string{"read", "write"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Valid {
		t.Errorf("Validate() = %+v, want valid", res)
	}
	if res.Credential == nil || !res.Credential.HasRefreshToken {
		t.Errorf("Credential summary = %+v, want refresh token flagged", res.Credential)
	}

	if n := atomic.LoadInt64(&auth.refreshCalls); n != 0 {
		t.Errorf("refresh calls = %d, want 0 (fresh credential must answer without network)", n)
	}
}

func TestManagerValidateInsufficientScope(t *testing.T) {
	auth := newFakeAuthServer()
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Expired AND underscoped: scope insufficiency must win, without a
	// refresh attempt.
	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(-time.Minute),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read", "write"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() with missing scope should be invalid")
	}
	if !strings.Contains(res.Reason, ReasonInsufficientScope) || !strings.Contains(res.Reason, "write") {
		t.Errorf("Reason = %q, want insufficient scope naming write", res.Reason)
	}
	if n := atomic.LoadInt64(&auth.refreshCalls); n != 0 {
		t.Errorf("refresh calls = %d, want 0 (underscoped grants are not worth refreshing)", n)
	}
}

func TestManagerValidateExpiryWithinSkew(t *testing.T) {
	auth := newFakeAuthServer()
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Nominally unexpired but inside the skew window, so a refresh fires.
	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(30 * time.Second),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Valid {
		t.Errorf("Validate() = %+v, want valid after refresh", res)
	}
	if n := atomic.LoadInt64(&auth.refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestManagerValidateRefreshUpdatesStoredCredential(t *testing.T) {
	auth := newFakeAuthServer()
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(-time.Minute),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Valid {
		t.Fatalf("Validate() = %+v, want valid", res)
	}

	stored, err := store.GetCredential(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if stored.AccessToken != "at-refreshed" {
		t.Errorf("stored AccessToken = %q, want at-refreshed", stored.AccessToken)
	}
	if stored.RefreshToken != "rt-1" {
		t.Errorf("stored RefreshToken = %q, want rt-1 retained", stored.RefreshToken)
	}
	if stored.Expired(ExpirySkew) {
		t.Errorf("stored credential still expired, Expiry = %v", stored.Expiry)
	}
}

func TestManagerConcurrentValidatesSingleRefresh(t *testing.T) {
	auth := newFakeAuthServer()
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(-time.Minute),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]*ValidationResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Validate(ctx, "a@example.com", []string{"read"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Validate() goroutine %d error = %v", i, errs[i])
		}
		if !results[i].Valid {
			t.Errorf("goroutine %d result = %+v, want valid", i, results[i])
		}
	}

	if got := atomic.LoadInt64(&auth.refreshCalls); got != 1 {
		t.Errorf("refresh calls = %d, want exactly 1 for concurrent validations", got)
	}
}

func TestManagerValidateRefreshRejectedDiscardsCredential(t *testing.T) {
	auth := newFakeAuthServer()
	auth.refreshStatus = http.StatusBadRequest
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-revoked",
		Expiry:       time.Now().Add(-time.Minute),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() with revoked refresh token should be invalid")
	}
	if res.Reason != ReasonReauthRequired {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonReauthRequired)
	}

	if _, err := store.GetCredential(ctx, "a@example.com"); err == nil {
		t.Error("dead credential should have been discarded")
	}

	// The next validation reports the clean no-credential state.
	res, err = m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() second call error = %v", err)
	}
	if res.Reason != ReasonNoCredential {
		t.Errorf("second Reason = %q, want %q", res.Reason, ReasonNoCredential)
	}
}

func TestManagerValidateTransientRefreshKeepsCredential(t *testing.T) {
	auth := newFakeAuthServer()
	auth.refreshStatus = http.StatusServiceUnavailable
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(-time.Minute),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	_, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err == nil {
		t.Fatal("Validate() during outage should fail")
	}
	if KindOf(err) != KindTransientRefresh {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindTransientRefresh)
	}

	if _, err := store.GetCredential(ctx, "a@example.com"); err != nil {
		t.Errorf("GetCredential() error = %v, credential must survive a transient outage", err)
	}
}

func TestManagerValidateExpiredWithoutRefreshToken(t *testing.T) {
	m, store := newTestManager(t, newFakeAuthServer())
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken: "at-old",
		Expiry:      time.Now().Add(-time.Minute),
		Scopes:      []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"read"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() of expired credential without refresh token should be invalid")
	}
	if res.Reason != ReasonReauthRequired {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonReauthRequired)
	}
}

func TestManagerAuthorizeRequiresRegistration(t *testing.T) {
	m, _ := newTestManager(t, newFakeAuthServer())

	_, err := m.Authorize(context.Background(), "nobody@example.com", []string{"read"})
	if err == nil {
		t.Fatal("Authorize() of unregistered account should fail")
	}
	if KindOf(err) != KindNotRegistered {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindNotRegistered)
	}
}

func TestManagerAuthorizeUnionsGrantedScopes(t *testing.T) {
	m, store := newTestManager(t, newFakeAuthServer())
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred := &Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       []string{"read"},
	}
	if err := store.PutCredential(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	rawURL, err := m.Authorize(ctx, "a@example.com", []string{"write"})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("Authorize() returned unparseable URL: %v", err)
	}

	scope := parsed.Query().Get("scope")
	if !strings.Contains(scope, "read") || !strings.Contains(scope, "write") {
		t.Errorf("scope = %q, want union of granted and requested", scope)
	}
}

func TestManagerCompleteAuthorization(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read write")
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	summary, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1")
	if err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}
	if !reflect.DeepEqual(summary.Scopes, []string{"read", "write"}) {
		t.Errorf("Scopes = %v, want [read write]", summary.Scopes)
	}
	if !summary.HasRefreshToken {
		t.Error("summary should flag the refresh token")
	}

	stored, err := store.GetCredential(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if stored.AccessToken != "at-1" || stored.RefreshToken != "rt-1" {
		t.Errorf("stored credential = %+v, want exchanged tokens", stored)
	}
}

func TestManagerCompleteAuthorizationUnregistered(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	m, _ := newTestManager(t, auth)

	_, err := m.CompleteAuthorization(context.Background(), "nobody@example.com", "code-1")
	if err == nil {
		t.Fatal("CompleteAuthorization() of unregistered account should fail")
	}
	if KindOf(err) != KindNotRegistered {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindNotRegistered)
	}
}

func TestManagerCompleteAuthorizationReusedCode(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	m, _ := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1"); err != nil {
		t.Fatalf("CompleteAuthorization() first use error = %v", err)
	}

	_, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1")
	if err == nil {
		t.Fatal("CompleteAuthorization() with reused code should fail")
	}
	if KindOf(err) != KindExchangeError {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindExchangeError)
	}
}

func TestManagerCompleteAuthorizationIdentityMismatch(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")

	verifier := func(ctx context.Context, cred *Credential) (string, error) {
		return "someoneelse@example.com", nil
	}

	m, store := newTestManager(t, auth, WithIdentityVerifier(verifier))
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1")
	if err == nil {
		t.Fatal("CompleteAuthorization() with mismatched identity should fail")
	}
	if KindOf(err) != KindExchangeError {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindExchangeError)
	}

	if _, err := store.GetCredential(ctx, "a@example.com"); err == nil {
		t.Error("mismatched grant must not be stored")
	}
}

func TestManagerRevokeCascade(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	m, store := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "work", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1"); err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}

	if err := m.Revoke(ctx, "a@example.com"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := store.GetCredential(ctx, "a@example.com"); err == nil {
		t.Error("credential should be gone after revoke")
	}

	infos, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() after revoke = %+v, want empty", infos)
	}

	if err := m.Revoke(ctx, "a@example.com"); err != nil {
		t.Errorf("Revoke() repeat error = %v, want nil", err)
	}

	res, err := m.Validate(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("Validate() after revoke error = %v", err)
	}
	if res.Valid {
		t.Error("Validate() after revoke should be invalid")
	}
	if res.Reason != ReasonNoCredential {
		t.Errorf("Reason after revoke = %q, want %q", res.Reason, ReasonNoCredential)
	}
}

func TestManagerList(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	m, _ := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "authorized@example.com", "work", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := m.Register(ctx, "bare@example.com", "personal", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := m.CompleteAuthorization(ctx, "authorized@example.com", "code-1"); err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}

	infos, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(infos))
	}

	if infos[0].Account.ID != "authorized@example.com" || infos[1].Account.ID != "bare@example.com" {
		t.Errorf("List() order = [%s %s], want insertion order", infos[0].Account.ID, infos[1].Account.ID)
	}
	if infos[0].Credential == nil {
		t.Error("authorized account should carry a credential summary")
	}
	if infos[1].Credential != nil {
		t.Error("never-authorized account should have nil credential summary")
	}
}

// TestManagerScopeAccumulation walks the grant-widening scenario: an
// account authorized for read gains write without losing read.
func TestManagerScopeAccumulation(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	m, _ := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1"); err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}

	res, err := m.Validate(ctx, "a@example.com", []string{"write"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Fatal("Validate(write) against a read-only grant should be invalid")
	}

	rawURL, err := m.Authorize(ctx, "a@example.com", []string{"write"})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	parsed, _ := url.Parse(rawURL)
	scope := parsed.Query().Get("scope")
	if !strings.Contains(scope, "read") || !strings.Contains(scope, "write") {
		t.Fatalf("widening consent URL scope = %q, want both read and write", scope)
	}

	auth.issueCode("code-2", "read write")
	if _, err := m.CompleteAuthorization(ctx, "a@example.com", "code-2"); err != nil {
		t.Fatalf("CompleteAuthorization() widening error = %v", err)
	}

	for _, required := range [][]string{{"read"}, {"write"}, {"read", "write"}} {
		res, err := m.Validate(ctx, "a@example.com", required)
		if err != nil {
			t.Fatalf("Validate(%v) error = %v", required, err)
		}
		if !res.Valid {
			t.Errorf("Validate(%v) = %+v, want valid after widening", required, res)
		}
	}
}

// recordingMetrics counts lifecycle outcomes for assertion.
type recordingMetrics struct {
	mu          sync.Mutex
	validations map[string]int
	refreshes   map[string]int
	exchanges   map[string]int
	consentURLs int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		validations: map[string]int{},
		refreshes:   map[string]int{},
		exchanges:   map[string]int{},
	}
}

func (r *recordingMetrics) RecordValidation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validations[result]++
}

func (r *recordingMetrics) RecordRefresh(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes[result]++
}

func (r *recordingMetrics) RecordExchange(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[result]++
}

func (r *recordingMetrics) RecordConsentURL() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consentURLs++
}

func TestManagerRecordsMetrics(t *testing.T) {
	auth := newFakeAuthServer()
	auth.issueCode("code-1", "read")
	metrics := newRecordingMetrics()
	m, _ := newTestManager(t, auth, WithMetrics(metrics))
	ctx := context.Background()

	if _, err := m.Register(ctx, "a@example.com", "", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := m.Authorize(ctx, "a@example.com", []string{"read"}); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if _, err := m.CompleteAuthorization(ctx, "a@example.com", "code-1"); err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}
	if _, err := m.Validate(ctx, "a@example.com", []string{"read"}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	if metrics.consentURLs != 1 {
		t.Errorf("consent URL count = %d, want 1", metrics.consentURLs)
	}
	if metrics.exchanges["success"] != 1 {
		t.Errorf("exchange successes = %d, want 1", metrics.exchanges["success"])
	}
	if metrics.validations["valid"] != 1 {
		t.Errorf("valid validations = %d, want 1", metrics.validations["valid"])
	}
}
