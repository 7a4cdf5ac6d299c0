package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoclient/internal/domain"
	"videoclient/internal/session"
)

type recordedCall struct {
	method string
	path   string
	header http.Header
	body   string
}

type responseStub struct {
	status int
	body   string
}

// scriptedTransport answers each path from a queue of stubs; the last stub of
// a queue keeps answering once the queue is drained.
type scriptedTransport struct {
	mu      sync.Mutex
	scripts map[string][]responseStub
	calls   []recordedCall
	err     error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{scripts: map[string][]responseStub{}}
}

func (s *scriptedTransport) push(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = append(s.scripts[path], responseStub{status: status, body: body})
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recordedCall{
		method: req.Method,
		path:   req.URL.Path,
		header: req.Header.Clone(),
		body:   string(body),
	})
	if s.err != nil {
		return nil, s.err
	}
	queue := s.scripts[req.URL.Path]
	if len(queue) == 0 {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("not found")),
			Request:    req,
		}, nil
	}
	stub := queue[0]
	if len(queue) > 1 {
		s.scripts[req.URL.Path] = queue[1:]
	}
	return &http.Response{
		StatusCode: stub.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(stub.body)),
		Request:    req,
	}, nil
}

func (s *scriptedTransport) recorded() []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedCall(nil), s.calls...)
}

func (s *scriptedTransport) paths() []string {
	var out []string
	for _, c := range s.recorded() {
		out = append(out, c.path)
	}
	return out
}

const (
	okProfile    = `{"code":0,"msg":"success","data":{"userId":7,"username":"neo"}}`
	unauthorized = `{"code":401,"msg":"token expired","data":null}`
	rotatedPair  = `{"code":0,"msg":"success","data":{"token":"access-2","refreshToken":"refresh-2"}}`
)

func signedIn() domain.Credentials {
	return domain.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Profile:      domain.Profile{UserID: 7, Username: "neo", Roles: []string{"user"}},
	}
}

type fixture struct {
	client    *Client
	transport *scriptedTransport
	store     *session.Memory
	expired   int
}

func newFixture(t *testing.T, creds *domain.Credentials) *fixture {
	t.Helper()
	f := &fixture{transport: newScriptedTransport(), store: session.NewMemory()}
	if creds != nil {
		require.NoError(t, f.store.Set(context.Background(), *creds))
	}
	client, err := NewClient(Options{
		BaseURL:          "https://video.example.com/api/",
		Store:            f.store,
		HTTPClient:       &http.Client{Transport: f.transport},
		OnSessionExpired: func() { f.expired++ },
	})
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *fixture) session(t *testing.T) *domain.Credentials {
	t.Helper()
	creds, err := f.store.Get(context.Background())
	require.NoError(t, err)
	return creds
}

func TestNewClientRequiresStore(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}

func TestExecuteAttachesSessionHeaders(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)
	f.transport.push("/api/user/getUserInfo", http.StatusOK, okProfile)

	res, err := f.client.Execute(context.Background(), Request{
		Path:   PathUserInfo,
		Header: http.Header{"Content-Type": []string{"text/plain"}, "X-Trace": []string{"abc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, domain.CodeOK, res.Envelope.Code)

	calls := f.transport.recorded()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, []string{"Bearer access-1"}, call.header.Values("Authorization"))
	assert.Equal(t, DefaultAppID, call.header.Get(HeaderAppID))
	assert.NotEmpty(t, call.header.Get(HeaderRequestID))
	assert.Equal(t, "text/plain", call.header.Get("Content-Type"))
	assert.Equal(t, "abc", call.header.Get("X-Trace"))
	assert.Zero(t, f.expired)
}

func TestExecuteAnonymousOmitsAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.push("/api/user/login", http.StatusOK, `{"code":-1,"msg":"invalid username or password","data":null}`)

	res, err := f.client.Execute(context.Background(), Request{Method: http.MethodPost, Path: PathLogin, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, -1, res.Envelope.Code)

	calls := f.transport.recorded()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].header.Values("Authorization"))
	assert.Equal(t, "application/json", calls[0].header.Get("Content-Type"))
}

func TestExecuteRefreshesAndRetriesOnce(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)
	f.transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)
	f.transport.push("/api/user/getUserInfo", http.StatusOK, okProfile)
	f.transport.push("/api/user/refreshToken", http.StatusOK, rotatedPair)

	res, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshedRetry, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)

	calls := f.transport.recorded()
	require.Equal(t, []string{"/api/user/getUserInfo", "/api/user/refreshToken", "/api/user/getUserInfo"}, f.transport.paths())
	assert.Equal(t, "Bearer access-1", calls[0].header.Get("Authorization"))
	assert.JSONEq(t, `{"refresh_token":"refresh-1"}`, calls[1].body)
	assert.Equal(t, http.MethodPost, calls[1].method)
	assert.Equal(t, []string{"Bearer access-2"}, calls[2].header.Values("Authorization"))

	stored := f.session(t)
	require.NotNil(t, stored)
	assert.Equal(t, "access-2", stored.AccessToken)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
	assert.Equal(t, creds.Profile, stored.Profile)
	assert.Zero(t, f.expired)
}

func TestExecuteExpiresSessionWhenRefreshFails(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		refresh string
	}{
		{name: "rejected", status: http.StatusOK, refresh: `{"code":-1,"msg":"invalid refresh token","data":null}`},
		{name: "missing tokens", status: http.StatusOK, refresh: `{"code":0,"msg":"success","data":{"token":""}}`},
		{name: "broken gateway", status: http.StatusBadGateway, refresh: `<html>bad gateway</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := signedIn()
			f := newFixture(t, &creds)
			f.transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)
			f.transport.push("/api/user/refreshToken", tc.status, tc.refresh)

			res, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo})
			require.ErrorIs(t, err, domain.ErrSessionExpired)
			require.NotNil(t, res)
			assert.Equal(t, OutcomeSessionExpired, res.Outcome)
			assert.Equal(t, http.StatusUnauthorized, res.Status)

			assert.Equal(t, []string{"/api/user/getUserInfo", "/api/user/refreshToken"}, f.transport.paths())
			assert.Nil(t, f.session(t))
			assert.Equal(t, 1, f.expired)
		})
	}
}

func TestExecuteExpiresSessionWhenRetryIsRejected(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)
	f.transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)
	f.transport.push("/api/user/refreshToken", http.StatusOK, rotatedPair)

	res, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo})
	require.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, OutcomeSessionExpired, res.Outcome)
	assert.Equal(t, []string{"/api/user/getUserInfo", "/api/user/refreshToken", "/api/user/getUserInfo"}, f.transport.paths())
	assert.Nil(t, f.session(t))
	assert.Equal(t, 1, f.expired)
}

func TestExecuteAnonymousUnauthorizedExpiresWithoutRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)

	_, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo})
	require.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, []string{"/api/user/getUserInfo"}, f.transport.paths())
	assert.Equal(t, 1, f.expired)
}

func TestExecuteSkipAuthRetryReturnsUnauthorizedEnvelope(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)
	f.transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)

	res, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo, SkipAuthRetry: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, 401, res.Envelope.Code)
	assert.Len(t, f.transport.recorded(), 1)
	assert.NotNil(t, f.session(t))
	assert.Zero(t, f.expired)
}

func TestExecuteReturnsErrorEnvelopeVerbatim(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)
	f.transport.push("/api/video-ai/videos", http.StatusInternalServerError, `{"code":-5,"msg":"quota exceeded","data":{"left":0}}`)

	res, err := f.client.Execute(context.Background(), Request{Method: http.MethodPost, Path: PathVideos, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, -5, res.Envelope.Code)
	assert.Equal(t, "quota exceeded", res.Envelope.Message)
	assert.JSONEq(t, `{"left":0}`, string(res.Envelope.Data))
	assert.NotNil(t, f.session(t))
}

func TestExecuteTransportErrors(t *testing.T) {
	netErr := errors.New("connection refused")
	cases := []struct {
		name  string
		setup func(*scriptedTransport)
		cause error
	}{
		{
			name: "network",
			setup: func(s *scriptedTransport) {
				s.err = netErr
			},
			cause: netErr,
		},
		{
			name: "html body",
			setup: func(s *scriptedTransport) {
				s.push("/api/user/getUserInfo", http.StatusBadGateway, "<html>bad gateway</html>")
			},
		},
		{
			name: "empty body",
			setup: func(s *scriptedTransport) {
				s.push("/api/user/getUserInfo", http.StatusOK, "")
			},
		},
		{
			name: "truncated json",
			setup: func(s *scriptedTransport) {
				s.push("/api/user/getUserInfo", http.StatusOK, `{"code":0,"msg":`)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := signedIn()
			f := newFixture(t, &creds)
			tc.setup(f.transport)

			_, err := f.client.Execute(context.Background(), Request{Path: PathUserInfo})
			require.ErrorIs(t, err, domain.ErrTransport)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, PathUserInfo, te.Path)
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
			assert.NotNil(t, f.session(t), "transport failures must not touch the session")
			assert.Zero(t, f.expired)
		})
	}
}

func TestEndpointJoinsBaseURL(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "https://video.example.com/api/user/login", f.client.endpoint("user/login"))
	assert.Equal(t, "https://video.example.com/api/user/login", f.client.endpoint("/user/login"))
	assert.Equal(t, "https://other.example.com/x", f.client.endpoint("https://other.example.com/x"))
}

func rawResult(code int, msg, data string) *Result {
	return &Result{Envelope: domain.Envelope[json.RawMessage]{Code: code, Message: msg, Data: json.RawMessage(data)}}
}

func TestDecode(t *testing.T) {
	t.Run("business failure keeps envelope", func(t *testing.T) {
		env, err := Decode[CreatedVideo](rawResult(-1, "bad", `""`))
		require.NoError(t, err)
		assert.Equal(t, -1, env.Code)
		assert.Equal(t, "bad", env.Message)
		assert.Empty(t, env.Data.ID)
	})
	t.Run("success with malformed data", func(t *testing.T) {
		_, err := Decode[CreatedVideo](rawResult(0, "success", `[1,2]`))
		require.ErrorIs(t, err, domain.ErrTransport)
	})
	t.Run("null data", func(t *testing.T) {
		env, err := Decode[CreatedVideo](rawResult(0, "success", `null`))
		require.NoError(t, err)
		assert.True(t, env.OK())
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "refreshed_retry", OutcomeRefreshedRetry.String())
	assert.Equal(t, "session_expired", OutcomeSessionExpired.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

// gatedStore blocks its first Get until release is closed.
type gatedStore struct {
	domain.CredentialStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context) (*domain.Credentials, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.CredentialStore.Get(ctx)
}

func TestRefreshForStaleTokenSkipsExchange(t *testing.T) {
	creds := signedIn()
	f := newFixture(t, &creds)

	assert.True(t, f.client.sharedRefresh(context.Background(), "access-0"))
	assert.Empty(t, f.transport.paths())
}

func TestUnauthorizedCallerJoiningStaleFlightStillRefreshes(t *testing.T) {
	memory := session.NewMemory()
	require.NoError(t, memory.Set(context.Background(), signedIn()))
	store := &gatedStore{CredentialStore: memory, entered: make(chan struct{}), release: make(chan struct{})}
	transport := newScriptedTransport()
	transport.push("/api/user/getUserInfo", http.StatusUnauthorized, unauthorized)
	transport.push("/api/user/getUserInfo", http.StatusOK, okProfile)
	transport.push("/api/user/refreshToken", http.StatusOK, rotatedPair)
	expired := 0
	client, err := NewClient(Options{
		BaseURL:          "https://video.example.com/api/",
		Store:            store,
		HTTPClient:       &http.Client{Transport: transport},
		OnSessionExpired: func() { expired++ },
	})
	require.NoError(t, err)

	// A caller rejected with an older token opens the flight and parks on
	// the store read.
	stale := make(chan bool, 1)
	go func() { stale <- client.sharedRefresh(context.Background(), "access-0") }()
	<-store.entered

	result := make(chan error, 1)
	var res *Result
	go func() {
		var err error
		res, err = client.Execute(context.Background(), Request{Path: PathUserInfo})
		result <- err
	}()
	require.Eventually(t, func() bool { return len(transport.recorded()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-result)
	assert.True(t, <-stale)
	assert.Equal(t, OutcomeRefreshedRetry, res.Outcome)
	assert.Equal(t, []string{"/api/user/getUserInfo", "/api/user/refreshToken", "/api/user/getUserInfo"}, transport.paths())

	stored, err := memory.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "access-2", stored.AccessToken)
	assert.Zero(t, expired)
}
