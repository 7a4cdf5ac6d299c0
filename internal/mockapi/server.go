// Package mockapi is an in-memory implementation of the video generation
// service contract. It backs the integration tests and cmd/mockapi.
package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"videoclient/internal/domain"
	"videoclient/internal/infra"
	"videoclient/internal/middleware"
)

// Business codes used by the mock besides the shared ones.
const (
	CodeFailure = -1
)

// Options configures the mock service.
type Options struct {
	JWTSecret string
	AccessTTL time.Duration
	// JobTicks is the number of status reads a job spends processing
	// before it succeeds.
	JobTicks int
	// SubmitLimit caps generation submissions per user per minute; zero
	// disables the limit.
	SubmitLimit    int
	Users          map[string]string
	AllowedOrigins []string
	Logger         *infra.Logger
	Now            func() time.Time
}

// Server holds the mock service state.
type Server struct {
	secret      string
	accessTTL   time.Duration
	jobTicks    int
	submitLimit int
	origins     []string
	logger      *infra.Logger
	now         func() time.Time
	validate    *validator.Validate

	mu       sync.Mutex
	epoch    int64
	users    map[string]string
	refresh  map[string]string
	jobs     map[string]*job
	calls    map[string]int
	failNext map[string]int
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type createVideoRequest struct {
	Model       string `json:"model" validate:"required"`
	Prompt      string `json:"prompt" validate:"required,max=2000"`
	AspectRatio string `json:"aspectRatio" validate:"required,oneof=9:16 16:9 1:1"`
	Duration    int    `json:"duration" validate:"required,min=1,max=60"`
	URL         string `json:"url" validate:"omitempty,url"`
}

type job struct {
	owner  string
	prompt string
	reads  int
	state  domain.Job
}

// New returns a mock service with one user "demo"/"demo" unless Users is set.
func New(opts Options) *Server {
	secret := opts.JWTSecret
	if secret == "" {
		secret = "mock-secret"
	}
	ttl := opts.AccessTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ticks := opts.JobTicks
	if ticks <= 0 {
		ticks = 3
	}
	users := map[string]string{"demo": "demo"}
	if len(opts.Users) > 0 {
		users = make(map[string]string, len(opts.Users))
		for u, p := range opts.Users {
			users[u] = p
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		secret:      secret,
		accessTTL:   ttl,
		jobTicks:    ticks,
		submitLimit: opts.SubmitLimit,
		origins:     opts.AllowedOrigins,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		now:         now,
		validate:    validator.New(),
		users:       users,
		refresh:     map[string]string{},
		jobs:        map[string]*job{},
		calls:       map[string]int{},
		failNext:    map[string]int{},
	}
}

// Router builds the chi router serving the service contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(*s.logger),
		middleware.CORS(s.origins),
		s.count,
	)

	r.Post("/user/login", s.login)
	r.Post("/user/refreshToken", s.refreshToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(s.secret, s.currentEpoch))
		r.Get("/user/getUserInfo", s.userInfo)
		r.Get("/user/points-and-membership", s.membership)
		r.Get("/video-ai/videos/{id}/result", s.videoResult)
		r.Group(func(r chi.Router) {
			if s.submitLimit > 0 {
				r.Use(middleware.RateLimit(s.submitLimit, time.Minute))
			}
			r.Post("/video-ai/videos", s.createVideo)
		})
	})
	return r
}

// ExpireAccessTokens revokes every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = map[string]string{}
	s.mu.Unlock()
}

// FailNext makes the next n calls to path answer with a body that is not
// JSON, as a broken proxy would.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	s.failNext[path] = n
	s.mu.Unlock()
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// IssueSession mints a token pair for user without going through login.
func (s *Server) IssueSession(user string) (access, refresh string, err error) {
	return s.issue(user)
}

func (s *Server) currentEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		broken := s.failNext[r.URL.Path] > 0
		if broken {
			s.failNext[r.URL.Path]--
		}
		s.mu.Unlock()
		if broken {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issue(user string) (string, string, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	access, err := middleware.SignAccessToken(s.secret, user, epoch, s.accessTTL, s.now())
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refresh[refresh] = user
	s.mu.Unlock()
	return access, refresh, nil
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	middleware.WriteEnvelope(w, http.StatusOK, domain.CodeOK, "success", data)
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string) {
	middleware.WriteEnvelope(w, http.StatusOK, code, msg, nil)
}

// decode reads and validates a JSON body, answering with a business failure
// when either step fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.fail(w, CodeFailure, "invalid payload")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
		}
		s.fail(w, CodeFailure, "validation failed: "+strings.Join(fields, ", "))
		return false
	}
	return true
}

func (s *Server) profile(user string) domain.Profile {
	if user == "" {
		return domain.Profile{}
	}
	return domain.Profile{
		UserID:     int64(len(user)),
		Username:   user,
		Nickname:   strings.ToUpper(user[:1]) + user[1:],
		Roles:      []string{"user"},
		Active:     1,
		CreateTime: "2025-01-01 00:00:00",
		UpdateTime: "2025-01-01 00:00:00",
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	password, known := s.users[req.Username]
	s.mu.Unlock()
	if !known || password != req.Password {
		s.fail(w, CodeFailure, "invalid username or password")
		return
	}
	access, refresh, err := s.issue(req.Username)
	if err != nil {
		s.fail(w, CodeFailure, "failed to issue token")
		return
	}
	s.ok(w, map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"userInfo":     s.profile(req.Username),
	})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	user, ok := s.refresh[req.RefreshToken]
	// Refresh tokens rotate: each one is accepted once.
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	if !ok {
		s.fail(w, CodeFailure, "invalid refresh token")
		return
	}
	access, refresh, err := s.issue(user)
	if err != nil {
		s.fail(w, CodeFailure, "failed to issue token")
		return
	}
	s.ok(w, map[string]string{"token": access, "refreshToken": refresh})
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	s.ok(w, s.profile(middleware.UserFromContext(r.Context())))
}

func (s *Server) membership(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	s.ok(w, domain.Membership{UserID: int64(len(user)), Points: 120, Level: domain.MembershipMember})
}

func (s *Server) createVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := "task_" + uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = &job{
		owner:  middleware.UserFromContext(r.Context()),
		prompt: req.Prompt,
		state: domain.Job{
			ID:        id,
			Status:    domain.JobStatusPending,
			StartedAt: s.now(),
		},
	}
	s.mu.Unlock()
	s.logger.Info().Str("job_id", id).Str("model", req.Model).Msg("mockapi: job accepted")
	s.ok(w, map[string]string{"id": id})
}

func (s *Server) videoResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := middleware.UserFromContext(r.Context())
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || j.owner != user {
		s.mu.Unlock()
		s.fail(w, domain.CodeJobNotFound, "task does not exist")
		return
	}
	s.advance(j)
	state := j.state.Clone()
	s.mu.Unlock()
	s.ok(w, state)
}

// advance moves a job one step per status read. Prompts mentioning "fail"
// end in failure.
func (s *Server) advance(j *job) {
	if j.state.Status.Terminal() {
		return
	}
	j.reads++
	if j.reads < s.jobTicks {
		j.state.Status = domain.JobStatusProcessing
		j.state.Progress = j.reads * 100 / s.jobTicks
		return
	}
	end := s.now()
	j.state.EndedAt = &end
	j.state.Progress = 100
	if strings.Contains(strings.ToLower(j.prompt), "fail") {
		j.state.Status = domain.JobStatusFailed
		j.state.Error = "generation rejected by content policy"
		return
	}
	j.state.Status = domain.JobStatusSucceeded
	j.state.Results = []domain.VideoResult{{
		PID:             j.state.ID,
		URL:             fmt.Sprintf("https://cdn.example.com/videos/%s.mp4", j.state.ID),
		RemoveWatermark: true,
	}}
}
