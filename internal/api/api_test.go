package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"jobhub/internal/jobs"
	"jobhub/internal/lifecycle"
	"jobhub/internal/listing"
	"jobhub/internal/notify"
	"jobhub/internal/presence"
	"jobhub/internal/resume"
	"jobhub/internal/storage"
	jobhubtest "jobhub/internal/testing"
)

const (
	employerUser  = "emp-1"
	candidateUser = "cand-1"
)

type testServer struct {
	*httptest.Server
	store *jobhubtest.MemStore
	hub   *presence.Hub
}

func newTestServer(t *testing.T, tweak func(d *Deps)) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	ctx, cancel := context.WithCancel(context.Background())

	store := jobhubtest.NewMemStore()
	cache := listing.NewMemoryCache(10 * time.Minute)
	hub := presence.NewHub(log, nil)
	go hub.Run(ctx)
	dispatcher := notify.NewDispatcher(store, hub, notify.Options{QueueSize: 64, Workers: 2}, log)

	d := Deps{
		Store:      store,
		Engine:     lifecycle.NewEngine(store, dispatcher, cache, log),
		Reader:     lifecycle.NewReader(store, nil, log),
		Jobs:       jobs.NewService(store, cache, log),
		Hub:        hub,
		Parser:     resume.NewParser(t.TempDir()),
		Dispatcher: dispatcher,
		Logger:     log,
	}
	if tweak != nil {
		tweak(&d)
	}

	srv := httptest.NewServer(NewRouter(NewAPI(d), []string{"http://app.example"}))
	t.Cleanup(func() {
		srv.Close()
		dispatcher.Close()
		cancel()
	})
	return &testServer{Server: srv, store: store, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

// seed creates an employer with a job and a candidate with a profile.
func (s *testServer) seed(t *testing.T) *storage.Job {
	t.Helper()
	code, _ := s.do(t, http.MethodPut, "/api/employer/profile", employerUser, EmployerProfileInput{
		ContactName: "Chị Hoa",
		Company:     &storage.Company{Name: "Acme"},
	})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/jobs", employerUser, jobs.Input{Title: "Go developer", Category: "IT"})
	require.Equal(t, http.StatusCreated, code, string(body))
	job := decode[storage.Job](t, body)

	code, _ = s.do(t, http.MethodPut, "/api/candidate/profile", candidateUser, CandidateProfileInput{
		FullName: "Nguyễn Văn A",
		Email:    "a@example.com",
		Skills:   []string{"Go"},
	})
	require.Equal(t, http.StatusOK, code)
	return &job
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	res := decode[HealthResponse](t, body)
	assert.Equal(t, "healthy", res.Status)
	assert.NotNil(t, res.Notify)
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/notifications", "/api/employer/stats", "/api/candidate/applications"} {
		code, body := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		msg := decode[MessageResponse](t, body)
		assert.Equal(t, lifecycle.SeverityError, msg.Severity)
	}

	code, _ := s.do(t, http.MethodGet, "/api/jobs", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestApplyOutcomes(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.seed(t)
	path := "/api/jobs/" + job.GUID + "/apply"

	code, body := s.do(t, http.MethodPost, path, candidateUser, nil)
	require.Equal(t, http.StatusCreated, code, string(body))
	res := decode[lifecycle.ApplyResult](t, body)
	assert.Equal(t, lifecycle.OutcomeSuccess, res.Outcome)
	assert.Equal(t, lifecycle.SeveritySuccess, res.Severity)
	require.NotNil(t, res.ApplicationID)
	assert.NotEmpty(t, res.Message)

	tests := []struct {
		name    string
		path    string
		user    string
		code    int
		outcome lifecycle.Outcome
	}{
		{"duplicate", path, candidateUser, http.StatusConflict, lifecycle.OutcomeAlreadyApplied},
		{"own job", path, employerUser, http.StatusForbidden, lifecycle.OutcomeSelfApplication},
		{"no profile", path, "stranger", http.StatusUnprocessableEntity, lifecycle.OutcomeProfileRequired},
		{"unknown job", "/api/jobs/does-not-exist/apply", candidateUser, http.StatusNotFound, lifecycle.OutcomeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, tt.path, tt.user, nil)
			assert.Equal(t, tt.code, code)
			res := decode[lifecycle.ApplyResult](t, body)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.NotEmpty(t, res.Message)
			assert.Nil(t, res.ApplicationID)
		})
	}
	assert.Equal(t, 1, s.store.ApplicationCount())
}

func TestStatusTransitions(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.seed(t)
	code, body := s.do(t, http.MethodPost, "/api/jobs/"+job.GUID+"/apply", candidateUser, nil)
	require.Equal(t, http.StatusCreated, code)
	appID := *decode[lifecycle.ApplyResult](t, body).ApplicationID

	// warm the listing cache before the counter moves
	code, _ = s.do(t, http.MethodGet, "/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, code)

	statusPath := "/api/applications/" + itoa(appID) + "/status"
	code, body = s.do(t, http.MethodPatch, statusPath, employerUser, StatusRequest{Status: "ACCEPTED"})
	require.Equal(t, http.StatusOK, code, string(body))
	res := decode[lifecycle.StatusResult](t, body)
	assert.True(t, res.Success)
	assert.Equal(t, storage.StatusAccepted, res.NewStatus)
	assert.NotEmpty(t, res.StatusLabel)
	assert.NotNil(t, res.UpdatedAt)

	code, body = s.do(t, http.MethodGet, "/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[listing.Page](t, body)
	require.Len(t, page.Jobs, 1)
	assert.Equal(t, 1, page.Jobs[0].PositionsFilled)

	tests := []struct {
		name   string
		path   string
		user   string
		status string
		code   int
	}{
		{"unknown status", statusPath, employerUser, "HIRED", http.StatusBadRequest},
		{"not the owner", statusPath, "someone-else", "REJECTED", http.StatusForbidden},
		{"candidate cannot decide", statusPath, candidateUser, "REJECTED", http.StatusForbidden},
		{"missing application", "/api/applications/9999/status", employerUser, "REJECTED", http.StatusNotFound},
		{"unknown status on missing application", "/api/applications/9999/status", employerUser, "HIRED", http.StatusBadRequest},
		{"malformed id", "/api/applications/abc/status", employerUser, "REJECTED", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPatch, tt.path, tt.user, StatusRequest{Status: tt.status})
			assert.Equal(t, tt.code, code, string(body))
			msg := decode[MessageResponse](t, body)
			assert.NotEmpty(t, msg.Message)
		})
	}
	assert.Equal(t, storage.StatusAccepted, s.store.Application(appID).Status)
	assert.Equal(t, 1, s.store.Job(job.ID).PositionsFilled)
}

func TestEmployerViews(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.seed(t)
	code, _ := s.do(t, http.MethodPost, "/api/jobs/"+job.GUID+"/apply", candidateUser, nil)
	require.Equal(t, http.StatusCreated, code)

	code, body := s.do(t, http.MethodGet, "/api/employer/stats", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[lifecycle.EmployerStats](t, body)
	assert.Equal(t, 1, stats.TotalApplications)
	assert.Equal(t, 1, stats.TotalUnread)

	code, body = s.do(t, http.MethodGet, "/api/jobs/"+job.GUID+"/applications", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	apps := decode[[]storage.ApplicationSummary](t, body)
	require.Len(t, apps, 1)
	assert.Equal(t, "Nguyễn Văn A", apps[0].CandidateName)

	code, _ = s.do(t, http.MethodGet, "/api/jobs/"+job.GUID+"/applications", candidateUser, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPost, "/api/jobs/"+job.GUID+"/applications/read", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decode[CountResponse](t, body).Count)

	code, body = s.do(t, http.MethodGet, "/api/employer/stats", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decode[lifecycle.EmployerStats](t, body).TotalUnread)

	code, body = s.do(t, http.MethodGet, "/api/candidate/applications", candidateUser, nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[[]storage.CandidateApplication](t, body)
	require.Len(t, history, 1)
	assert.Equal(t, job.GUID, history[0].JobGUID)
}

func TestNotificationLedgerEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.seed(t)
	code, _ := s.do(t, http.MethodPost, "/api/jobs/"+job.GUID+"/apply", candidateUser, nil)
	require.Equal(t, http.StatusCreated, code)

	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/api/notifications/unread-count", employerUser, nil)
		return decode[UnreadResponse](t, body).Unread == 1
	}, 2*time.Second, 10*time.Millisecond)

	code, body := s.do(t, http.MethodGet, "/api/notifications?unread=true", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	items := decode[[]storage.Notification](t, body)
	require.Len(t, items, 1)
	assert.Equal(t, storage.CategoryNewApplication, items[0].Category)

	// the candidate cannot acknowledge the employer's notification
	code, _ = s.do(t, http.MethodPost, "/api/notifications/"+itoa(items[0].ID)+"/read", candidateUser, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/notifications/"+itoa(items[0].ID)+"/read", employerUser, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", employerUser, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decode[UnreadResponse](t, body).Unread)

	code, body = s.do(t, http.MethodPost, "/api/notifications/read-all", candidateUser, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), decode[CountResponse](t, body).Count)
}

func TestPresenceReceivesStatusChange(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.seed(t)
	code, body := s.do(t, http.MethodPost, "/api/jobs/"+job.GUID+"/apply", candidateUser, nil)
	require.Equal(t, http.StatusCreated, code)
	appID := *decode[lifecycle.ApplyResult](t, body).ApplicationID

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?user_id=" + candidateUser
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(hello), `"connected"`)
	require.Eventually(t, func() bool { return s.hub.Subscribers(candidateUser) == 1 }, time.Second, 5*time.Millisecond)

	code, _ = s.do(t, http.MethodPatch, "/api/applications/"+itoa(appID)+"/status", employerUser, StatusRequest{Status: "INTERVIEWING"})
	require.Equal(t, http.StatusOK, code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg := decode[notify.PresenceMessage](t, raw)
	assert.Equal(t, notify.KindStatusChanged, msg.Type)
	assert.Equal(t, appID, msg.ApplicationID)
	assert.Equal(t, string(storage.StatusApplied), msg.OldStatus)
	assert.Equal(t, string(storage.StatusInterviewing), msg.NewStatus)
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	s := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApplyIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.ApplyRate = rate.Every(time.Hour)
		d.ApplyBurst = 1
	})
	job := s.seed(t)
	path := "/api/jobs/" + job.GUID + "/apply"

	code, _ := s.do(t, http.MethodPost, path, candidateUser, nil)
	assert.Equal(t, http.StatusCreated, code)
	code, body := s.do(t, http.MethodPost, path, candidateUser, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, lifecycle.SeverityWarning, decode[MessageResponse](t, body).Severity)

	// other users have their own bucket
	code, _ = s.do(t, http.MethodPost, path, "stranger", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestEmployerProfileKeepsCompanyLink(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodPut, "/api/employer/profile", employerUser, EmployerProfileInput{
		ContactName: "Chị Hoa",
		Company:     &storage.Company{Name: "Acme"},
	})
	require.Equal(t, http.StatusOK, code)
	first := decode[storage.EmployerProfile](t, body)
	require.NotNil(t, first.CompanyID)

	code, body = s.do(t, http.MethodPut, "/api/employer/profile", employerUser, EmployerProfileInput{ContactName: "Chị Hoa Nguyễn"})
	require.Equal(t, http.StatusOK, code)
	second := decode[storage.EmployerProfile](t, body)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.CompanyID)
	assert.Equal(t, *first.CompanyID, *second.CompanyID)

	code, body = s.do(t, http.MethodPut, "/api/employer/profile", employerUser, EmployerProfileInput{
		ContactName: "Chị Hoa",
		Company:     &storage.Company{ID: 777, Name: "Acme Vietnam"},
	})
	require.Equal(t, http.StatusOK, code)
	third := decode[storage.EmployerProfile](t, body)
	assert.Equal(t, *first.CompanyID, *third.CompanyID)

	code, _ = s.do(t, http.MethodPut, "/api/employer/profile", employerUser, EmployerProfileInput{Company: &storage.Company{}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func uploadCV(t *testing.T, s *testServer, userID, name, content string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/candidate/resume/import", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserIDHeader, userID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestResumeImport(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed(t)

	code, body := uploadCV(t, s, candidateUser, "cv.txt", "Backend engineer.\n\nSkills: Docker, PostgreSQL, Redis")
	require.Equal(t, http.StatusOK, code, string(body))
	res := decode[storage.Resume](t, body)
	assert.Equal(t, "cv.txt", res.FileName)
	assert.Equal(t, "Backend engineer.", res.Summary)
	assert.Subset(t, res.Skills, []string{"Go", "Docker", "PostgreSQL", "Redis"})

	code, body = s.do(t, http.MethodGet, "/api/candidate/resume", candidateUser, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, res.ID, decode[storage.Resume](t, body).ID)
	assert.Equal(t, 1, s.store.ResumeCount())

	code, _ = uploadCV(t, s, candidateUser, "cv.exe", "MZ")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = uploadCV(t, s, "stranger", "cv.txt", "text")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestResumeImportDisabledWithoutParser(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Parser = nil })
	s.seed(t)
	code, _ := uploadCV(t, s, candidateUser, "cv.txt", "text")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), UserIDHeader)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
