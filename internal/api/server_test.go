package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/api/middleware"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/database/models"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
)

type fakeOrgRepo struct {
	orgs   map[int64]*models.Organization
	byNum  map[string]int64
	nextID int64
}

func newFakeOrgRepo() *fakeOrgRepo {
	return &fakeOrgRepo{orgs: make(map[int64]*models.Organization), byNum: make(map[string]int64), nextID: 1}
}

func (f *fakeOrgRepo) Create(ctx context.Context, org *models.Organization) error {
	org.ID = f.nextID
	f.nextID++
	org.CreatedAt = time.Now()
	cp := *org
	f.orgs[org.ID] = &cp
	return nil
}

func (f *fakeOrgRepo) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrgRepo) GetByInboundNumber(ctx context.Context, number string) (*models.Organization, error) {
	id, ok := f.byNum[number]
	if !ok {
		return nil, nil
	}
	return f.GetByID(ctx, id)
}

func (f *fakeOrgRepo) List(ctx context.Context) ([]models.Organization, error) {
	out := make([]models.Organization, 0, len(f.orgs))
	for _, o := range f.orgs {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrgRepo) Update(ctx context.Context, org *models.Organization) error {
	cp := *org
	f.orgs[org.ID] = &cp
	return nil
}

func (f *fakeOrgRepo) Delete(ctx context.Context, id int64) error {
	delete(f.orgs, id)
	return nil
}

type fakeLeadRepo struct {
	leads []models.Lead
}

func (f *fakeLeadRepo) Create(ctx context.Context, l *models.Lead) error {
	l.ID = int64(len(f.leads) + 1)
	f.leads = append(f.leads, *l)
	return nil
}

func (f *fakeLeadRepo) GetByID(ctx context.Context, id int64) (*models.Lead, error) {
	for i := range f.leads {
		if f.leads[i].ID == id {
			cp := f.leads[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLeadRepo) ListByOrg(ctx context.Context, orgID int64) ([]models.Lead, error) {
	var out []models.Lead
	for _, l := range f.leads {
		if l.OrgID == orgID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadRepo) ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error) {
	return nil, nil
}

func (f *fakeLeadRepo) MarkSynced(ctx context.Context, id int64) error { return nil }

type fakeApptRepo struct {
	appts []models.Appointment
}

func (f *fakeApptRepo) Create(ctx context.Context, a *models.Appointment) error {
	a.ID = int64(len(f.appts) + 1)
	f.appts = append(f.appts, *a)
	return nil
}

func (f *fakeApptRepo) ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, a := range f.appts {
		if a.OrgID == orgID && a.Date == date {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeRecordRepo struct {
	records []models.CallRecord
}

func (f *fakeRecordRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRecordRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	for i := range f.records {
		if f.records[i].CallID == callID {
			cp := f.records[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordRepo) ListByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error) {
	var out []models.CallRecord
	for _, r := range f.records {
		if r.OrgID == orgID {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, r := range f.records {
		out[r.Outcome]++
	}
	return out, nil
}

func (f *fakeRecordRepo) DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error) {
	return 0, nil
}

type fakeNumberRepo struct {
	nums []models.InboundNumber
}

func (f *fakeNumberRepo) Create(ctx context.Context, n *models.InboundNumber) error {
	n.ID = int64(len(f.nums) + 1)
	n.CreatedAt = time.Now()
	f.nums = append(f.nums, *n)
	return nil
}

func (f *fakeNumberRepo) GetByNumber(ctx context.Context, number string) (*models.InboundNumber, error) {
	for i := range f.nums {
		if f.nums[i].Number == number {
			cp := f.nums[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeNumberRepo) ListByOrg(ctx context.Context, orgID int64) ([]models.InboundNumber, error) {
	var out []models.InboundNumber
	for _, n := range f.nums {
		if n.OrgID == orgID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNumberRepo) Delete(ctx context.Context, id int64) error {
	for i := range f.nums {
		if f.nums[i].ID == id {
			f.nums = append(f.nums[:i], f.nums[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeCRM struct{ enqueued []int64 }

func (f *fakeCRM) EnqueueLeadSync(id int64) { f.enqueued = append(f.enqueued, id) }

type testEnv struct {
	server *Server
	orgs   *fakeOrgRepo
	nums   *fakeNumberRepo
	leads  *fakeLeadRepo
	recs   *fakeRecordRepo
}

func newTestServer(t *testing.T, webhookSecret string) *testEnv {
	t.Helper()
	logger := slog.Default()
	cfg := &config.Config{
		HTTPPort:            8080,
		LogLevel:            "info",
		LogFormat:           "text",
		WebhookSecret:       webhookSecret,
		AIModel:             "realtime-1",
		ThinkingTimeout:     10 * time.Second,
		MaxModelRetries:     2,
		BargeInSpeechWindow: 300 * time.Millisecond,
		BargeInResumeDelay:  1500 * time.Millisecond,
		RateLimitRPS:        100,
	}

	orgs := newFakeOrgRepo()
	nums := &fakeNumberRepo{}
	leads := &fakeLeadRepo{}
	recs := &fakeRecordRepo{}
	repos := Repositories{
		Orgs:    orgs,
		Leads:   leads,
		Appts:   &fakeApptRepo{},
		Records: recs,
		Numbers: nums,
	}

	dialer := func(ctx context.Context, sc ai.SessionConfig) (ai.Leg, error) {
		t.Fatalf("unexpected dial for call %s", sc.CallID)
		return nil, nil
	}

	srv := NewServer(cfg, repos, session.NewManager(logger), dialer, &noopControl{},
		&fakeCRM{}, store.NewTranscripts(recs, logger), &metrics.Totals{}, logger)
	return &testEnv{server: srv, orgs: orgs, nums: nums, leads: leads, recs: recs}
}

type noopControl struct{}

func (noopControl) Transfer(ctx context.Context, callID, target string) error { return nil }
func (noopControl) Hangup(ctx context.Context, callID string) error           { return nil }

func (e *testEnv) seedOrg(t *testing.T, number string) *models.Organization {
	t.Helper()
	org := &models.Organization{
		Name:     "Acme Plumbing",
		Greeting: "Thanks for calling Acme Plumbing!",
	}
	if err := e.orgs.Create(context.Background(), org); err != nil {
		t.Fatalf("seeding org: %v", err)
	}
	e.orgs.byNum[number] = org.ID
	return org
}

func postJSON(t *testing.T, h http.Handler, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIncomingCallReturnsStreamURL(t *testing.T) {
	env := newTestServer(t, "")
	env.seedOrg(t, "+15550200")

	rr := postJSON(t, env.server, "/webhooks/voice/incoming", map[string]string{
		"call_id": "call-1",
		"from":    "+15550100",
		"to":      "+15550200",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var env2 struct {
		Data incomingCallResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env2); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env2.Data.Action != "stream" {
		t.Errorf("action = %q, want stream", env2.Data.Action)
	}
	if env2.Data.StreamURL != "/media/call-1" {
		t.Errorf("stream_url = %q, want /media/call-1", env2.Data.StreamURL)
	}

	if _, ok := env.server.takePending("call-1"); !ok {
		t.Error("expected a pending registration for call-1")
	}
}

func TestIncomingCallUnknownNumber(t *testing.T) {
	env := newTestServer(t, "")

	rr := postJSON(t, env.server, "/webhooks/voice/incoming", map[string]string{
		"call_id": "call-2",
		"from":    "+15550100",
		"to":      "+19990000",
	}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestIncomingCallUnsupportedCodec(t *testing.T) {
	env := newTestServer(t, "")
	env.seedOrg(t, "+15550200")

	rr := postJSON(t, env.server, "/webhooks/voice/incoming", map[string]string{
		"call_id": "call-3",
		"from":    "+15550100",
		"to":      "+15550200",
		"codec":   "opus",
	}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestIncomingCallRequiresSignatureWhenConfigured(t *testing.T) {
	env := newTestServer(t, "hook-secret")
	env.seedOrg(t, "+15550200")

	payload := map[string]string{
		"call_id": "call-4",
		"from":    "+15550100",
		"to":      "+15550200",
	}

	rr := postJSON(t, env.server, "/webhooks/voice/incoming", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rr.Code)
	}

	token, err := middleware.SignWebhook([]byte("hook-secret"), "call-4")
	if err != nil {
		t.Fatalf("SignWebhook: %v", err)
	}
	rr = postJSON(t, env.server, "/webhooks/voice/incoming", payload,
		map[string]string{"X-Voxbridge-Signature": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("signed status = %d, body %s", rr.Code, rr.Body.String())
	}

	// A signature for one call must not authorize another.
	rr = postJSON(t, env.server, "/webhooks/voice/incoming", map[string]string{
		"call_id": "call-other",
		"from":    "+15550100",
		"to":      "+15550200",
	}, map[string]string{"X-Voxbridge-Signature": token})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched signature status = %d, want 401", rr.Code)
	}
}

func TestCallStatusForInactiveCall(t *testing.T) {
	env := newTestServer(t, "")

	rr := postJSON(t, env.server, "/webhooks/voice/status", map[string]string{
		"call_id": "gone",
		"status":  "completed",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestCallStatusRejectsUnknownStatus(t *testing.T) {
	env := newTestServer(t, "")

	rr := postJSON(t, env.server, "/webhooks/voice/status", map[string]string{
		"call_id": "call-1",
		"status":  "vaporized",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCallStatusCompletedClearsPending(t *testing.T) {
	env := newTestServer(t, "")
	env.seedOrg(t, "+15550200")

	postJSON(t, env.server, "/webhooks/voice/incoming", map[string]string{
		"call_id": "call-5",
		"from":    "+15550100",
		"to":      "+15550200",
	}, nil)

	rr := postJSON(t, env.server, "/webhooks/voice/status", map[string]string{
		"call_id": "call-5",
		"status":  "failed",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if _, ok := env.server.takePending("call-5"); ok {
		t.Error("pending registration should be cleared after terminal status")
	}
}

func TestMediaStreamUnknownCall(t *testing.T) {
	env := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/media/never-announced", nil)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestOrganizationCRUD(t *testing.T) {
	env := newTestServer(t, "")

	rr := postJSON(t, env.server, "/api/v1/organizations", organizationRequest{
		Name:     "Acme Plumbing",
		Greeting: "Thanks for calling Acme!",
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}

	var created struct {
		Data organizationResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if created.Data.MaxTurns != 40 || created.Data.RetentionDays != 90 {
		t.Errorf("defaults not applied: %+v", created.Data)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/1", nil)
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/organizations/1", nil)
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/organizations/1", nil)
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestCreateOrganizationValidation(t *testing.T) {
	env := newTestServer(t, "")

	rr := postJSON(t, env.server, "/api/v1/organizations", organizationRequest{
		Greeting: "hello",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestNumberProvisioningConflict(t *testing.T) {
	env := newTestServer(t, "")
	env.seedOrg(t, "+15550200")

	rr := postJSON(t, env.server, "/api/v1/organizations/1/numbers",
		inboundNumberRequest{Number: "+15550300"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, env.server, "/api/v1/organizations/1/numbers",
		inboundNumberRequest{Number: "+15550300"}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rr.Code)
	}
}

func TestAdminAPIRequiresBearerWhenSecretSet(t *testing.T) {
	env := newTestServer(t, "admin-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/", nil)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("voxbridge_active_sessions")) {
		t.Error("metrics output missing voxbridge_active_sessions")
	}
}
