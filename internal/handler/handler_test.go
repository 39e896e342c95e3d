package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/access"
	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/memory"
	"github.com/Shivanand-hulikatti/membership-registry/internal/service"
	"github.com/Shivanand-hulikatti/membership-registry/internal/treasury"
)

const owner = "owner"

type testServer struct {
	router   http.Handler
	treasury *treasury.Treasury
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gate, err := access.NewGate(owner)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	var seq atomic.Int64
	tr := treasury.New()
	svc := service.New(memory.New(), gate, tr,
		service.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("evt-%d", seq.Add(1)) }),
	)
	return &testServer{router: New(svc, zerolog.Nop()).Router(), treasury: tr}
}

// do sends a request as identity; an empty identity omits the header.
func (s *testServer) do(t *testing.T, method, path, identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %T from %q: %v", v, rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind apperr.Kind) model.ErrorBody {
	t.Helper()
	expectStatus(t, rec, status)
	body := decode[model.ErrorResponse](t, rec).Error
	if body.Code != string(kind) {
		t.Fatalf("error code = %s, want %s (message %q)", body.Code, kind, body.Message)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Fatalf("status field = %q", got)
	}
}

func TestMutationsRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/admins"},
		{http.MethodPut, "/fees/gold"},
		{http.MethodPost, "/members"},
		{http.MethodPost, "/members/alice/approve"},
		{http.MethodPost, "/events"},
		{http.MethodPost, "/events/evt-1/register"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := s.do(t, rt.method, rt.path, "", `{}`)
			expectError(t, rec, http.StatusUnauthorized, apperr.KindInvalidIdentity)
		})
	}

	rec := s.do(t, http.MethodPost, "/events", "   ", `{}`)
	expectError(t, rec, http.StatusUnauthorized, apperr.KindInvalidIdentity)
}

func TestAddAdmin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admins", owner, `{"identity":"eve","role":"event_admin"}`)
	expectStatus(t, rec, http.StatusCreated)
	admin := decode[model.AdminRecord](t, rec)
	if admin.Identity != "eve" || admin.Role != model.AdminRoleEvent {
		t.Fatalf("unexpected admin record %+v", admin)
	}

	roles := decode[model.RoleSummary](t, s.do(t, http.MethodGet, "/identities/eve/roles", "", ""))
	if !roles.IsEventAdmin || roles.IsMembershipAdmin || roles.IsOwner {
		t.Fatalf("unexpected roles %+v", roles)
	}
	roles = decode[model.RoleSummary](t, s.do(t, http.MethodGet, "/identities/owner/roles", "", ""))
	if !roles.IsOwner {
		t.Fatalf("owner roles %+v", roles)
	}

	rec = s.do(t, http.MethodPost, "/admins", owner, `{"identity":"eve","role":"membership_admin"}`)
	expectError(t, rec, http.StatusConflict, apperr.KindAlreadyExists)

	rec = s.do(t, http.MethodPost, "/admins", "eve", `{"identity":"mallory","role":"event_admin"}`)
	body := expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)
	if body.Metadata["caller"] != "eve" {
		t.Fatalf("metadata = %v, want caller eve", body.Metadata)
	}

	rec = s.do(t, http.MethodPost, "/admins", owner, `{"identity":"zed","role":"king"}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRole)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantField string
	}{
		{"identity with space", http.MethodPost, "/admins", `{"identity":"a b","role":"event_admin"}`, "identity"},
		{"missing identity", http.MethodPost, "/admins", `{"role":"event_admin"}`, "identity"},
		{"missing amount", http.MethodPut, "/fees/gold", `{}`, "amount"},
		{"missing tier", http.MethodPost, "/members", `{"amount":"0.01"}`, "tier"},
		{"missing event name", http.MethodPost, "/events", `{"quota":5,"early_access_days":2}`, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, owner, tt.body)
			body := expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRequest)
			if body.Metadata["field"] != tt.wantField {
				t.Fatalf("metadata = %v, want field %s", body.Metadata, tt.wantField)
			}
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/fees/gold", owner, `{"amount":"0.01","currency":"eth"}`)
		expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRequest)
	})
	t.Run("malformed json", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/events", owner, `{"name":`)
		expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRequest)
	})
	t.Run("negative amount", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/fees/gold", owner, `{"amount":"-1"}`)
		expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRequest)
	})
}

func TestFees(t *testing.T) {
	s := newTestServer(t)

	fee := decode[model.FeeResponse](t, s.do(t, http.MethodGet, "/fees/gold", "", ""))
	if fee.Tier != model.TierGold || fee.Amount != model.MustParseAmount("0.05") {
		t.Fatalf("default gold fee = %+v", fee)
	}

	rec := s.do(t, http.MethodPut, "/fees/gold", owner, `{"amount":"0.07"}`)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/fees", "", "")
	expectStatus(t, rec, http.StatusOK)
	fees := decode[map[string]string](t, rec)
	want := map[string]string{"regular": "0.01", "gold": "0.07", "vip": "0.1", "not_applicable": "0"}
	for tier, amount := range want {
		if fees[tier] != amount {
			t.Fatalf("fees[%s] = %q, want %q (all %v)", tier, fees[tier], amount, fees)
		}
	}

	// Numbers are accepted as well as strings.
	rec = s.do(t, http.MethodPut, "/fees/regular", owner, `{"amount":0.02}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.FeeResponse](t, rec).Amount; got != model.MustParseAmount("0.02") {
		t.Fatalf("regular fee = %s", got)
	}

	rec = s.do(t, http.MethodPut, "/fees/not_applicable", owner, `{"amount":"0.01"}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidTier)

	rec = s.do(t, http.MethodGet, "/fees/platinum", "", "")
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidTier)

	rec = s.do(t, http.MethodPut, "/fees/vip", "stranger", `{"amount":"1"}`)
	expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)
}

func TestMembershipFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/members", "alice", `{"tier":"gold","amount":"0.05"}`)
	expectStatus(t, rec, http.StatusCreated)
	member := decode[model.MemberRecord](t, rec)
	if member.Identity != "alice" || member.Status != model.MemberStatusPendingApproval || member.Tier != model.TierGold {
		t.Fatalf("unexpected member %+v", member)
	}

	rec = s.do(t, http.MethodPost, "/members", "alice", `{"tier":"gold","amount":"0.05"}`)
	expectError(t, rec, http.StatusConflict, apperr.KindAlreadyRegistered)

	rec = s.do(t, http.MethodPost, "/members", "bob", `{"tier":"gold","amount":"0.04"}`)
	expectError(t, rec, http.StatusUnprocessableEntity, apperr.KindIncorrectPayment)

	rec = s.do(t, http.MethodPost, "/members", "bob", `{"tier":"diamond","amount":"0.04"}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidTier)

	rec = s.do(t, http.MethodPost, "/members/alice/approve", "alice", "")
	expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)

	expectStatus(t, s.do(t, http.MethodPost, "/admins", owner, `{"identity":"mia","role":"membership_admin"}`), http.StatusCreated)

	rec = s.do(t, http.MethodPost, "/members/alice/approve", "mia", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.MemberRecord](t, rec).Status; got != model.MemberStatusActive {
		t.Fatalf("status after approve = %s", got)
	}

	rec = s.do(t, http.MethodPost, "/members/alice/approve", "mia", "")
	expectError(t, rec, http.StatusConflict, apperr.KindInvalidState)

	rec = s.do(t, http.MethodGet, "/members/alice", "", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.MemberRecord](t, rec).Status; got != model.MemberStatusActive {
		t.Fatalf("stored status = %s", got)
	}

	rec = s.do(t, http.MethodGet, "/members/nobody", "", "")
	expectError(t, rec, http.StatusNotFound, apperr.KindNotFound)

	rec = s.do(t, http.MethodPut, "/members/alice/role", owner, `{"role":"event_admin"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.MemberRecord](t, rec).AssignedRole; got != model.MemberRoleEventAdmin {
		t.Fatalf("assigned role = %s", got)
	}
	// A member role does not grant directory privileges.
	roles := decode[model.RoleSummary](t, s.do(t, http.MethodGet, "/identities/alice/roles", "", ""))
	if roles.IsEventAdmin {
		t.Fatalf("member role leaked into directory: %+v", roles)
	}

	rec = s.do(t, http.MethodPut, "/members/alice/role", owner, `{"role":"overlord"}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRole)
}

func TestRejectRefundsCurrentFee(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/members", "bob", `{"tier":"vip","amount":"0.1"}`), http.StatusCreated)
	expectStatus(t, s.do(t, http.MethodPut, "/fees/vip", owner, `{"amount":"0.08"}`), http.StatusOK)

	rec := s.do(t, http.MethodPost, "/members/bob/reject", owner, "")
	expectStatus(t, rec, http.StatusOK)
	res := decode[model.RejectionResponse](t, rec)
	if res.Member.Status != model.MemberStatusRejected || res.Refund != model.MustParseAmount("0.08") {
		t.Fatalf("unexpected rejection %+v", res)
	}

	bal := decode[model.BalanceResponse](t, s.do(t, http.MethodGet, "/treasury/balances/bob", "", ""))
	if bal.Balance != model.MustParseAmount("0.08") || bal.Held != model.MustParseAmount("0.02") {
		t.Fatalf("unexpected balances %+v", bal)
	}
}

func TestRejectTransferFailure(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/members", "carol", `{"tier":"regular","amount":"0.01"}`), http.StatusCreated)
	s.treasury.Refuse("carol")

	rec := s.do(t, http.MethodPost, "/members/carol/reject", owner, "")
	expectError(t, rec, http.StatusBadGateway, apperr.KindTransferFailed)

	rec = s.do(t, http.MethodGet, "/members/carol", "", "")
	if got := decode[model.MemberRecord](t, rec).Status; got != model.MemberStatusPendingApproval {
		t.Fatalf("status after failed refund = %s", got)
	}
	bal := decode[model.BalanceResponse](t, s.do(t, http.MethodGet, "/treasury/balances/carol", "", ""))
	if bal.Held != model.MustParseAmount("0.01") || bal.Balance != 0 {
		t.Fatalf("funds moved after failed refund: %+v", bal)
	}
}

func TestEventFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/events", "", "")
	expectStatus(t, rec, http.StatusOK)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty list body = %s", got)
	}

	rec = s.do(t, http.MethodPost, "/events", "alice", `{"name":"Launch","quota":1,"early_access_days":3}`)
	expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)

	rec = s.do(t, http.MethodPost, "/events", owner, `{"name":"Launch","quota":0,"early_access_days":3}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidQuota)

	rec = s.do(t, http.MethodPost, "/events", owner, `{"name":"Launch","quota":1,"early_access_days":0}`)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidWindow)

	rec = s.do(t, http.MethodPost, "/events", owner, `{"name":"Launch","quota":1,"early_access_days":3}`)
	expectStatus(t, rec, http.StatusCreated)
	event := decode[model.Event](t, rec)
	if event.ID != "evt-1" || event.Status != model.EventActive || event.Quota != 1 {
		t.Fatalf("unexpected event %+v", event)
	}

	rec = s.do(t, http.MethodPost, "/events/evt-1/register", "alice", "")
	expectStatus(t, rec, http.StatusCreated)
	if mark := decode[model.RegistrationMark](t, rec); mark.Identity != "alice" || mark.EventID != "evt-1" {
		t.Fatalf("unexpected mark %+v", mark)
	}

	status := decode[model.RegistrationStatus](t, s.do(t, http.MethodGet, "/events/evt-1/registrations/alice", "", ""))
	if !status.Registered {
		t.Fatalf("alice not registered: %+v", status)
	}
	status = decode[model.RegistrationStatus](t, s.do(t, http.MethodGet, "/events/evt-1/registrations/bob", "", ""))
	if status.Registered {
		t.Fatalf("bob registered: %+v", status)
	}

	rec = s.do(t, http.MethodPost, "/events/evt-1/register", "alice", "")
	expectError(t, rec, http.StatusConflict, apperr.KindAlreadyRegistered)

	rec = s.do(t, http.MethodPost, "/events/evt-1/register", "bob", "")
	expectError(t, rec, http.StatusConflict, apperr.KindEventFull)

	rec = s.do(t, http.MethodPost, "/events/evt-1/cancel", owner, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Event](t, rec).Status; got != model.EventInactive {
		t.Fatalf("status after cancel = %s", got)
	}

	rec = s.do(t, http.MethodPost, "/events/evt-1/cancel", owner, "")
	expectError(t, rec, http.StatusConflict, apperr.KindAlreadyInactive)

	rec = s.do(t, http.MethodPost, "/events/evt-1/register", "carol", "")
	expectError(t, rec, http.StatusConflict, apperr.KindEventNotActive)

	rec = s.do(t, http.MethodGet, "/events/evt-1", "", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Event](t, rec).ParticipantCount; got != 1 {
		t.Fatalf("participant count = %d, want 1", got)
	}

	rec = s.do(t, http.MethodGet, "/events/missing", "", "")
	expectError(t, rec, http.StatusNotFound, apperr.KindNotFound)

	rec = s.do(t, http.MethodPost, "/events/missing/register", "alice", "")
	expectError(t, rec, http.StatusNotFound, apperr.KindNotFound)

	events := decode[[]model.Event](t, s.do(t, http.MethodGet, "/events", "", ""))
	if len(events) != 1 {
		t.Fatalf("listed %d events, want 1", len(events))
	}
}

func TestJournal(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/admins", owner, `{"identity":"eve","role":"event_admin"}`), http.StatusCreated)
	expectStatus(t, s.do(t, http.MethodPost, "/events", "eve", `{"name":"Meetup","quota":10,"early_access_days":1}`), http.StatusCreated)
	expectStatus(t, s.do(t, http.MethodPost, "/events/evt-1/register", "alice", ""), http.StatusCreated)

	type entry struct {
		Seq  int64  `json:"seq"`
		Type string `json:"type"`
	}

	all := decode[[]entry](t, s.do(t, http.MethodGet, "/journal", "", ""))
	wantTypes := []string{model.TypeAdminAdded, model.TypeEventCreated, model.TypeEventRegistered}
	if len(all) != len(wantTypes) {
		t.Fatalf("journal has %d entries, want %d", len(all), len(wantTypes))
	}
	for i, e := range all {
		if e.Type != wantTypes[i] || e.Seq != int64(i+1) {
			t.Fatalf("entry %d = %+v, want type %s seq %d", i, e, wantTypes[i], i+1)
		}
	}

	page := decode[[]entry](t, s.do(t, http.MethodGet, "/journal?after=1&limit=1", "", ""))
	if len(page) != 1 || page[0].Seq != 2 {
		t.Fatalf("page = %+v", page)
	}

	rec := s.do(t, http.MethodGet, "/journal?after=99", "", "")
	expectStatus(t, rec, http.StatusOK)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty page body = %s", got)
	}

	for _, q := range []string{"after=x", "limit=-1"} {
		rec := s.do(t, http.MethodGet, "/journal?"+q, "", "")
		expectError(t, rec, http.StatusBadRequest, apperr.KindInvalidRequest)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindUnauthorized:      http.StatusForbidden,
		apperr.KindNotFound:          http.StatusNotFound,
		apperr.KindAlreadyExists:     http.StatusConflict,
		apperr.KindAlreadyRegistered: http.StatusConflict,
		apperr.KindEventFull:         http.StatusConflict,
		apperr.KindInvalidAmount:     http.StatusBadRequest,
		apperr.KindInvalidName:       http.StatusBadRequest,
		apperr.KindIncorrectPayment:  http.StatusUnprocessableEntity,
		apperr.KindTransferFailed:    http.StatusBadGateway,
		apperr.KindInternal:          http.StatusInternalServerError,
		apperr.Kind("BOGUS"):         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := New(nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.writeError(rec, req, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"))

	body := expectError(t, rec, http.StatusInternalServerError, apperr.KindInternal)
	if strings.Contains(body.Message, "10.0.0.5") {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
}
