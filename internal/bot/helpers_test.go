package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fiberline/opsbot/internal/audit"
	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/config"
	"github.com/fiberline/opsbot/internal/session"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

const testKey = "console:C1:U1"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("platform: console\nbackend:\n  base_url: http://api.test\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

// --- fake API ---

// fakeAPI is a scripted operations API. Every call is appended to calls as
// "method arg arg".
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	olts       []string
	optionsErr error

	customers map[string][]backend.Customer
	searchErr error

	devices   map[string][]backend.Device
	detectErr error

	psb    []backend.Customer
	psbErr error

	configureOut string
	configureErr error
	configured   []backend.ConfigureRequest

	deviceOut map[string]string // by method name
	deviceErr map[string]error
	onDevice  func(method string) // runs after a device call is recorded

	billing    map[string][]backend.BillingRecord
	billingErr map[string]error

	tickets     []backend.Ticket
	ticketRes   *backend.TicketResult
	ticketErr   error
	ticketReqs  []backend.TicketRequest
	updateReqs  []backend.TicketUpdateRequest
	ocrText     string
	ocrErr      error
	ocrReceived []byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		customers:  make(map[string][]backend.Customer),
		devices:    make(map[string][]backend.Device),
		deviceOut:  make(map[string]string),
		deviceErr:  make(map[string]error),
		billing:    make(map[string][]backend.BillingRecord),
		billingErr: make(map[string]error),
		ticketRes:  &backend.TicketResult{Message: "OK", TicketID: "T-100"},
	}
}

func (f *fakeAPI) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) called(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeAPI) Options(ctx context.Context) (*backend.Options, error) {
	f.record("Options")
	if f.optionsErr != nil {
		return nil, f.optionsErr
	}
	return &backend.Options{OLTs: f.olts}, nil
}

func (f *fakeAPI) DetectDevices(ctx context.Context, olt string) ([]backend.Device, error) {
	f.record("DetectDevices %s", olt)
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.devices[olt], nil
}

func (f *fakeAPI) Configure(ctx context.Context, olt string, req backend.ConfigureRequest) (string, error) {
	f.record("Configure %s %s", olt, req.SN)
	f.mu.Lock()
	f.configured = append(f.configured, req)
	f.mu.Unlock()
	return f.configureOut, f.configureErr
}

func (f *fakeAPI) ProvisioningList(ctx context.Context) ([]backend.Customer, error) {
	f.record("ProvisioningList")
	return f.psb, f.psbErr
}

func (f *fakeAPI) SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error) {
	f.record("SearchCustomers %s", query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.customers[query], nil
}

func (f *fakeAPI) Billing(ctx context.Context, query string) ([]backend.BillingRecord, error) {
	f.record("Billing %s", query)
	if err := f.billingErr[query]; err != nil {
		return nil, err
	}
	return f.billing[query], nil
}

func (f *fakeAPI) device(method, olt, iface string) (string, error) {
	f.record("%s %s %s", method, olt, iface)
	if f.onDevice != nil {
		f.onDevice(method)
	}
	if err := f.deviceErr[method]; err != nil {
		return "", err
	}
	return f.deviceOut[method], nil
}

func (f *fakeAPI) Status(ctx context.Context, olt, iface string) (string, error) {
	return f.device("Status", olt, iface)
}

func (f *fakeAPI) Signal(ctx context.Context, olt, iface string) (string, error) {
	return f.device("Signal", olt, iface)
}

func (f *fakeAPI) PortState(ctx context.Context, olt, iface string) (string, error) {
	return f.device("PortState", olt, iface)
}

func (f *fakeAPI) Reboot(ctx context.Context, olt, iface string) (string, error) {
	return f.device("Reboot", olt, iface)
}

func (f *fakeAPI) Remove(ctx context.Context, olt, iface string) (string, error) {
	return f.device("Remove", olt, iface)
}

func (f *fakeAPI) Bandwidth(ctx context.Context, olt, iface string) (string, error) {
	return f.device("Bandwidth", olt, iface)
}

func (f *fakeAPI) RunningConfig(ctx context.Context, olt, iface string) (string, error) {
	return f.device("RunningConfig", olt, iface)
}

func (f *fakeAPI) EthStatus(ctx context.Context, olt, iface string) (string, error) {
	return f.device("EthStatus", olt, iface)
}

func (f *fakeAPI) LockPorts(ctx context.Context, olt, iface string, unlocked bool) (string, error) {
	return f.device(fmt.Sprintf("LockPorts(%t)", unlocked), olt, iface)
}

func (f *fakeAPI) ChangeCapacity(ctx context.Context, olt, iface, capacity string) (string, error) {
	return f.device("ChangeCapacity("+capacity+")", olt, iface)
}

func (f *fakeAPI) SearchTickets(ctx context.Context, query string) ([]backend.Ticket, error) {
	f.record("SearchTickets %s", query)
	return f.tickets, f.ticketErr
}

func (f *fakeAPI) CreateTicket(ctx context.Context, req backend.TicketRequest) (*backend.TicketResult, error) {
	f.record("CreateTicket %s", req.Query)
	f.mu.Lock()
	f.ticketReqs = append(f.ticketReqs, req)
	f.mu.Unlock()
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	return f.ticketRes, nil
}

func (f *fakeAPI) CloseTicket(ctx context.Context, req backend.TicketUpdateRequest) (*backend.TicketResult, error) {
	f.record("CloseTicket %s", req.Query)
	f.mu.Lock()
	f.updateReqs = append(f.updateReqs, req)
	f.mu.Unlock()
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	return f.ticketRes, nil
}

func (f *fakeAPI) ForwardTicket(ctx context.Context, req backend.TicketUpdateRequest) (*backend.TicketResult, error) {
	f.record("ForwardTicket %s", req.Query)
	f.mu.Lock()
	f.updateReqs = append(f.updateReqs, req)
	f.mu.Unlock()
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	return f.ticketRes, nil
}

func (f *fakeAPI) OCR(ctx context.Context, fileName string, image []byte) (string, error) {
	f.record("OCR %s", fileName)
	f.mu.Lock()
	f.ocrReceived = image
	f.mu.Unlock()
	return f.ocrText, f.ocrErr
}

var _ API = (*fakeAPI)(nil)

func notFoundErr(op string) error {
	return &backend.Error{Op: op, Kind: backend.KindUpstream, StatusCode: http.StatusNotFound, Message: "not found"}
}

func upstreamErr(op, msg string) error {
	return &backend.Error{Op: op, Kind: backend.KindUpstream, StatusCode: http.StatusInternalServerError, Message: msg}
}

// --- in-memory session store ---

// memStore is a session.Store that round-trips sessions through JSON, the
// same as the database store.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	updated map[string]time.Time
	getErr  error
	setErr  error
	sets    int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), updated: make(map[string]time.Time)}
}

func (m *memStore) Get(ctx context.Context, key string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	var s session.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memStore) Set(ctx context.Context, key string, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.updated[key] = s.LastActivity
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.updated, key)
	return nil
}

func (m *memStore) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) List(ctx context.Context) ([]session.Summary, error) {
	keys, _ := m.ListKeys(ctx)
	out := make([]session.Summary, 0, len(keys))
	for _, k := range keys {
		s, err := m.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, session.Summary{Key: k, Step: s.Step, UpdatedAt: s.LastActivity})
	}
	return out, nil
}

func (m *memStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.updated {
		if at.Before(olderThan) {
			delete(m.data, k)
			delete(m.updated, k)
			n++
		}
	}
	return n, nil
}

var _ session.Store = (*memStore)(nil)

// --- audit recorder ---

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	cutoffs []time.Time
}

func (a *fakeAudit) Record(ctx context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cutoffs = append(a.cutoffs, cutoff)
	return 0, nil
}

func (a *fakeAudit) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

var _ AuditLog = (*fakeAudit)(nil)

// --- router harness ---

type harness struct {
	t       *testing.T
	cfg     *config.Config
	api     *fakeAPI
	store   *memStore
	adapter *MockAdapter
	audit   *fakeAudit
	now     time.Time
	router  *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		cfg:     testConfig(t),
		api:     newFakeAPI(),
		store:   newMemStore(),
		adapter: NewMockAdapter(),
		audit:   &fakeAudit{},
		now:     t0,
	}
	if err := h.adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.build()
	return h
}

// build (re)creates the router, picking up adapter and config changes.
func (h *harness) build() {
	h.t.Helper()
	r, err := NewRouter(RouterOpts{
		API:     h.api,
		Store:   h.store,
		Adapter: h.adapter,
		Config:  h.cfg,
		Audit:   h.audit,
		Now:     func() time.Time { return h.now },
	})
	if err != nil {
		h.t.Fatalf("NewRouter: %v", err)
	}
	h.router = r
}

func (h *harness) inbound() InboundMessage {
	return InboundMessage{
		Platform:  "console",
		ChannelID: "C1",
		UserID:    "U1",
		UserName:  "alice",
		Timestamp: h.now,
	}
}

func (h *harness) text(s string) {
	msg := h.inbound()
	msg.Text = s
	h.router.Handle(context.Background(), msg)
}

func (h *harness) press(a Action) {
	msg := h.inbound()
	msg.Action = a.String()
	h.router.Handle(context.Background(), msg)
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// session returns the stored session for the test conversation.
func (h *harness) session() *session.Session {
	h.t.Helper()
	s, err := h.store.Get(context.Background(), testKey)
	if err != nil {
		h.t.Fatalf("store.Get: %v", err)
	}
	return s
}

func (h *harness) wantStep(want session.Step) {
	h.t.Helper()
	if got := h.session().Step; got != want {
		h.t.Errorf("step = %s, want %s", got, want)
	}
}

func (h *harness) last() OutboundMessage {
	h.t.Helper()
	msg, ok := h.adapter.LastSent()
	if !ok {
		h.t.Fatal("no message sent")
	}
	return msg
}

// texts returns the text of every sent message.
func (h *harness) texts() []string {
	var out []string
	for _, m := range h.adapter.AllSent() {
		out = append(out, m.Text)
	}
	return out
}

// sentContaining counts sent messages whose text contains substr.
func (h *harness) sentContaining(substr string) int {
	n := 0
	for _, s := range h.texts() {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

// hasButton reports whether keyboard carries a button with the action.
func hasButton(keyboard [][]Button, a Action) bool {
	for _, row := range keyboard {
		for _, b := range row {
			if b.Action == a.String() {
				return true
			}
		}
	}
	return false
}

func customers(names ...string) []backend.Customer {
	out := make([]backend.Customer, len(names))
	for i, n := range names {
		out[i] = backend.Customer{
			Name:      n,
			PPPoEUser: strings.ToLower(strings.ReplaceAll(n, " ", ".")),
			OLT:       "OLT-A",
			Interface: fmt.Sprintf("0/1/%d", i+1),
		}
	}
	return out
}

var errBoom = errors.New("boom")
