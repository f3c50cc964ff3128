package application_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockResidentStore struct {
	residents   map[int64]model.Resident
	nextID      int64
	batches     int
	rotated     int
	rotateErr   error
	createdRows []model.Resident
}

func newMockResidentStore(residents ...model.Resident) *mockResidentStore {
	m := &mockResidentStore{residents: make(map[int64]model.Resident)}
	for _, r := range residents {
		m.residents[r.ID] = r
		if r.ID > m.nextID {
			m.nextID = r.ID
		}
	}
	return m
}

func (m *mockResidentStore) Create(_ context.Context, r model.Resident) (int64, error) {
	m.nextID++
	r.ID = m.nextID
	m.residents[r.ID] = r
	m.createdRows = append(m.createdRows, r)
	return r.ID, nil
}

func (m *mockResidentStore) CreateBatch(ctx context.Context, rs []model.Resident) ([]int64, error) {
	m.batches++
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		id, _ := m.Create(ctx, r)
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockResidentStore) Update(_ context.Context, r model.Resident) error {
	if _, ok := m.residents[r.ID]; !ok {
		return model.NotFound("update resident", "resident %d not found", r.ID)
	}
	m.residents[r.ID] = r
	return nil
}

func (m *mockResidentStore) UpdateBatch(ctx context.Context, rs []model.Resident) error {
	m.batches++
	for _, r := range rs {
		if _, ok := m.residents[r.ID]; !ok {
			return model.NotFound("update resident", "resident %d not found", r.ID)
		}
	}
	for _, r := range rs {
		m.residents[r.ID] = r
	}
	return nil
}

func (m *mockResidentStore) Get(_ context.Context, id int64) (*model.Resident, error) {
	r, ok := m.residents[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockResidentStore) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.residents[id]
	return ok, nil
}

func (m *mockResidentStore) ListAll(_ context.Context) ([]model.Resident, []model.RowError, error) {
	var out []model.Resident
	for _, r := range m.residents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil, nil
}

func (m *mockResidentStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.residents[id]; !ok {
		return model.NotFound("delete resident", "resident %d not found", id)
	}
	delete(m.residents, id)
	return nil
}

func (m *mockResidentStore) Rotate(_ context.Context) (int, error) {
	return m.rotated, m.rotateErr
}

type mockCredentialStore struct {
	byEmail     map[string]model.Credential
	emailLookup [][]int64
	emailErr    error
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{byEmail: make(map[string]model.Credential)}
	for _, c := range creds {
		m.byEmail[c.Email] = c
	}
	return m
}

func (m *mockCredentialStore) Create(_ context.Context, c model.Credential) error {
	m.byEmail[c.Email] = c
	return nil
}

func (m *mockCredentialStore) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	c, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCredentialStore) update(op, email string, fn func(*model.Credential)) error {
	c, ok := m.byEmail[email]
	if !ok {
		return model.NotFound(op, "no credential for %s", email)
	}
	fn(&c)
	m.byEmail[email] = c
	return nil
}

func (m *mockCredentialStore) UpdateCode(_ context.Context, email string, code int) error {
	return m.update("update code", email, func(c *model.Credential) { c.Code = code })
}

func (m *mockCredentialStore) UpdatePassword(_ context.Context, email, hash string) error {
	return m.update("update password", email, func(c *model.Credential) { c.PasswordHash = hash })
}

func (m *mockCredentialStore) MarkVerified(_ context.Context, email string) error {
	return m.update("mark verified", email, func(c *model.Credential) { c.Verified = true })
}

func (m *mockCredentialStore) ListAll(_ context.Context) ([]model.Credential, error) {
	var out []model.Credential
	for _, c := range m.byEmail {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResidentID < out[j].ResidentID })
	return out, nil
}

func (m *mockCredentialStore) EmailsByResident(_ context.Context, ids []int64) (map[int64]string, error) {
	m.emailLookup = append(m.emailLookup, ids)
	if m.emailErr != nil {
		return nil, m.emailErr
	}
	out := make(map[int64]string)
	for _, c := range m.byEmail {
		for _, id := range ids {
			if c.ResidentID == id {
				out[id] = c.Email
			}
		}
	}
	return out, nil
}

type mockTransactionStore struct {
	live      map[int64]model.CertificateTransaction
	history   map[int64]model.CertificateTransaction
	failed    []model.RowError
	nextID    int64
	updates   []driven.StatusUpdate
	archived  []int64
	purged    int64
	rotated   int
	updateErr error
	// afterRead runs once, right after the next per-resident listing read.
	afterRead func()
}

func newMockTransactionStore(txs ...model.CertificateTransaction) *mockTransactionStore {
	m := &mockTransactionStore{
		live:    make(map[int64]model.CertificateTransaction),
		history: make(map[int64]model.CertificateTransaction),
	}
	for _, t := range txs {
		if t.Version == 0 {
			t.Version = 1
		}
		if t.Archived {
			m.history[t.ID] = t
		} else {
			m.live[t.ID] = t
		}
		if t.ID > m.nextID {
			m.nextID = t.ID
		}
	}
	return m
}

func (m *mockTransactionStore) Create(_ context.Context, t model.CertificateTransaction) (int64, error) {
	m.nextID++
	t.ID = m.nextID
	t.Version = 1
	m.live[t.ID] = t
	return t.ID, nil
}

func (m *mockTransactionStore) Get(_ context.Context, id int64) (*model.CertificateTransaction, error) {
	t, ok := m.live[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockTransactionStore) GetArchived(_ context.Context, id int64) (*model.CertificateTransaction, error) {
	t, ok := m.history[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockTransactionStore) UpdateStatus(_ context.Context, u driven.StatusUpdate) (int64, error) {
	m.updates = append(m.updates, u)
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	t, ok := m.live[u.ID]
	if !ok {
		return 0, model.NotFound("update status", "transaction %d not found", u.ID)
	}
	if u.ExpectedVersion != 0 && u.ExpectedVersion != t.Version {
		return 0, &model.Error{Kind: model.ErrConflict, Op: "update status"}
	}
	t.Status = u.Status
	if u.DateIssued != nil {
		t.DateIssued = u.DateIssued
	}
	t.Version++
	m.live[u.ID] = t
	return t.Version, nil
}

func (m *mockTransactionStore) Archive(_ context.Context, id int64) error {
	t, ok := m.live[id]
	if !ok {
		return model.NotFound("archive transaction", "transaction %d not found", id)
	}
	t.Archived = true
	m.history[id] = t
	delete(m.live, id)
	m.archived = append(m.archived, id)
	return nil
}

func page(src map[int64]model.CertificateTransaction, residentID int64, failed []model.RowError) model.TransactionPage {
	var p model.TransactionPage
	for _, t := range src {
		if residentID == 0 || t.ResidentID == residentID {
			p.Transactions = append(p.Transactions, t)
		}
	}
	sort.Slice(p.Transactions, func(i, j int) bool { return p.Transactions[i].ID < p.Transactions[j].ID })
	p.Failed = failed
	return p
}

func (m *mockTransactionStore) ListLive(_ context.Context) (model.TransactionPage, error) {
	return page(m.live, 0, m.failed), nil
}

// ListByResident snapshots both tables before running afterRead, the way a
// single statement would.
func (m *mockTransactionStore) ListByResident(_ context.Context, residentID int64) (model.TransactionPage, error) {
	p := page(m.live, residentID, nil)
	h := page(m.history, residentID, m.failed)
	p.Transactions = append(p.Transactions, h.Transactions...)
	p.Failed = h.Failed
	sort.Slice(p.Transactions, func(i, j int) bool { return p.Transactions[i].ID < p.Transactions[j].ID })
	m.runAfterRead()
	return p, nil
}

func (m *mockTransactionStore) runAfterRead() {
	if m.afterRead != nil {
		fn := m.afterRead
		m.afterRead = nil
		fn()
	}
}

func (m *mockTransactionStore) ListHistory(_ context.Context) (model.TransactionPage, error) {
	return page(m.history, 0, nil), nil
}

func (m *mockTransactionStore) ListHistoryByResident(_ context.Context, residentID int64) (model.TransactionPage, error) {
	p := page(m.history, residentID, m.failed)
	m.runAfterRead()
	return p, nil
}

func (m *mockTransactionStore) PurgeHistory(_ context.Context) (int64, error) {
	n := int64(len(m.history))
	m.history = make(map[int64]model.CertificateTransaction)
	m.purged += n
	return n, nil
}

func (m *mockTransactionStore) Rotate(_ context.Context) (int, error) {
	return m.rotated, nil
}

type mockQueue struct {
	mu    sync.Mutex
	items []model.Notification
	err   error
}

func (m *mockQueue) Enqueue(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, n)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context) (model.Notification, error) {
	<-ctx.Done()
	return model.Notification{}, ctx.Err()
}

func (m *mockQueue) sent() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Notification(nil), m.items...)
}

type mockRenderer struct {
	specs     map[string]model.TemplateSpec
	gotFields map[string]string
	err       error
}

func (m *mockRenderer) Template(name string) (model.TemplateSpec, error) {
	spec, ok := m.specs[name]
	if !ok {
		return model.TemplateSpec{}, fmt.Errorf("%w: %s", driven.ErrTemplateNotFound, name)
	}
	return spec, nil
}

func (m *mockRenderer) Render(_ context.Context, name string, fields map[string]string) ([]byte, string, error) {
	m.gotFields = fields
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("rendered:" + name), "application/test", nil
}

type mockDocumentStore struct {
	keys   []string
	putErr error
}

func (m *mockDocumentStore) Put(_ context.Context, key string, _ []byte, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.keys = append(m.keys, key)
	return nil
}

func (m *mockDocumentStore) URL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://docs.example.gov/%s?ttl=%s", key, ttl), nil
}

type plainFormatter struct{}

func (plainFormatter) Date(t time.Time) string      { return t.Format("2006-01-02") }
func (plainFormatter) Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
