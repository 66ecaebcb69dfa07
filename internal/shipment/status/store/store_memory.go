package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"freightdesk/internal/shipment/status"
	"freightdesk/internal/shipment/status/service"
	"freightdesk/pkg/platform/sentinel"
)

// ShipmentSeed seeds the in-memory store with raw stored facts. Date fields
// are the stored text form, so tests can exercise the parse-failure-as-absence
// rule directly.
type ShipmentSeed struct {
	ID                   string
	BLNo                 string
	ETA                  string
	AgreedShippingDate   string
	CustomsClearanceDate string
	TransportAssigned    bool
	WarehouseConfirmed   bool
	WarehouseHasIssues   bool
	LegacyConfirmed      bool
	LegacyHasIssues      bool
	Status               status.Status
	Deleted              bool
}

type shipRow struct {
	seed         ShipmentSeed
	reasonEN     string
	reasonZH     string
	calculatedAt *time.Time
	override     *status.Override
	notes        string
	confirmedBy  string
	confirmedAt  *time.Time
	updatedAt    time.Time
}

// InMemoryStore is the test double for the Postgres store. It implements both
// the store surface and the transaction boundary; RunInTx takes a coarse lock
// and restores a copy of the state when the closure fails, mimicking a
// rollback.
type InMemoryStore struct {
	mu    sync.Mutex
	rows  map[string]*shipRow
	audit []status.AuditEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]*shipRow)}
}

// Add seeds one shipment. Status defaults to planning.
func (s *InMemoryStore) Add(seed ShipmentSeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seed.Status == "" {
		seed.Status = status.StatusPlanning
	}
	s.rows[seed.ID] = &shipRow{seed: seed, updatedAt: time.Now()}
}

// SetFacts replaces the stored facts of an existing shipment, simulating an
// API field update.
func (s *InMemoryStore) SetFacts(id string, mutate func(*ShipmentSeed)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		mutate(&row.seed)
		row.updatedAt = time.Now()
	}
}

// AuditEntries returns the appended audit rows for one shipment.
func (s *InMemoryStore) AuditEntries(id string) []status.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []status.AuditEntry
	for _, e := range s.audit {
		if e.ShipmentID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backupRows := make(map[string]*shipRow, len(s.rows))
	for k, v := range s.rows {
		cp := *v
		backupRows[k] = &cp
	}
	backupAudit := append([]status.AuditEntry{}, s.audit...)

	if err := fn(ctx, unlocked{s}); err != nil {
		s.rows = backupRows
		s.audit = backupAudit
		return err
	}
	return nil
}

// unlocked exposes the store surface without re-acquiring the mutex; only
// handed out inside RunInTx, which already holds it.
type unlocked struct{ s *InMemoryStore }

func (u unlocked) LoadSnapshot(ctx context.Context, id string) (status.Snapshot, error) {
	return u.s.loadSnapshot(id)
}
func (u unlocked) GetRecord(ctx context.Context, id string) (status.Record, error) {
	return u.s.getRecord(id)
}
func (u unlocked) UpdateStatus(ctx context.Context, id string, st status.Status, en, zh string, at time.Time) error {
	return u.s.updateStatus(id, st, en, zh, at)
}
func (u unlocked) RefreshReason(ctx context.Context, id, en, zh string, at time.Time) error {
	return u.s.refreshReason(id, en, zh, at)
}
func (u unlocked) SetOverride(ctx context.Context, id string, st status.Status, ov status.Override) error {
	return u.s.setOverride(id, st, ov)
}
func (u unlocked) ClearOverride(ctx context.Context, id string) error {
	return u.s.clearOverride(id)
}
func (u unlocked) SetReceiptConfirmation(ctx context.Context, id string, hasIssues bool, notes, actor string, at time.Time) error {
	return u.s.setReceiptConfirmation(id, hasIssues, notes, actor, at)
}
func (u unlocked) AppendAudit(ctx context.Context, entry status.AuditEntry) error {
	u.s.audit = append(u.s.audit, entry)
	return nil
}
func (u unlocked) ListReconcileCandidates(ctx context.Context, today time.Time, limit int) ([]string, error) {
	return u.s.listCandidates(today, limit)
}

// The locked variants below implement service.Store for direct (non-tx) use.

func (s *InMemoryStore) LoadSnapshot(_ context.Context, id string) (status.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSnapshot(id)
}

func (s *InMemoryStore) GetRecord(_ context.Context, id string) (status.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRecord(id)
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id string, st status.Status, en, zh string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStatus(id, st, en, zh, at)
}

func (s *InMemoryStore) RefreshReason(_ context.Context, id, en, zh string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshReason(id, en, zh, at)
}

func (s *InMemoryStore) SetOverride(_ context.Context, id string, st status.Status, ov status.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setOverride(id, st, ov)
}

func (s *InMemoryStore) ClearOverride(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearOverride(id)
}

func (s *InMemoryStore) SetReceiptConfirmation(_ context.Context, id string, hasIssues bool, notes, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setReceiptConfirmation(id, hasIssues, notes, actor, at)
}

func (s *InMemoryStore) AppendAudit(_ context.Context, entry status.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *InMemoryStore) ListReconcileCandidates(_ context.Context, today time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCandidates(today, limit)
}

func (s *InMemoryStore) row(id string) (*shipRow, error) {
	row, ok := s.rows[id]
	if !ok || row.seed.Deleted {
		return nil, sentinel.ErrNotFound
	}
	return row, nil
}

func (s *InMemoryStore) loadSnapshot(id string) (status.Snapshot, error) {
	row, err := s.row(id)
	if err != nil {
		return status.Snapshot{}, err
	}
	snap := status.Snapshot{
		ShipmentID:           id,
		BillOfLadingNo:       row.seed.BLNo,
		ETA:                  status.ParseDate(row.seed.ETA),
		AgreedShippingDate:   status.ParseDate(row.seed.AgreedShippingDate),
		CustomsClearanceDate: status.ParseDate(row.seed.CustomsClearanceDate),
		TransportAssigned:    row.seed.TransportAssigned,
	}
	return status.ConfirmedSnapshot(snap, normalizeReceipt(
		row.seed.WarehouseConfirmed, row.seed.WarehouseHasIssues,
		row.seed.LegacyConfirmed, row.seed.LegacyHasIssues,
	)), nil
}

func (s *InMemoryStore) getRecord(id string) (status.Record, error) {
	row, err := s.row(id)
	if err != nil {
		return status.Record{}, err
	}
	rc := normalizeReceipt(
		row.seed.WarehouseConfirmed, row.seed.WarehouseHasIssues,
		row.seed.LegacyConfirmed, row.seed.LegacyHasIssues,
	)
	rec := status.Record{
		ShipmentID:       id,
		Status:           row.seed.Status,
		ReasonEN:         row.reasonEN,
		ReasonZH:         row.reasonZH,
		CalculatedAt:     row.calculatedAt,
		ReceiptConfirmed: rc.Confirmed,
		ReceiptHasIssues: rc.HasIssues,
	}
	if row.override != nil {
		cp := *row.override
		rec.Override = &cp
	}
	return rec, nil
}

func (s *InMemoryStore) updateStatus(id string, st status.Status, en, zh string, at time.Time) error {
	row, err := s.row(id)
	if err != nil {
		return err
	}
	row.seed.Status = st
	row.reasonEN, row.reasonZH = en, zh
	row.calculatedAt = &at
	row.updatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) refreshReason(id, en, zh string, at time.Time) error {
	row, err := s.row(id)
	if err != nil {
		return err
	}
	row.reasonEN, row.reasonZH = en, zh
	row.calculatedAt = &at
	return nil
}

func (s *InMemoryStore) setOverride(id string, st status.Status, ov status.Override) error {
	row, err := s.row(id)
	if err != nil {
		return err
	}
	row.seed.Status = st
	cp := ov
	row.override = &cp
	row.updatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) clearOverride(id string) error {
	row, err := s.row(id)
	if err != nil {
		return err
	}
	row.override = nil
	row.updatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) setReceiptConfirmation(id string, hasIssues bool, notes, actor string, at time.Time) error {
	row, err := s.row(id)
	if err != nil {
		return err
	}
	row.seed.WarehouseConfirmed = true
	row.seed.WarehouseHasIssues = hasIssues
	row.notes = notes
	row.confirmedBy = actor
	row.confirmedAt = &at
	row.updatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) listCandidates(today time.Time, limit int) ([]string, error) {
	day := status.FormatDate(today)
	type cand struct {
		id        string
		updatedAt time.Time
	}
	var cands []cand
	for id, row := range s.rows {
		if row.seed.Deleted || row.override != nil {
			continue
		}
		eligible := false
		switch row.seed.Status {
		case status.StatusPlanning:
			eligible = row.seed.AgreedShippingDate != "" && row.seed.AgreedShippingDate < day
		case status.StatusSailed:
			eligible = row.seed.ETA != "" && row.seed.ETA <= day
		case status.StatusDelayed:
			eligible = true
		}
		if eligible {
			cands = append(cands, cand{id: id, updatedAt: row.updatedAt})
		}
	}
	// Most recently updated first, matching the Postgres ordering.
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].updatedAt.After(cands[j].updatedAt)
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	return ids, nil
}
