package analysis

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"solarscan/internal/types"
)

// Registration carries the caller-supplied fields of a new request.
type Registration struct {
	Address      string
	BuildingType types.BuildingType
	Email        string
}

type record struct {
	req  types.AnalysisRequest
	done chan struct{}
}

// live reports whether the record should absorb a new submission with the
// same fingerprint. Failed and expired records never do.
func (r *record) live(now time.Time) bool {
	switch r.req.Status {
	case types.StatusPending, types.StatusProcessing:
		return true
	case types.StatusCompleted:
		return !r.expired(now)
	}
	return false
}

// addRecipient must be called with the store mutex held.
func (r *record) addRecipient(email string) bool {
	if email == "" || slices.Contains(r.req.Recipients, email) {
		return false
	}
	r.req.Recipients = append(r.req.Recipients, email)
	return true
}

func (r *record) expired(now time.Time) bool {
	return r.req.ExpiresAt != nil && !now.Before(*r.req.ExpiresAt)
}

// Store is the fingerprint registry and result cache. It is the only shared
// mutable state of the pipeline and every method holds a single mutex, so
// Register is an atomic check-and-insert.
//
// byFingerprint points at the newest record for a fingerprint. A replaced
// failed record stays reachable through byID until its own expiry so that
// callers polling the old id still see the failure.
type Store struct {
	mu            sync.Mutex
	byFingerprint map[string]*record
	byID          map[string]*record

	clock     types.Clock
	resultTTL time.Duration
	failedTTL time.Duration
	newID     func() string
}

// NewStore creates an empty store.
func NewStore(clock types.Clock, resultTTL, failedTTL time.Duration) *Store {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Store{
		byFingerprint: make(map[string]*record),
		byID:          make(map[string]*record),
		clock:         clock,
		resultTTL:     resultTTL,
		failedTTL:     failedTTL,
		newID:         uuid.NewString,
	}
}

// Register returns the live record for fingerprint when one exists, or inserts
// a fresh pending record. created is false when an existing record was
// returned. joined is true when in.Email was added to the recipients of an
// existing record; for a completed record that recipient has not been
// notified yet.
func (s *Store) Register(fingerprint string, in Registration) (snap types.AnalysisRequest, created, joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if rec, ok := s.byFingerprint[fingerprint]; ok && rec.live(now) {
		joined = rec.addRecipient(in.Email)
		return snapshot(rec), false, joined
	}

	rec := &record{
		req: types.AnalysisRequest{
			ID:           s.newID(),
			Fingerprint:  fingerprint,
			BuildingType: in.BuildingType,
			Address:      in.Address,
			Email:        in.Email,
			Status:       types.StatusPending,
			CreatedAt:    now,
		},
		done: make(chan struct{}),
	}
	rec.addRecipient(in.Email)
	s.byFingerprint[fingerprint] = rec
	s.byID[rec.req.ID] = rec
	return snapshot(rec), true, false
}

// HasLive reports whether fingerprint currently has a live record.
func (s *Store) HasLive(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byFingerprint[fingerprint]
	return ok && rec.live(s.clock.Now())
}

// Restore adopts an archived completed snapshot as the record for its
// fingerprint. It is a no-op when a live record already exists or the
// snapshot is not an unexpired completion.
func (s *Store) Restore(req types.AnalysisRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if cur, ok := s.byFingerprint[req.Fingerprint]; ok && cur.live(now) {
		return
	}
	if req.Status != types.StatusCompleted || req.Result == nil {
		return
	}
	req.Recipients = nil
	rec := &record{req: req, done: make(chan struct{})}
	if rec.expired(now) {
		return
	}
	close(rec.done)
	s.byFingerprint[req.Fingerprint] = rec
	s.byID[req.ID] = rec
}

// Abort removes a pending record that was registered but never enqueued.
func (s *Store) Abort(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || rec.req.Status != types.StatusPending {
		return
	}
	delete(s.byID, id)
	if cur, ok := s.byFingerprint[rec.req.Fingerprint]; ok && cur == rec {
		delete(s.byFingerprint, rec.req.Fingerprint)
	}
	close(rec.done)
}

// MarkProcessing moves a pending record to processing.
func (s *Store) MarkProcessing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	if rec.req.Status != types.StatusPending {
		return transitionError(rec.req.Status, types.StatusProcessing)
	}
	rec.req.Status = types.StatusProcessing
	return nil
}

// Complete attaches result to a processing record and starts its TTL.
func (s *Store) Complete(id string, result *types.AnalysisResult) (types.AnalysisRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return types.AnalysisRequest{}, err
	}
	if rec.req.Status != types.StatusProcessing {
		return types.AnalysisRequest{}, transitionError(rec.req.Status, types.StatusCompleted)
	}
	now := s.clock.Now()
	expires := now.Add(s.resultTTL)
	rec.req.Status = types.StatusCompleted
	rec.req.Result = result
	rec.req.CompletedAt = &now
	rec.req.ExpiresAt = &expires
	close(rec.done)
	return snapshot(rec), nil
}

// Fail records f on a pending or processing record.
func (s *Store) Fail(id string, f types.Failure) (types.AnalysisRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return types.AnalysisRequest{}, err
	}
	if rec.req.Status.IsTerminal() {
		return types.AnalysisRequest{}, transitionError(rec.req.Status, types.StatusFailed)
	}
	now := s.clock.Now()
	expires := now.Add(s.failedTTL)
	rec.req.Status = types.StatusFailed
	rec.req.Failure = &f
	rec.req.CompletedAt = &now
	rec.req.ExpiresAt = &expires
	close(rec.done)
	return snapshot(rec), nil
}

// Get returns the current snapshot of a request. Expired records are dropped
// on access.
func (s *Store) Get(id string) (types.AnalysisRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return types.AnalysisRequest{}, false
	}
	if rec.expired(s.clock.Now()) {
		s.remove(rec)
		return types.AnalysisRequest{}, false
	}
	return snapshot(rec), true
}

// Wait blocks until the request reaches a terminal state or ctx is done and
// returns the latest snapshot. The error is ctx.Err() when ctx ended first.
func (s *Store) Wait(ctx context.Context, id string) (types.AnalysisRequest, error) {
	s.mu.Lock()
	rec, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return types.AnalysisRequest{}, notFound(id)
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(rec), ctx.Err()
}

// Completed calls fn for every unexpired completed result, one per
// fingerprint.
func (s *Store) Completed(fn func(req types.AnalysisRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, rec := range s.byFingerprint {
		if rec.req.Status == types.StatusCompleted && !rec.expired(now) {
			fn(snapshot(rec))
		}
	}
}

// Sweep drops every expired record and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for _, rec := range s.byID {
		if rec.expired(now) {
			s.remove(rec)
			removed++
		}
	}
	return removed
}

// Len reports the number of records addressable by id.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) lookup(id string) (*record, error) {
	rec, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return rec, nil
}

// remove must be called with mu held.
func (s *Store) remove(rec *record) {
	delete(s.byID, rec.req.ID)
	if cur, ok := s.byFingerprint[rec.req.Fingerprint]; ok && cur == rec {
		delete(s.byFingerprint, rec.req.Fingerprint)
	}
}

// snapshot copies the request so callers never observe later transitions.
// The result itself is shared; it is immutable once assembled.
func snapshot(rec *record) types.AnalysisRequest {
	req := rec.req
	if req.CompletedAt != nil {
		t := *req.CompletedAt
		req.CompletedAt = &t
	}
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		req.ExpiresAt = &t
	}
	if req.Failure != nil {
		f := *req.Failure
		req.Failure = &f
	}
	req.Recipients = slices.Clone(req.Recipients)
	return req
}

func notFound(id string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundAnalysis, "analysis request not found", nil,
		map[string]any{"request_id": id})
}

func transitionError(from, to types.AnalysisStatus) error {
	return types.NewAppErrorWithDetails(types.ErrCodeConflictState, "invalid request state transition", nil,
		map[string]any{"from": string(from), "to": string(to)})
}
