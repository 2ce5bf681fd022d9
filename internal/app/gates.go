package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/quality"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// Wire shapes of the gate operations.
type (
	OpenGateRequest = types.OpenGateRequest
	SampleBatch     = types.SampleBatch
	SealRequest     = types.SealRequest
	GateStatus      = types.GateStatus
)

type gateEntry struct {
	mu      sync.Mutex
	session model.MeasurementSession
	gate    *quality.Gate
	window  *quality.Window
	readyAt *time.Time
	stop    context.CancelFunc
	done    chan struct{}
}

type gateRegistry struct {
	mu       sync.Mutex
	entries  map[string]*gateEntry
	accounts map[string]struct{}
	clock    quality.Clock
	log      logger.Logger
}

func newGateRegistry(clock quality.Clock, log logger.Logger) *gateRegistry {
	return &gateRegistry{
		entries:  make(map[string]*gateEntry),
		accounts: make(map[string]struct{}),
		clock:    clock,
		log:      log,
	}
}

func (r *gateRegistry) get(id string) (*gateEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *gateRegistry) add(id string, e *gateEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = e
	metrics.UpdateActiveGates(len(r.entries))
	return true
}

func (r *gateRegistry) remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	metrics.UpdateActiveGates(len(r.entries))
	r.mu.Unlock()
	if ok {
		e.halt()
	}
}

func (r *gateRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// firstSight reports whether account was never seen by this registry.
func (r *gateRegistry) firstSight(account string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account]; ok {
		return false
	}
	r.accounts[account] = struct{}{}
	return true
}

func (r *gateRegistry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*gateEntry)
	metrics.UpdateActiveGates(0)
	r.mu.Unlock()
	for _, e := range entries {
		e.halt()
	}
}

// watch starts a monitor for e. The caller holds e.mu.
func (r *gateRegistry) watch(ctx context.Context, e *gateEntry) {
	ctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stop, e.done = stop, done
	id := e.session.SessionID

	mon := quality.NewMonitor(e.gate, e.window,
		quality.WithClock(r.clock),
		quality.WithMonitorLogger(r.log.Named(id)),
		quality.WithOnReady(func(_ model.StabilityState, _ model.QualitySnapshot) {
			at := r.clock.Now().UTC()
			e.mu.Lock()
			e.readyAt = &at
			e.mu.Unlock()
		}))
	go func() {
		defer close(done)
		_ = mon.Run(ctx)
	}()
}

// halt stops the monitor and waits for it to exit.
func (e *gateEntry) halt() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

func (e *gateEntry) status(recording time.Duration) GateStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := GateStatus{
		SessionID: e.session.SessionID,
		Profile:   e.gate.Profile().Name(),
		State:     e.gate.State(),
		Snapshot:  e.gate.LastSnapshot(),
		Samples:   e.window.Samples(),
		Ready:     e.readyAt != nil,
	}
	if e.readyAt != nil {
		ready := *e.readyAt
		sealable := ready.Add(recording)
		st.ReadyAt, st.SealableAt = &ready, &sealable
	}
	return st
}

// OpenGate stores an open session and starts evaluating its quality stream.
func (s *Service) OpenGate(ctx context.Context, req OpenGateRequest) (GateStatus, error) {
	if err := s.ready(); err != nil {
		return GateStatus{}, err
	}
	if strings.TrimSpace(req.OwnerUserID) == "" {
		return GateStatus{}, fmt.Errorf("%w: ownerUserId is required", ErrInvalidArgument)
	}
	if req.RequiredSeconds < 0 {
		return GateStatus{}, fmt.Errorf("%w: requiredSeconds must not be negative", ErrInvalidArgument)
	}

	profile := s.profile
	if req.Profile != "" || req.Expression != "" {
		p, err := quality.ResolveProfile(req.Profile, req.Expression)
		if err != nil {
			return GateStatus{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		profile = p
	}
	required := s.cfg.StabilityRequiredSeconds
	if req.RequiredSeconds > 0 {
		required = req.RequiredSeconds
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if existing, err := s.store.GetSession(ctx, id); err == nil && existing.IsSealed() {
		return GateStatus{}, fmt.Errorf("%w: %s", model.ErrSessionSealed, id)
	} else if err != nil && !isNotFound(err) {
		return GateStatus{}, err
	}

	e := &gateEntry{
		session: model.MeasurementSession{
			SessionID:      id,
			OwnerUserID:    req.OwnerUserID,
			OrganizationID: req.OrganizationID,
			StartedAt:      s.now(),
		},
		gate:   quality.NewGate(profile, quality.WithRequiredSeconds(required)),
		window: quality.NewWindow(quality.WithWindowSize(s.cfg.QualityWindowSize)),
	}
	if !s.gates.add(id, e) {
		return GateStatus{}, fmt.Errorf("%w: %s", ErrGateExists, id)
	}
	if err := s.store.PutSession(ctx, e.session); err != nil {
		s.gates.remove(id)
		return GateStatus{}, fmt.Errorf("storing session %s: %w", id, err)
	}
	s.grantStartingCredit(ctx, e.session.AccountID())

	e.mu.Lock()
	s.gates.watch(s.runCtx, e)
	e.mu.Unlock()

	s.logger.Info(ctx, "quality gate opened",
		logger.String("session_id", id),
		logger.String("profile", profile.Name()),
		logger.Int("required_seconds", required))
	return e.status(s.cfg.RecordingDuration()), nil
}

func (s *Service) grantStartingCredit(ctx context.Context, account string) {
	if s.cfg.DefaultAccountCredit <= 0 || !s.gates.firstSight(account) {
		return
	}
	if balance, err := s.ledger.Balance(ctx, account); err != nil || balance > 0 {
		return
	}
	if _, err := s.ledger.TopUp(ctx, account, s.cfg.DefaultAccountCredit); err != nil {
		s.logger.Warn(ctx, "granting starting credit", logger.String("account", account), logger.Error(err))
	}
}

// AddSamples feeds a batch into the gate's window.
func (s *Service) AddSamples(ctx context.Context, sessionID string, batch SampleBatch) (GateStatus, error) {
	if err := s.ready(); err != nil {
		return GateStatus{}, err
	}
	e, ok := s.gates.get(sessionID)
	if !ok {
		return GateStatus{}, fmt.Errorf("%w: %s", ErrGateNotFound, sessionID)
	}
	if err := batch.Validate(); err != nil {
		return GateStatus{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if batch.Contacted != nil {
		e.window.SetContact(*batch.Contacted)
	}
	for _, sample := range batch.Samples {
		e.window.Add(sample)
	}
	return e.status(s.cfg.RecordingDuration()), nil
}

// GateState returns the gate's current status.
func (s *Service) GateState(_ context.Context, sessionID string) (GateStatus, error) {
	if err := s.ready(); err != nil {
		return GateStatus{}, err
	}
	e, ok := s.gates.get(sessionID)
	if !ok {
		return GateStatus{}, fmt.Errorf("%w: %s", ErrGateNotFound, sessionID)
	}
	return e.status(s.cfg.RecordingDuration()), nil
}

// ReopenGate resets stability tracking, e.g. after the headset was adjusted.
func (s *Service) ReopenGate(ctx context.Context, sessionID string) (GateStatus, error) {
	if err := s.ready(); err != nil {
		return GateStatus{}, err
	}
	e, ok := s.gates.get(sessionID)
	if !ok {
		return GateStatus{}, fmt.Errorf("%w: %s", ErrGateNotFound, sessionID)
	}
	e.halt()
	e.mu.Lock()
	e.gate.Reopen()
	e.readyAt = nil
	s.gates.watch(s.runCtx, e)
	e.mu.Unlock()

	s.logger.Info(ctx, "quality gate reopened", logger.String("session_id", sessionID))
	return e.status(s.cfg.RecordingDuration()), nil
}

// SealSession finalizes a recording once its gate fired and the recording
// window elapsed. The sealed session becomes eligible for analysis.
func (s *Service) SealSession(ctx context.Context, sessionID string, req SealRequest) (model.MeasurementSession, error) {
	if err := s.ready(); err != nil {
		return model.MeasurementSession{}, err
	}
	e, ok := s.gates.get(sessionID)
	if !ok {
		if stored, err := s.store.GetSession(ctx, sessionID); err == nil && stored.IsSealed() {
			return model.MeasurementSession{}, fmt.Errorf("%w: %s", model.ErrSessionSealed, sessionID)
		}
		return model.MeasurementSession{}, fmt.Errorf("%w: %s", ErrGateNotFound, sessionID)
	}

	e.mu.Lock()
	if e.readyAt == nil {
		e.mu.Unlock()
		return model.MeasurementSession{}, fmt.Errorf("%w: %s", ErrGateNotReady, sessionID)
	}
	now := s.now()
	sealable := e.readyAt.Add(s.cfg.RecordingDuration())
	if now.Before(sealable) {
		e.mu.Unlock()
		return model.MeasurementSession{}, fmt.Errorf("%w: %s until %s", ErrRecordingActive, sessionID, sealable.Format(time.RFC3339))
	}
	session := e.session.Clone()
	session.EEGSummary = req.EEGSummary
	session.PPGSummary = req.PPGSummary
	session.AccSummary = req.AccSummary
	session.QualitySummary = e.gate.LastSnapshot()
	session.DurationSeconds = int(now.Sub(*e.readyAt) / time.Second)
	e.mu.Unlock()

	sealed := session.Seal(now)
	if err := s.store.PutSession(ctx, sealed); err != nil {
		if errors.Is(err, model.ErrSessionSealed) {
			return model.MeasurementSession{}, err
		}
		return model.MeasurementSession{}, fmt.Errorf("storing sealed session %s: %w", sessionID, err)
	}
	s.gates.remove(sessionID)

	s.logger.Info(ctx, "session sealed",
		logger.String("session_id", sessionID),
		logger.Int("duration_seconds", sealed.DurationSeconds),
		logger.Float64("overall_quality", sealed.QualitySummary.Overall))
	return sealed, nil
}

// GetSession returns a stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (model.MeasurementSession, error) {
	if err := s.ready(); err != nil {
		return model.MeasurementSession{}, err
	}
	return s.store.GetSession(ctx, sessionID)
}
