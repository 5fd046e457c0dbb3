package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hwlab/inventory/internal/core/domain"
	"github.com/hwlab/inventory/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const (
	minHardwareNameLen = 3
	maxHardwareNameLen = 100
	maxTotalCapacity   = 10000

	capacityUpdateAttempts = 3
)

// ReservationService owns the checkout/check-in flow. Atomicity of each
// mutation lives in the repository transaction; the service validates input,
// re-checks project membership, deduplicates requests and emits audit events
// for committed mutations.
type ReservationService struct {
	inventory port.InventoryRepository
	cache     port.CacheRepository
	projects  port.ProjectDirectory
	events    chan domain.LedgerEvent
}

func NewReservationService(inventory port.InventoryRepository, cache port.CacheRepository, projects port.ProjectDirectory, queueSize int) *ReservationService {
	return &ReservationService{
		inventory: inventory,
		cache:     cache,
		projects:  projects,
		events:    make(chan domain.LedgerEvent, queueSize),
	}
}

type CheckoutRequest struct {
	RequestID    string
	Username     string
	ProjectID    string
	HardwareName string
	Quantity     int
}

func (r CheckoutRequest) validate() error {
	if r.RequestID == "" || r.Username == "" || r.ProjectID == "" || r.HardwareName == "" {
		return domain.ErrInvalidRequest
	}
	if r.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

type CheckinRequest struct {
	RequestID    string
	Username     string
	ProjectID    string
	HardwareName string
	Quantity     int
}

func (r CheckinRequest) validate() error {
	if r.RequestID == "" || r.Username == "" || r.ProjectID == "" || r.HardwareName == "" {
		return domain.ErrInvalidRequest
	}
	if r.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

type CreateHardwareSetRequest struct {
	Name          string
	Description   string
	TotalCapacity int
}

func (r CreateHardwareSetRequest) validate() error {
	if len(r.Name) < minHardwareNameLen || len(r.Name) > maxHardwareNameLen {
		return domain.ErrInvalidHardwareName
	}
	if r.TotalCapacity <= 0 || r.TotalCapacity > maxTotalCapacity {
		return domain.ErrInvalidCapacity
	}
	return nil
}

// CheckOut reserves quantity units of a hardware set for a project.
func (s *ReservationService) CheckOut(ctx context.Context, req CheckoutRequest) (*domain.CheckoutConfirmation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.ProjectID, req.Username); err != nil {
		return nil, err
	}

	ok, err := s.cache.SetIdempotency(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	av, err := s.inventory.Reserve(ctx, req.HardwareName, req.ProjectID, req.Quantity)
	if err != nil {
		// Free the request ID so the caller may retry the same request.
		if clearErr := s.cache.ClearIdempotency(ctx, req.RequestID); clearErr != nil {
			log.Warn().Err(clearErr).Str("request_id", req.RequestID).Msg("failed to clear idempotency key")
		}
		return nil, err
	}

	s.afterCommit(ctx, req.HardwareName)
	s.emit(domain.LedgerEvent{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		HardwareName: req.HardwareName,
		Actor:        req.Username,
		Action:       domain.LedgerActionCheckout,
		Quantity:     req.Quantity,
		Available:    av.Available,
		OccurredAt:   time.Now().UTC(),
	})

	return &domain.CheckoutConfirmation{
		ConfirmationID: uuid.NewString(),
		ProjectID:      req.ProjectID,
		HardwareName:   req.HardwareName,
		Quantity:       req.Quantity,
		Availability:   *av,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// CheckIn returns quantity units previously reserved by the project.
func (s *ReservationService) CheckIn(ctx context.Context, req CheckinRequest) (*domain.CheckinConfirmation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.ProjectID, req.Username); err != nil {
		return nil, err
	}

	ok, err := s.cache.SetIdempotency(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	av, err := s.inventory.Release(ctx, req.HardwareName, req.ProjectID, req.Quantity)
	if err != nil {
		if clearErr := s.cache.ClearIdempotency(ctx, req.RequestID); clearErr != nil {
			log.Warn().Err(clearErr).Str("request_id", req.RequestID).Msg("failed to clear idempotency key")
		}
		return nil, err
	}

	s.afterCommit(ctx, req.HardwareName)
	s.emit(domain.LedgerEvent{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		HardwareName: req.HardwareName,
		Actor:        req.Username,
		Action:       domain.LedgerActionCheckin,
		Quantity:     req.Quantity,
		Available:    av.Available,
		OccurredAt:   time.Now().UTC(),
	})

	return &domain.CheckinConfirmation{
		ConfirmationID: uuid.NewString(),
		ProjectID:      req.ProjectID,
		HardwareName:   req.HardwareName,
		Quantity:       req.Quantity,
		Availability:   *av,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// GetAvailability serves the snapshot from cache when possible and falls back
// to the repository. Cached entries are dropped on every committed mutation,
// so a read after a write in this process always sees the new counters.
func (s *ReservationService) GetAvailability(ctx context.Context, hardwareName string) (*domain.Availability, error) {
	if hardwareName == "" {
		return nil, domain.ErrInvalidRequest
	}

	if av, ok, err := s.cache.GetAvailability(ctx, hardwareName); err == nil && ok {
		return av, nil
	} else if err != nil {
		log.Warn().Err(err).Str("hardware", hardwareName).Msg("availability cache read failed")
	}

	hw, err := s.inventory.GetHardwareSet(ctx, hardwareName)
	if err != nil {
		return nil, fmt.Errorf("get hardware set: %w", err)
	}
	if hw == nil {
		return nil, domain.ErrHardwareNotFound
	}

	av := domain.Availability{
		HardwareName:  hw.Name,
		TotalCapacity: hw.TotalCapacity,
		Available:     hw.Available(),
		CheckedOut:    hw.CheckedOut,
	}
	if err := s.cache.SetAvailability(ctx, av); err != nil {
		log.Warn().Err(err).Str("hardware", hardwareName).Msg("availability cache write failed")
	}
	return &av, nil
}

func (s *ReservationService) ListHardwareSets(ctx context.Context) ([]domain.HardwareSet, error) {
	sets, err := s.inventory.ListHardwareSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hardware sets: %w", err)
	}
	return sets, nil
}

func (s *ReservationService) CreateHardwareSet(ctx context.Context, req CreateHardwareSetRequest) (*domain.Availability, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	hw := domain.HardwareSet{
		Name:          req.Name,
		Description:   req.Description,
		TotalCapacity: req.TotalCapacity,
	}
	if err := s.inventory.CreateHardwareSet(ctx, hw); err != nil {
		return nil, err
	}

	return &domain.Availability{
		HardwareName:  req.Name,
		TotalCapacity: req.TotalCapacity,
		Available:     req.TotalCapacity,
		CheckedOut:    0,
	}, nil
}

// UpdateCapacity changes the total capacity of a hardware set. The new total
// may not undercut units already checked out. Lost races against concurrent
// reservations are retried a bounded number of times.
func (s *ReservationService) UpdateCapacity(ctx context.Context, hardwareName string, totalCapacity int) (*domain.Availability, error) {
	if totalCapacity <= 0 || totalCapacity > maxTotalCapacity {
		return nil, domain.ErrInvalidCapacity
	}

	for attempt := 0; attempt < capacityUpdateAttempts; attempt++ {
		hw, err := s.inventory.GetHardwareSet(ctx, hardwareName)
		if err != nil {
			return nil, fmt.Errorf("get hardware set: %w", err)
		}
		if hw == nil {
			return nil, domain.ErrHardwareNotFound
		}
		if totalCapacity < hw.CheckedOut {
			return nil, domain.ErrCapacityBelowCheckout
		}

		hw.TotalCapacity = totalCapacity
		err = s.inventory.UpdateCapacity(ctx, *hw)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterCommit(ctx, hardwareName)
		return &domain.Availability{
			HardwareName:  hardwareName,
			TotalCapacity: totalCapacity,
			Available:     totalCapacity - hw.CheckedOut,
			CheckedOut:    hw.CheckedOut,
		}, nil
	}
	return nil, domain.ErrConcurrencyConflict
}

func (s *ReservationService) authorize(ctx context.Context, projectID, username string) error {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return domain.ErrProjectNotFound
	}

	member, err := s.projects.IsMember(ctx, projectID, username)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return domain.ErrNotProjectMember
	}
	return nil
}

// afterCommit drops the cached snapshot so the next read hits storage.
func (s *ReservationService) afterCommit(ctx context.Context, hardwareName string) {
	if err := s.cache.InvalidateAvailability(ctx, hardwareName); err != nil {
		log.Warn().Err(err).Str("hardware", hardwareName).Msg("availability cache invalidation failed")
	}
}

func (s *ReservationService) emit(ev domain.LedgerEvent) {
	s.events <- ev
}

// Events exposes the audit trail for the worker pool in cmd/server.
func (s *ReservationService) Events() <-chan domain.LedgerEvent {
	return s.events
}

func (s *ReservationService) Close() {
	close(s.events)
}
