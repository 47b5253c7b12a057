package service

import (
	"context"
	"fmt"
	"strings"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNoteLen = 500

func (s *fulfillmentService) pickerOf(ctx context.Context, workerID uuid.UUID) (*models.Worker, error) {
	w, err := s.repo.Workers.GetByID(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWorkerNotFound
	}
	if !w.CanPick {
		return nil, ErrWorkerCannotPick
	}
	return w, nil
}

// RequestNextUnit claims the oldest unassigned pending unit of the worker's store.
// A nil unit with a nil error means there is no work.
func (s *fulfillmentService) RequestNextUnit(ctx context.Context, workerID uuid.UUID) (*models.PickUnit, error) {
	w, err := s.pickerOf(ctx, workerID)
	if err != nil {
		return nil, err
	}
	var unit *models.PickUnit
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		now := s.now()
		unit, err = tx.PickUnits.ClaimNext(ctx, w.StoreID, w.ID, now)
		if err != nil || unit == nil {
			return err
		}
		return tx.Workers.TouchAssigned(ctx, w.ID, now)
	})
	if err != nil {
		return nil, err
	}
	if unit != nil {
		s.log.Debug("pick unit pulled", zap.Stringer("unit_id", unit.ID), zap.Stringer("worker_id", w.ID))
	}
	return unit, nil
}

func (s *fulfillmentService) ListWorkerQueue(ctx context.Context, workerID uuid.UUID) ([]models.PickUnit, error) {
	if _, err := s.pickerOf(ctx, workerID); err != nil {
		return nil, err
	}
	return s.repo.PickUnits.ListByWorker(ctx, workerID, models.PickUnitPending)
}

// ReportIssue takes a pending unit out of the worker's queue until a manager resolves it.
func (s *fulfillmentService) ReportIssue(ctx context.Context, unitID, workerID uuid.UUID, note string) (*models.PickUnit, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note is required", ErrValidation)
	}
	if len(note) > maxNoteLen {
		note = note[:maxNoteLen]
	}

	var out *models.PickUnit
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		unit, err := tx.PickUnits.LockByID(ctx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return ErrPickUnitNotFound
		}
		if unit.Status != models.PickUnitPending {
			return ErrUnitNotPending
		}
		if unit.WorkerID == nil || *unit.WorkerID != workerID {
			return ErrNotAssignedWorker
		}
		if err := tx.PickUnits.UpdateFields(ctx, unit.ID, map[string]any{
			"status": models.PickUnitIssue,
			"note":   note,
		}); err != nil {
			return err
		}
		unit.Status = models.PickUnitIssue
		unit.Note = &note
		out = unit
		return enqueueNotify(ctx, tx, "issue:"+unit.ID.String(), Notification{
			RecipientType: RecipientStore,
			RecipientID:   unit.StoreID,
			Type:          NotifyPickIssue,
			Payload: map[string]any{
				"unit_id":   unit.ID.String(),
				"order_id":  unit.OrderID.String(),
				"worker_id": workerID.String(),
				"note":      note,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("pick issue reported", zap.Stringer("unit_id", unitID), zap.Stringer("worker_id", workerID))
	return out, nil
}

// ResolveIssue puts an ISSUE unit back into the pull queue or cancels it together
// with the matching quantity of its order line.
func (s *fulfillmentService) ResolveIssue(ctx context.Context, unitID uuid.UUID, res IssueResolution) (*models.PickUnit, error) {
	if res != ResolveRetry && res != ResolveCancel {
		return nil, ErrInvalidResolution
	}
	p, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	pre, err := s.repo.PickUnits.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		return nil, ErrPickUnitNotFound
	}
	if !p.IsManagerOf(pre.StoreID) {
		return nil, ErrForbidden
	}

	var (
		out   *models.PickUnit
		ready *uuid.UUID
	)
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ord, err := tx.Orders.LockByID(ctx, pre.OrderID)
		if err != nil {
			return err
		}
		if ord == nil {
			return ErrOrderNotFound
		}
		if _, err := tx.Deliveries.LockByOrder(ctx, ord.ID); err != nil {
			return err
		}
		unit, err := tx.PickUnits.LockByID(ctx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return ErrPickUnitNotFound
		}
		if unit.Status != models.PickUnitIssue {
			return ErrUnitNotInIssue
		}

		if res == ResolveRetry {
			if err := tx.PickUnits.UpdateFields(ctx, unit.ID, map[string]any{
				"status":      models.PickUnitPending,
				"worker_id":   nil,
				"assigned_at": nil,
			}); err != nil {
				return err
			}
			unit.Status = models.PickUnitPending
			unit.WorkerID = nil
			unit.AssignedAt = nil
			out = unit
			return nil
		}

		if err := tx.PickUnits.UpdateFields(ctx, unit.ID, map[string]any{"status": models.PickUnitCancelled}); err != nil {
			return err
		}
		unit.Status = models.PickUnitCancelled
		out = unit

		if unit.OrderLineID != nil {
			if line := findLine(ord.Lines, *unit.OrderLineID); line != nil {
				if _, err := s.cancelLineLocked(ctx, tx, ord, *line, unit.Quantity, false); err != nil {
					return err
				}
			}
		}
		ready, err = s.checkReadiness(ctx, tx, ord)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("pick issue resolved", zap.Stringer("unit_id", unitID), zap.String("resolution", string(res)))
	s.dispatchAfterCommit(ctx, ready)
	return out, nil
}

func findLine(lines []models.OrderLine, id uuid.UUID) *models.OrderLine {
	for i := range lines {
		if lines[i].ID == id {
			return &lines[i]
		}
	}
	return nil
}
