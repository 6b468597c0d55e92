package schedule

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"robofleet/apperr"
	"robofleet/store"
)

const maxInspectionPageSize = 50

// InspectionInput is a detection result reported for one rim.
type InspectionInput struct {
	RimID       string `json:"rim_id"`
	RimTypeID   *int64 `json:"rim_type"`
	Image       string `json:"image"`
	IsDefect    bool   `json:"is_defect"`
	Description string `json:"description"`
}

// VerifyInput is a human review. Absent fields fall back to the stored
// values, matching a partial update.
type VerifyInput struct {
	FalseDetected   *bool   `json:"false_detected"`
	IsApproved      *bool   `json:"is_approved"`
	CorrectLabel    *string `json:"correct_label"`
	UserDescription *string `json:"user_description"`
}

func (s *Service) CreateInspection(ctx context.Context, scheduleID int64, in InspectionInput) (*store.Inspection, error) {
	in.RimID = strings.TrimSpace(in.RimID)
	if in.RimID == "" {
		return nil, apperr.Validation("Validation failed", map[string]string{"rim_id": "This field is required."})
	}
	if in.RimTypeID != nil {
		if _, err := s.db.GetRimType(ctx, *in.RimTypeID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.Validation("Validation failed", map[string]string{"rim_type": "Invalid pk - object does not exist."})
			}
			return nil, apperr.Internal(err)
		}
	}
	rec := &store.Inspection{
		ScheduleID:  scheduleID,
		RimID:       in.RimID,
		RimTypeID:   in.RimTypeID,
		Image:       in.Image,
		IsDefect:    in.IsDefect,
		Description: in.Description,
	}
	err := s.db.CreateInspection(ctx, rec)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperr.Conflict("inspection with this rim id already exists.")
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("Schedule not found")
	case err != nil:
		return nil, apperr.Internal(err)
	}
	s.log.Info("schedule: inspection created", zap.Int64("schedule_id", scheduleID),
		zap.Int64("inspection_id", rec.ID), zap.Bool("is_defect", rec.IsDefect))
	s.emitter.EmitInspectionCreated(rec)
	return rec, nil
}

func (s *Service) GetInspection(ctx context.Context, id int64) (*store.Inspection, error) {
	in, err := s.db.GetInspection(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Inspection not found")
		}
		return nil, apperr.Internal(err)
	}
	return in, nil
}

// ListInspections pages a schedule's inspections. pageSize defaults to the
// configured page size and is capped at 50.
func (s *Service) ListInspections(ctx context.Context, scheduleID int64, page, pageSize int) (*store.InspectionPage, error) {
	if page < 1 {
		return nil, apperr.NotFound("Invalid page.")
	}
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	if pageSize > maxInspectionPageSize {
		pageSize = maxInspectionPageSize
	}
	if _, err := s.db.GetSchedule(ctx, scheduleID); err != nil {
		return nil, scheduleLookupError(err)
	}
	res, err := s.db.ListInspections(ctx, scheduleID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if page > 1 && len(res.Inspections) == 0 {
		return nil, apperr.NotFound("Invalid page.")
	}
	res.PageSize = pageSize
	return res, nil
}

// BuildVerification applies the review rules: a correct detection is
// auto-approved with its label cleared; a false detection needs a label,
// a description and an explicit approval decision.
func BuildVerification(cur *store.Inspection, in VerifyInput) (store.Verification, error) {
	falseDetected := cur.FalseDetected
	if in.FalseDetected != nil {
		falseDetected = *in.FalseDetected
	}
	var desc string
	if in.UserDescription != nil {
		desc = strings.TrimSpace(*in.UserDescription)
	}
	if !falseDetected {
		return store.Verification{FalseDetected: false, UserDescription: desc, IsApproved: true}, nil
	}

	label := cur.CorrectLabel
	if in.CorrectLabel != nil {
		label = in.CorrectLabel
	}
	fields := map[string]string{}
	if desc == "" {
		fields["description"] = "Description is required when false_detected is true."
	}
	if label == nil || strings.TrimSpace(*label) == "" {
		fields["correct_label"] = "Correct label is required for false detections."
	}
	if in.IsApproved == nil {
		fields["is_approved"] = "Approval decision is required for false detections."
	}
	if len(fields) > 0 {
		return store.Verification{}, apperr.Validation("Validation failed", fields)
	}
	trimmed := strings.TrimSpace(*label)
	return store.Verification{
		FalseDetected:   true,
		CorrectLabel:    &trimmed,
		UserDescription: desc,
		IsApproved:      *in.IsApproved,
	}, nil
}

// VerifyInspection records the one and only human review of an inspection.
func (s *Service) VerifyInspection(ctx context.Context, id int64, in VerifyInput) (*store.Inspection, error) {
	cur, err := s.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := BuildVerification(cur, in)
	if err != nil {
		return nil, err
	}
	out, err := s.db.VerifyInspection(ctx, id, v)
	switch {
	case errors.Is(err, store.ErrAlreadyVerified):
		return nil, apperr.State("Inspection has already been human verified.")
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("Inspection not found")
	case err != nil:
		return nil, apperr.Internal(err)
	}
	s.log.Info("schedule: inspection verified", zap.Int64("inspection_id", id),
		zap.Bool("false_detected", out.FalseDetected), zap.Bool("is_approved", out.IsApproved))
	s.emitter.EmitInspectionVerified(out)
	return out, nil
}
