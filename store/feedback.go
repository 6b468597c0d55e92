package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	FeedbackApproved    = "approved"
	FeedbackNotApproved = "not_approved"
)

// FeedbackSample marks a falsely detected image for the retraining set.
// The image itself is handled by the upload collaborator.
type FeedbackSample struct {
	ID           int64     `json:"id"`
	InspectionID int64     `json:"inspection_id"`
	Image        string    `json:"image"`
	Label        string    `json:"label"`
	Bucket       string    `json:"bucket"`
	CreatedAt    time.Time `json:"created_at"`
}

func feedbackFor(in *Inspection) *FeedbackSample {
	if !in.FalseDetected || in.Image == "" || in.CorrectLabel == nil || *in.CorrectLabel == "" {
		return nil
	}
	bucket := FeedbackNotApproved
	if in.IsApproved {
		bucket = FeedbackApproved
	}
	return &FeedbackSample{
		InspectionID: in.ID,
		Image:        in.Image,
		Label:        Slugify(*in.CorrectLabel),
		Bucket:       bucket,
	}
}

func (db *DB) insertFeedbackSample(ctx context.Context, q querier, f *FeedbackSample) error {
	id, err := db.insertReturningID(ctx, q, `INSERT INTO feedback_samples (inspection_id, image, label, bucket) VALUES (?, ?, ?, ?)`,
		f.InspectionID, f.Image, f.Label, f.Bucket)
	if err != nil {
		return fmt.Errorf("insert feedback sample: %w", err)
	}
	f.ID = id
	return nil
}

func (db *DB) ListFeedbackSamples(ctx context.Context, bucket string) ([]*FeedbackSample, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, inspection_id, image, label, bucket, created_at FROM feedback_samples WHERE bucket=? ORDER BY id`), bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*FeedbackSample
	for rows.Next() {
		var f FeedbackSample
		var createdAt any
		if err := rows.Scan(&f.ID, &f.InspectionID, &f.Image, &f.Label, &f.Bucket, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

// Slugify lowercases s, keeps letters, digits, '-' and '_', and collapses
// whitespace and other runs into single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
