package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestInspectionCreateAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	r := seedRobot(t, db, "R1")
	s := seedSchedule(t, db, r.ID, "Bay-1", "2025-01-01", "09:00:00", "09:03:00")
	rt := &RimType{Name: "alloy-17"}
	require.NoError(t, db.CreateRimType(ctx, rt))

	in := &Inspection{ScheduleID: s.ID, RimID: "RIM-1", RimTypeID: &rt.ID, IsDefect: true, Description: "crack"}
	require.NoError(t, db.CreateInspection(ctx, in))
	assert.NotZero(t, in.ID)
	assert.False(t, in.IsHumanVerified)
	assert.False(t, in.InspectedAt.IsZero())
	require.NoError(t, db.CreateInspection(ctx, &Inspection{ScheduleID: s.ID, RimID: "RIM-2"}))
	require.NoError(t, db.CreateInspection(ctx, &Inspection{ScheduleID: s.ID, RimID: "RIM-3"}))

	assert.ErrorIs(t, db.CreateInspection(ctx, &Inspection{ScheduleID: s.ID, RimID: "RIM-1"}), ErrDuplicate)
	assert.ErrorIs(t, db.CreateInspection(ctx, &Inspection{ScheduleID: 999, RimID: "RIM-9"}), ErrNotFound)

	page, err := db.ListInspections(ctx, s.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalDefected)
	assert.Equal(t, 2, page.TotalNonDefected)
	assert.Len(t, page.Inspections, 2)
	require.NotNil(t, page.Inspections[0].RimTypeID)
	assert.Equal(t, rt.ID, *page.Inspections[0].RimTypeID)
}

func TestVerifyInspectionOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	r := seedRobot(t, db, "R1")
	s := seedSchedule(t, db, r.ID, "Bay-1", "2025-01-01", "09:00:00", "09:03:00")
	in := &Inspection{ScheduleID: s.ID, RimID: "RIM-1", Image: "inspections/rim1.jpg", IsDefect: true}
	require.NoError(t, db.CreateInspection(ctx, in))

	got, err := db.VerifyInspection(ctx, in.ID, Verification{
		FalseDetected:   true,
		CorrectLabel:    strPtr("Hairline Scratch"),
		UserDescription: "not a crack",
		IsApproved:      true,
	})
	require.NoError(t, err)
	assert.True(t, got.IsHumanVerified)
	require.NotNil(t, got.VerifiedAt)
	require.NotNil(t, got.CorrectLabel)
	assert.Equal(t, "Hairline Scratch", *got.CorrectLabel)

	samples, err := db.ListFeedbackSamples(ctx, FeedbackApproved)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "hairline-scratch", samples[0].Label)
	assert.Equal(t, "inspections/rim1.jpg", samples[0].Image)

	_, err = db.VerifyInspection(ctx, in.ID, Verification{FalseDetected: false, IsApproved: true})
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	after, err := db.GetInspection(ctx, in.ID)
	require.NoError(t, err)
	assert.True(t, after.FalseDetected, "fields unchanged after rejected re-verify")
	assert.Equal(t, "not a crack", after.UserDescription)
}

func TestVerifyWithoutImageSkipsFeedback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	r := seedRobot(t, db, "R1")
	s := seedSchedule(t, db, r.ID, "Bay-1", "2025-01-01", "09:00:00", "09:03:00")
	in := &Inspection{ScheduleID: s.ID, RimID: "RIM-1"}
	require.NoError(t, db.CreateInspection(ctx, in))

	_, err := db.VerifyInspection(ctx, in.ID, Verification{FalseDetected: true, CorrectLabel: strPtr("dent"), UserDescription: "x"})
	require.NoError(t, err)
	samples, err := db.ListFeedbackSamples(ctx, FeedbackNotApproved)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hairline Scratch":   "hairline-scratch",
		"  Dent -- deep  ":   "dent-deep",
		"rust/corrosion #2":  "rustcorrosion-2",
		"already_slugged-ok": "already_slugged-ok",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}
