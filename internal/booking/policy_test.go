package booking

import (
	"errors"
	"testing"
	"time"

	"reservly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyStore() *models.Store {
	return &models.Store{
		ID:                  1,
		Name:                "Ginza Salon",
		Timezone:            "Asia/Tokyo",
		AdvanceBookingDays:  30,
		CancelDeadlineHours: 24,
		MinLeadTimeMinutes:  60,
	}
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func assertPolicyReason(t *testing.T, err error, reason string) {
	t.Helper()
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, reason, pv.Reason)
}

func TestCheckCreatePolicyAdvanceWindow(t *testing.T) {
	store := policyStore()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo(t))

	// Exactly 30 days out is still inside the window.
	assert.NoError(t, CheckCreatePolicy(store, "2025-07-02", "10:00", now))

	err := CheckCreatePolicy(store, "2025-07-03", "10:00", now)
	assertPolicyReason(t, err, ReasonAdvanceWindow)
}

func TestCheckCreatePolicyPastDate(t *testing.T) {
	store := policyStore()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo(t))

	err := CheckCreatePolicy(store, "2025-06-01", "10:00", now)
	assertPolicyReason(t, err, ReasonPastDate)
}

func TestCheckCreatePolicyLeadTime(t *testing.T) {
	store := policyStore()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo(t))

	// Start exactly at now+lead is too soon; one minute later clears it.
	err := CheckCreatePolicy(store, "2025-06-02", "10:00", now)
	assertPolicyReason(t, err, ReasonLeadTime)

	assert.NoError(t, CheckCreatePolicy(store, "2025-06-02", "10:01", now))
}

func TestCheckCreatePolicyZeroLeadRequiresFutureStart(t *testing.T) {
	store := policyStore()
	store.MinLeadTimeMinutes = 0
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, tokyo(t))

	err := CheckCreatePolicy(store, "2025-06-02", "10:00", now)
	assertPolicyReason(t, err, ReasonLeadTime)

	assert.NoError(t, CheckCreatePolicy(store, "2025-06-02", "10:30", now))
}

func TestCheckCreatePolicyDateCrossingUTC(t *testing.T) {
	store := policyStore()

	// 23:30 UTC June 1 is already 08:30 June 2 in Tokyo, so June 1 is past.
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	err := CheckCreatePolicy(store, "2025-06-01", "10:00", now)
	assertPolicyReason(t, err, ReasonPastDate)
}

func TestCheckCreatePolicyBadInput(t *testing.T) {
	store := policyStore()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo(t))

	var ve *ValidationError
	assert.True(t, errors.As(CheckCreatePolicy(store, "junk", "10:00", now), &ve))
	assert.True(t, errors.As(CheckCreatePolicy(store, "2025-06-10", "25:00", now), &ve))
}

func TestCheckCancelPolicyDeadline(t *testing.T) {
	store := policyStore()
	res := &models.Reservation{
		Date:      "2025-06-03",
		StartTime: "10:00",
		Status:    models.StatusConfirmed,
	}

	// Exactly 24h before start is already too late.
	atDeadline := time.Date(2025, 6, 2, 10, 0, 0, 0, tokyo(t))
	assertPolicyReason(t, CheckCancelPolicy(store, res, atDeadline), ReasonCancelDeadline)

	// One second earlier is still allowed.
	beforeDeadline := atDeadline.Add(-time.Second)
	assert.NoError(t, CheckCancelPolicy(store, res, beforeDeadline))
}

func TestCheckCancelPolicyDefaultsDeadline(t *testing.T) {
	store := policyStore()
	store.CancelDeadlineHours = 0
	res := &models.Reservation{Date: "2025-06-03", StartTime: "10:00"}

	// Falls back to the 24h default.
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, tokyo(t))
	assertPolicyReason(t, CheckCancelPolicy(store, res, now), ReasonCancelDeadline)
}
