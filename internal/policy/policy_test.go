package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanMutateWithinWindow(t *testing.T) {
	p := New(0)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		age       time.Duration
		role      string
		canMutate bool
	}{
		{"fresh record", time.Hour, "USER", true},
		{"just under window", 3*24*time.Hour + 23*time.Hour, "USER", true},
		{"exactly at window", 4 * 24 * time.Hour, "USER", true},
		{"one minute past", 4*24*time.Hour + time.Minute, "USER", false},
		{"admin past window", 30 * 24 * time.Hour, RoleAdmin, true},
		{"admin fresh", time.Minute, RoleAdmin, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			createdAt := now.Add(-tc.age)
			require.Equal(t, tc.canMutate, p.CanMutate(createdAt, tc.role, now))
		})
	}
}

func TestCustomWindow(t *testing.T) {
	p := New(48 * time.Hour)
	now := time.Now().UTC()
	require.True(t, p.CanMutate(now.Add(-47*time.Hour), "USER", now))
	require.False(t, p.CanMutate(now.Add(-49*time.Hour), "USER", now))
}

func TestReasonNamesTheWindow(t *testing.T) {
	require.Contains(t, New(0).Reason(), "4 days")
}
