package notify

import (
	"testing"
	"time"

	"github.com/kunaal-theme/notify/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewScheduler_FloorEnforcement(t *testing.T) {
	tests := []struct {
		name        string
		minMinutes  int
		wantMin     time.Duration
	}{
		{"zero config uses floor", 0, time.Hour},
		{"below floor clamped", 5, time.Hour},
		{"at floor kept", 60, time.Hour},
		{"above floor kept", 120, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(config.NewsletterConfig{MinDelayMinutes: tt.minMinutes})
			assert.Equal(t, tt.wantMin, s.EffectiveMinDelay())
		})
	}
}

func TestComputeSendTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := config.NewsletterConfig{MinDelayMinutes: 60, DefaultDelayMinutes: 90}
	s := NewScheduler(cfg)

	tests := []struct {
		name string
		opts ScheduleOptions
		want time.Time
	}{
		{
			"default mode uses default delay",
			ScheduleOptions{},
			now.Add(90 * time.Minute),
		},
		{
			"delay mode honors requested delay",
			ScheduleOptions{Mode: ModeDelay, DelayMinutes: 180},
			now.Add(3 * time.Hour),
		},
		{
			"delay below minimum is clamped",
			ScheduleOptions{Mode: ModeDelay, DelayMinutes: 10},
			now.Add(time.Hour),
		},
		{
			"zero delay falls back to default",
			ScheduleOptions{Mode: ModeDelay},
			now.Add(90 * time.Minute),
		},
		{
			"negative delay falls back to default",
			ScheduleOptions{Mode: ModeDelay, DelayMinutes: -30},
			now.Add(90 * time.Minute),
		},
		{
			"explicit future time kept",
			ScheduleOptions{Mode: ModeTime, At: now.Add(4 * time.Hour)},
			now.Add(4 * time.Hour),
		},
		{
			"time in the past clamped to earliest",
			ScheduleOptions{Mode: ModeTime, At: now.Add(-time.Hour)},
			now.Add(time.Hour),
		},
		{
			"time inside the window clamped to earliest",
			ScheduleOptions{Mode: ModeTime, At: now.Add(30 * time.Minute)},
			now.Add(time.Hour),
		},
		{
			"zero time clamped to earliest",
			ScheduleOptions{Mode: ModeTime},
			now.Add(time.Hour),
		},
		{
			"unknown mode behaves like default",
			ScheduleOptions{Mode: "whenever"},
			now.Add(90 * time.Minute),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ComputeSendTime(now, tt.opts)
			assert.Equal(t, tt.want, got)
			assert.False(t, got.Before(now.Add(s.EffectiveMinDelay())),
				"send time must never land inside the minimum window")
		})
	}
}
