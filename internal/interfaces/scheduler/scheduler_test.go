package scheduler

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{input: "05:00", want: ScheduleTime{Hour: 5}},
		{input: "23:59", want: ScheduleTime{Hour: 23, Minute: 59}},
		{input: "0:7", want: ScheduleTime{Hour: 0, Minute: 7}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScheduleTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewScheduler(SchedulerConfig{WorkerCount: 1}, logger); err == nil {
		t.Error("expected error without schedule times")
	}
	if _, err := NewScheduler(SchedulerConfig{ScheduleTimes: []string{"25:00"}, WorkerCount: 1}, logger); err == nil {
		t.Error("expected error for invalid schedule time")
	}
	if _, err := NewScheduler(SchedulerConfig{ScheduleTimes: []string{"05:00"}}, logger); err == nil {
		t.Error("expected error without workers")
	}
}

func TestShouldRun_OncePerMinute(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{ScheduleTimes: []string{"10:00"}, WorkerCount: 1}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	at := time.Date(2024, 6, 1, 10, 0, 5, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Fatal("expected run at 10:00")
	}
	if s.shouldRun(at.Add(30 * time.Second)) {
		t.Error("ran twice in the same minute")
	}
	if s.shouldRun(at.Add(time.Minute)) {
		t.Error("ran at 10:01")
	}
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("expected run at 10:00 the next day")
	}
}

func TestGetNextScheduledTime(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{ScheduleTimes: []string{"20:00", "05:00", "14:00"}, WorkerCount: 1}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "Before first",
			now:  time.Date(2024, 6, 1, 4, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "Between",
			now:  time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC),
		},
		{
			name: "After last",
			now:  time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 2, 5, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.now = func() time.Time { return tt.now }
			if got := s.GetNextScheduledTime(); !got.Equal(tt.want) {
				t.Errorf("GetNextScheduledTime() = %v, want %v", got, tt.want)
			}
		})
	}
}
