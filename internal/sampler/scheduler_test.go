package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := NewScheduler(Options{Interval: 30 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 10, 17, 42, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("对齐后的下一次触发应为 %s, 实际 %s", want, next)
	}

	// Exactly on a boundary advances to the following bucket.
	next = s.nextTick(want)
	if !next.Equal(want.Add(30 * time.Minute)) {
		t.Fatalf("边界时刻应推进到下一桶, 实际 %s", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := NewScheduler(Options{Interval: time.Hour}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 10, 17, 0, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("未对齐模式应在整间隔后触发, 实际 %s", next)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := NewScheduler(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(context.Context, time.Time) error { return nil })
	if err != context.Canceled {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
}
