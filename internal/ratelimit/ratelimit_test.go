package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"emlak-aggregator/internal/config"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterWindows(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(2, 3)
	rl.now = c.now

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow() {
		t.Error("third request within a minute should be refused")
	}

	c.advance(61 * time.Second)
	if !rl.Allow() {
		t.Error("minute window should have rolled over")
	}
	if rl.Allow() {
		t.Error("hour budget of 3 is spent")
	}

	stats := rl.GetStats()
	if stats.RequestsLastHour != 3 || stats.RequestsLastMinute != 1 || stats.RemainingThisHour != 0 {
		t.Errorf("stats = %+v", stats)
	}

	c.advance(time.Hour)
	if !rl.Allow() {
		t.Error("hour window should have rolled over")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d refused with limits disabled", i)
		}
	}
}

func TestAdaptiveSlowMode(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	a := NewAdaptive(AdaptiveConfig{Window: 10, Cooldown: time.Minute})
	a.now = c.now

	for i := 0; i < 4; i++ {
		a.Observe(false)
	}
	if a.Slow() {
		t.Error("slow mode entered before enough samples")
	}
	a.Observe(true)
	if !a.Slow() {
		t.Fatalf("fail rate %.2f should trigger slow mode", a.FailRate())
	}

	// still failing after the cooldown keeps it slow
	c.advance(2 * time.Minute)
	if !a.Slow() {
		t.Error("slow mode should persist above the recovery threshold")
	}

	for i := 0; i < 10; i++ {
		a.Observe(true)
	}
	c.advance(2 * time.Minute)
	if a.Slow() {
		t.Errorf("fail rate %.2f should end slow mode", a.FailRate())
	}
}

func TestPacerBeforePage(t *testing.T) {
	cfg := config.DefaultConfig().Scraper
	cfg.WaitBetweenPages = 2
	cfg.RandomWait.Short = config.WaitBand{Min: 1, Max: 1}
	cfg.RandomWait.Long = config.WaitBand{Min: 10, Max: 10}

	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	p := NewPacer(cfg)
	p.now = c.now
	p.rng = rand.New(rand.NewSource(1))
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		c.advance(d)
		return nil
	}
	p.backoff.now = c.now

	ctx := context.Background()
	if err := p.BeforePage(ctx); err != nil {
		t.Fatal(err)
	}
	c.advance(500 * time.Millisecond)
	if err := p.BeforePage(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		p.Observe(false)
	}
	if err := p.BeforePage(ctx); err != nil {
		t.Fatal(err)
	}

	want := []time.Duration{
		time.Second,                         // first page: jitter only
		time.Second + 1500*time.Millisecond, // jitter + rest of the 2s gap
		12 * time.Second,                    // slow mode: long band + the full gap
	}
	if len(slept) != len(want) {
		t.Fatalf("slept %v; want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v; want %v", i, slept[i], want[i])
		}
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep = %v; want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep ignored cancellation")
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero sleep = %v", err)
	}
}

func TestBandPick(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := Band{Min: time.Second, Max: 3 * time.Second}
	for i := 0; i < 50; i++ {
		d := b.pick(rng)
		if d < b.Min || d >= b.Max {
			t.Fatalf("pick = %v outside [%v, %v)", d, b.Min, b.Max)
		}
	}
	if got := (Band{Min: 2 * time.Second}).pick(rng); got != 2*time.Second {
		t.Errorf("degenerate band = %v", got)
	}
}
