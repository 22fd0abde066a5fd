package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "fixed ok",
			cfg:  Config{Mode: ModeFixed, Fixed: 5 * time.Minute},
		},
		{
			name:    "fixed below floor",
			cfg:     Config{Mode: ModeFixed, Fixed: 10 * time.Second},
			wantErr: true,
		},
		{
			name: "random ok",
			cfg:  Config{Mode: ModeRandom, RandomFrom: 60 * time.Second, RandomTo: 900 * time.Second},
		},
		{
			name:    "random inverted bounds",
			cfg:     Config{Mode: ModeRandom, RandomFrom: 900 * time.Second, RandomTo: 60 * time.Second},
			wantErr: true,
		},
		{
			name:    "random equal bounds",
			cfg:     Config{Mode: ModeRandom, RandomFrom: 60 * time.Second, RandomTo: 60 * time.Second},
			wantErr: true,
		},
		{
			name:    "random below floor",
			cfg:     Config{Mode: ModeRandom, RandomFrom: 5 * time.Second, RandomTo: 900 * time.Second},
			wantErr: true,
		},
		{
			// range of 15s gives a 10s floor gap, which no longer fits
			// in half the range.
			name:    "range too narrow for gap",
			cfg:     Config{Mode: ModeRandom, RandomFrom: 30 * time.Second, RandomTo: 45 * time.Second},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			cfg:     Config{Mode: Mode("sometimes")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextWaitFixed(t *testing.T) {
	s, err := New(Config{Mode: ModeFixed, Fixed: 5 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if got := s.NextWait(); got != 5*time.Minute {
			t.Errorf("NextWait() = %v, want 5m", got)
		}
	}
}

func TestNextWaitAntiClustering(t *testing.T) {
	cfg := Config{Mode: ModeRandom, RandomFrom: 60 * time.Second, RandomTo: 900 * time.Second}
	s, err := NewWithSource(cfg, rand.NewSource(1))
	if err != nil {
		t.Fatal(err)
	}

	rng := cfg.RandomTo - cfg.RandomFrom
	gap := time.Duration(float64(rng) * 0.3)

	prev := s.NextWait()
	if prev < cfg.RandomFrom || prev > cfg.RandomTo {
		t.Fatalf("first wait %v outside bounds", prev)
	}

	for i := 0; i < 1000; i++ {
		next := s.NextWait()
		if next < cfg.RandomFrom || next > cfg.RandomTo {
			t.Fatalf("wait %v outside bounds on draw %d", next, i)
		}
		diff := next - prev
		if diff < 0 {
			diff = -diff
		}
		if diff < gap {
			t.Fatalf("consecutive waits %v and %v differ by %v, want >= %v", prev, next, diff, gap)
		}
		prev = next
	}
}

// Bounds of 60s to 900s give a gap of 252s; after a wait of 100s the
// next accepted wait must lie outside (100-252, 100+252).
func TestNextWaitRejectionWindow(t *testing.T) {
	cfg := Config{Mode: ModeRandom, RandomFrom: 60 * time.Second, RandomTo: 900 * time.Second}
	s, err := NewWithSource(cfg, rand.NewSource(42))
	if err != nil {
		t.Fatal(err)
	}
	s.last = 100 * time.Second
	s.has = true

	for i := 0; i < 500; i++ {
		next := s.NextWait()
		if next > (100-252)*time.Second && next < (100+252)*time.Second {
			t.Fatalf("wait %v inside the rejection window around 100s", next)
		}
		s.last = 100 * time.Second
	}
}

func TestWaitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Wait(ctx, time.Hour)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancellation")
	}
}

func TestWaitCompletes(t *testing.T) {
	if err := Wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
