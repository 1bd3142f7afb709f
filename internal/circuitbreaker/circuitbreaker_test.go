package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func passing() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Clock: clockwork.NewFakeClock()})

	for i := 0; i < 3; i++ {
		if err := b.Do(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d error = %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Do(passing); !errors.Is(err, ErrOpen) {
		t.Errorf("open circuit error = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Clock: clockwork.NewFakeClock()})

	_ = b.Do(failing)
	_ = b.Do(failing)
	_ = b.Do(passing)
	_ = b.Do(failing)
	_ = b.Do(failing)

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (success should reset the count)", got)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: 10 * time.Second, Clock: clock})

	_ = b.Do(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	clock.Advance(10 * time.Second)

	// First probe succeeds but one success is not enough to close.
	if err := b.Do(passing); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after one probe", got)
	}
	if err := b.Do(passing); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed after probe threshold", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Second, Clock: clock})

	_ = b.Do(failing)
	clock.Advance(10 * time.Second)
	_ = b.Do(failing)

	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want reopened", got)
	}
	if err := b.Do(passing); !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen before a fresh cooldown", err)
	}
}

func TestBreaker_StateChangeHook(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	b := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Cooldown:         time.Second,
		Clock:            clock,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	_ = b.Do(failing)
	clock.Advance(time.Second)
	_ = b.Do(passing)

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}
