package lifecycle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aln-labs/scanship/pkg/log"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateCrashed, "Crashed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestManager_TransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"stopped to starting", StateStopped, StateStarting, false},
		{"stopped to running", StateStopped, StateRunning, true},
		{"starting to running", StateStarting, StateRunning, false},
		{"starting to crashed", StateStarting, StateCrashed, false},
		{"starting to stopping", StateStarting, StateStopping, false},
		{"running to stopping", StateRunning, StateStopping, false},
		{"running to crashed", StateRunning, StateCrashed, false},
		{"running to starting", StateRunning, StateStarting, true},
		{"stopping to stopped", StateStopping, StateStopped, false},
		{"stopping to running", StateStopping, StateRunning, true},
		{"crashed to starting", StateCrashed, StateStarting, false},
		{"crashed to stopped", StateCrashed, StateStopped, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(log.NewNoopLogger(), nil)
			m.state = tt.from

			err := m.TransitionTo(tt.to, "test")
			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo(%v -> %v) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if !tt.wantErr && m.State() != tt.to {
				t.Errorf("State() = %v, want %v", m.State(), tt.to)
			}
			if tt.wantErr && m.State() != tt.from {
				t.Errorf("State() = %v after rejected transition, want %v", m.State(), tt.from)
			}
		})
	}
}

func TestManager_ChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var got []string

	m := NewManager(log.NewNoopLogger(), func(prev, cur State, reason string) {
		mu.Lock()
		got = append(got, prev.String()+">"+cur.String())
		mu.Unlock()
	})

	if err := m.TransitionTo(StateStarting, "t"); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}
	if err := m.TransitionTo(StateRunning, "t"); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"Stopped>Starting", "Starting>Running"}
	if len(got) != len(want) {
		t.Fatalf("callbacks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestManager_CanStartCanStop(t *testing.T) {
	m := NewManager(log.NewNoopLogger(), nil)

	if !m.CanStart() {
		t.Error("CanStart() = false for stopped manager")
	}
	if m.CanStop() {
		t.Error("CanStop() = true for stopped manager")
	}

	m.state = StateRunning
	if m.CanStart() {
		t.Error("CanStart() = true for running manager")
	}
	if !m.CanStop() {
		t.Error("CanStop() = false for running manager")
	}

	m.state = StateCrashed
	if !m.CanStart() {
		t.Error("CanStart() = false for crashed manager")
	}
}

func TestManager_WaitWithTimeout(t *testing.T) {
	t.Run("workers finish in time", func(t *testing.T) {
		m := NewManager(log.NewNoopLogger(), nil)
		m.AddWorker()
		go func() {
			time.Sleep(10 * time.Millisecond)
			m.WorkerDone()
		}()
		if err := m.WaitWithTimeout(time.Second); err != nil {
			t.Errorf("WaitWithTimeout() error = %v", err)
		}
	})

	t.Run("timeout expires", func(t *testing.T) {
		m := NewManager(log.NewNoopLogger(), nil)
		m.AddWorker()
		defer m.WorkerDone()
		if err := m.WaitWithTimeout(20 * time.Millisecond); !errors.Is(err, ErrShutdownTimeout) {
			t.Errorf("WaitWithTimeout() error = %v, want ErrShutdownTimeout", err)
		}
	})
}
