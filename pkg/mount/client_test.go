package mount

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// startSimulator connects a client to a running simulator.
func startSimulator(t *testing.T, opts Options) (*Client, *Simulator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	sim, conn := NewSimulator()
	client := NewClient(conn, opts)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sim.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		client.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return client, sim
}

func fastOptions() Options {
	return Options{
		CommandInterval: time.Millisecond,
		ResponseTimeout: 100 * time.Millisecond,
	}
}

func TestClientGoto(t *testing.T) {
	client, sim := startSimulator(t, fastOptions())

	target := pointing.EncoderPair{X: 1853086, Y: -309384}
	if err := client.Goto(context.Background(), target); err != nil {
		t.Fatalf("Goto: %v", err)
	}

	want := []string{"$PosRA 1853086", "$PosDec -309384", "$RunRA", "$RunDec"}
	if diff := cmp.Diff(want, sim.Received()); diff != "" {
		t.Errorf("unexpected commands: (-want +got):\n%s", diff)
	}
	state := sim.State()
	if state.Position != target {
		t.Errorf("simulated position = %v, want %v", state.Position, target)
	}
	if !state.Running[0] || !state.Running[1] {
		t.Errorf("axes not running: %v", state.Running)
	}
}

func TestClientHaltAndHome(t *testing.T) {
	client, sim := startSimulator(t, fastOptions())
	ctx := context.Background()

	if err := client.Goto(ctx, pointing.EncoderPair{X: 10, Y: 20}); err != nil {
		t.Fatalf("Goto: %v", err)
	}
	if err := client.Halt(ctx); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if state := sim.State(); state.Running[0] || state.Running[1] {
		t.Errorf("axes still running after halt: %v", state.Running)
	}
	if err := client.Home(ctx); err != nil {
		t.Fatalf("Home: %v", err)
	}

	want := []string{
		"$PosRA 10", "$PosDec 20", "$RunRA", "$RunDec",
		"$HaltRA", "$HaltDec",
		"$HomeRA", "$HomeDec",
	}
	if diff := cmp.Diff(want, sim.Received()); diff != "" {
		t.Errorf("unexpected commands: (-want +got):\n%s", diff)
	}
	want2 := SimulatorState{Homed: [2]bool{true, true}}
	if diff := cmp.Diff(want2, sim.State()); diff != "" {
		t.Errorf("unexpected state after home: (-want +got):\n%s", diff)
	}
}

func TestClientResendsOnTimeout(t *testing.T) {
	var mu sync.Mutex
	var attempts []error
	opts := fastOptions()
	opts.OnCommand = func(cmd Command, err error) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, err)
	}
	client, sim := startSimulator(t, opts)
	sim.DropResponses(1)

	resp, err := client.Send(context.Background(), Command{Verb: VerbHalt, Axis: AxisRA})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "@HaltRA" {
		t.Errorf("response = %q, want %q", resp, "@HaltRA")
	}
	if diff := cmp.Diff([]string{"$HaltRA", "$HaltRA"}, sim.Received()); diff != "" {
		t.Errorf("unexpected commands: (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 || !errors.Is(attempts[0], ErrNoResponse) || attempts[1] != nil {
		t.Errorf("attempts = %v, want [no response, nil]", attempts)
	}
}

func TestClientGivesUp(t *testing.T) {
	t.Run("no response", func(t *testing.T) {
		opts := fastOptions()
		opts.MaxRetries = 2
		client, sim := startSimulator(t, opts)
		sim.DropResponses(10)

		_, err := client.Send(context.Background(), PosCommand(AxisDec, 5))
		if !errors.Is(err, ErrNoResponse) {
			t.Fatalf("Send error = %v, want ErrNoResponse", err)
		}
		if n := len(sim.Received()); n != 3 {
			t.Errorf("simulator saw %d lines, want 3", n)
		}
	})

	t.Run("bad response", func(t *testing.T) {
		opts := fastOptions()
		opts.MaxRetries = -1
		client, sim := startSimulator(t, opts)
		sim.GarbleResponses(1)

		_, err := client.Send(context.Background(), PosCommand(AxisRA, 5))
		if !errors.Is(err, ErrBadResponse) {
			t.Fatalf("Send error = %v, want ErrBadResponse", err)
		}
		if n := len(sim.Received()); n != 1 {
			t.Errorf("simulator saw %d lines, want 1", n)
		}
	})
}

func TestClientPacesCommands(t *testing.T) {
	opts := fastOptions()
	opts.CommandInterval = 20 * time.Millisecond
	client, _ := startSimulator(t, opts)

	start := time.Now()
	if err := client.Goto(context.Background(), pointing.EncoderPair{X: 1, Y: 2}); err != nil {
		t.Fatalf("Goto: %v", err)
	}
	// Four lines need at least three intervals between them.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("Goto took %v, want at least 55ms", elapsed)
	}
}

func TestClientCanceledContext(t *testing.T) {
	client, sim := startSimulator(t, fastOptions())
	sim.DropResponses(10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	opts := client.opts
	opts.ResponseTimeout = time.Second
	client.opts = opts

	_, err := client.Send(ctx, Command{Verb: VerbHome, Axis: AxisRA})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send error = %v, want context.DeadlineExceeded", err)
	}
}
