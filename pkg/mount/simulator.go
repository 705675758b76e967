package mount

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// SimulatorState is the simulated controller's view of the mount.
type SimulatorState struct {
	Target   pointing.EncoderPair
	Position pointing.EncoderPair
	Running  [2]bool
	Homed    [2]bool
}

// Simulator is an in-process stand-in for the mount controller.
// Motion is instantaneous: a Run command moves the axis to its target.
type Simulator struct {
	conn io.ReadWriteCloser

	mu       sync.Mutex
	state    SimulatorState
	received []string
	drop     int
	garble   int
}

// NewSimulator returns a simulator and the connection a Client should use.
func NewSimulator() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return &Simulator{conn: a}, b
}

// DropResponses makes the simulator ignore the next n commands.
func (s *Simulator) DropResponses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

// GarbleResponses makes the simulator answer the next n commands with a
// line that does not name the commanded axis.
func (s *Simulator) GarbleResponses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garble = n
}

// State returns a snapshot of the simulated mount.
func (s *Simulator) State() SimulatorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Received returns every line the simulator has read, in order.
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Run serves commands until ctx is canceled or the peer disconnects.
func (s *Simulator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		defer s.conn.Close()
		scanner := bufio.NewScanner(s.conn)
		scanner.Split(scanLines)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			resp, ok := s.handle(line)
			if !ok {
				continue
			}
			if _, err := io.WriteString(s.conn, resp+LineTerminator); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
		return io.EOF
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Simulator) handle(line string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, line)

	if s.drop > 0 {
		s.drop--
		return "", false
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		log.Printf("simulator: %v", err)
		return "@Error " + line, true
	}
	if s.garble > 0 {
		s.garble--
		return "@Error", true
	}

	axis := int(cmd.Axis)
	switch cmd.Verb {
	case VerbPos:
		if cmd.Axis == AxisRA {
			s.state.Target.X = cmd.Value
		} else {
			s.state.Target.Y = cmd.Value
		}
		return fmt.Sprintf("@%s%s %d", cmd.Verb, cmd.Axis, cmd.Value), true
	case VerbRun:
		s.state.Running[axis] = true
		if cmd.Axis == AxisRA {
			s.state.Position.X = s.state.Target.X
		} else {
			s.state.Position.Y = s.state.Target.Y
		}
	case VerbHalt:
		s.state.Running[axis] = false
	case VerbHome:
		s.state.Running[axis] = false
		s.state.Homed[axis] = true
		if cmd.Axis == AxisRA {
			s.state.Position.X, s.state.Target.X = 0, 0
		} else {
			s.state.Position.Y, s.state.Target.Y = 0, 0
		}
	}
	return fmt.Sprintf("@%s%s", cmd.Verb, cmd.Axis), true
}
