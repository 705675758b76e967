package mount

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

const (
	// DefaultCommandInterval is the minimum spacing between command lines.
	DefaultCommandInterval = 100 * time.Millisecond

	// DefaultResponseTimeout is how long to wait for an answer to one line.
	DefaultResponseTimeout = time.Second

	// DefaultMaxRetries is the number of resends after the first attempt.
	DefaultMaxRetries = 2
)

// ErrClosed is returned by Send after the connection has been shut down.
var ErrClosed = errors.New("mount connection closed")

// Options tunes the command exchange. Zero values select the defaults.
type Options struct {
	CommandInterval time.Duration
	ResponseTimeout time.Duration

	// MaxRetries is the number of resends after a timeout or bad response.
	// A negative value disables resending.
	MaxRetries int

	// OnCommand, if set, is called once per command line written
	// (including resends) with the error of that attempt.
	OnCommand func(cmd Command, err error)
}

func (o Options) withDefaults() Options {
	if o.CommandInterval <= 0 {
		o.CommandInterval = DefaultCommandInterval
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	} else if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return o
}

// Client exchanges commands with the mount controller.
// Exchanges are serialized: one command is in flight at a time.
type Client struct {
	conn    io.ReadWriteCloser
	opts    Options
	limiter *rate.Limiter

	// mu serializes command exchanges so physical motion commands never interleave
	mu        sync.Mutex
	responses chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an open connection. Run must be started before Send.
func NewClient(conn io.ReadWriteCloser, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		conn:      conn,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Every(opts.CommandInterval), 1),
		responses: make(chan string, 16),
		done:      make(chan struct{}),
	}
}

// Run reads controller output until ctx is canceled or the connection fails.
// The connection is closed when Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer c.markDone()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-gctx.Done()
		return c.conn.Close()
	})
	g.Go(func() error {
		defer c.markDone()
		scanner := bufio.NewScanner(c.conn)
		scanner.Split(scanLines)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case c.responses <- line:
			default:
				log.Printf("mount: dropping unsolicited response %q", line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading mount port: %w", err)
		}
		return io.EOF
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send writes cmd and waits for the controller's answer.
//
// A timeout or an answer that does not name the commanded axis causes the
// line to be resent, up to MaxRetries times. The final failure is returned
// wrapping ErrNoResponse or ErrBadResponse.
func (c *Client) Send(ctx context.Context, cmd Command) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := cmd.String()
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("mount: resending %s (attempt %d of %d): %v", line, attempt+1, c.opts.MaxRetries+1, lastErr)
		}

		resp, err := c.exchange(ctx, cmd)
		c.observe(cmd, err)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrNoResponse) && !errors.Is(err, ErrBadResponse) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s failed after %d attempts: %w", line, c.opts.MaxRetries+1, lastErr)
}

func (c *Client) exchange(ctx context.Context, cmd Command) (string, error) {
	c.drain()
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}
	if _, err := io.WriteString(c.conn, cmd.String()+LineTerminator); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", cmd, err)
	}

	timer := time.NewTimer(c.opts.ResponseTimeout)
	defer timer.Stop()
	select {
	case resp := <-c.responses:
		if err := checkResponse(cmd, resp); err != nil {
			return "", err
		}
		return resp, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: %s after %v", ErrNoResponse, cmd, c.opts.ResponseTimeout)
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drain discards stale answers left over from a timed-out exchange.
func (c *Client) drain() {
	for {
		select {
		case resp := <-c.responses:
			log.Printf("mount: discarding stale response %q", resp)
		default:
			return
		}
	}
}

func (c *Client) observe(cmd Command, err error) {
	if c.opts.OnCommand != nil {
		c.opts.OnCommand(cmd, err)
	}
}

// Goto sets both axis targets and starts motion:
// $PosRA, $PosDec, $RunRA, $RunDec.
func (c *Client) Goto(ctx context.Context, target pointing.EncoderPair) error {
	return c.sequence(ctx, "goto",
		PosCommand(AxisRA, target.X),
		PosCommand(AxisDec, target.Y),
		Command{Verb: VerbRun, Axis: AxisRA},
		Command{Verb: VerbRun, Axis: AxisDec},
	)
}

// Halt stops both drives.
func (c *Client) Halt(ctx context.Context) error {
	return c.sequence(ctx, "halt",
		Command{Verb: VerbHalt, Axis: AxisRA},
		Command{Verb: VerbHalt, Axis: AxisDec},
	)
}

// Home drives both axes to their home switches.
func (c *Client) Home(ctx context.Context) error {
	return c.sequence(ctx, "home",
		Command{Verb: VerbHome, Axis: AxisRA},
		Command{Verb: VerbHome, Axis: AxisDec},
	)
}

func (c *Client) sequence(ctx context.Context, name string, cmds ...Command) error {
	for _, cmd := range cmds {
		if _, err := c.Send(ctx, cmd); err != nil {
			return fmt.Errorf("failed to %s: %w", name, err)
		}
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.markDone()
	return c.conn.Close()
}
