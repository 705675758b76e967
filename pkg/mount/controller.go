package mount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/unklstewy/rotse-mount/internal/metrics"
	"github.com/unklstewy/rotse-mount/pkg/coordinates"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// Driver issues motion commands to the mount. *Client implements it.
type Driver interface {
	Goto(ctx context.Context, target pointing.EncoderPair) error
	Halt(ctx context.Context) error
	Home(ctx context.Context) error
}

var (
	// ErrNoSetpoint is returned by Nudge before any setpoint was sent.
	ErrNoSetpoint = errors.New("no setpoint to nudge")

	// ErrNudgeUnsupported is returned by Nudge when the active model has no
	// encoder gains.
	ErrNudgeUnsupported = errors.New("nudge requires the matrix pointing model")
)

// SlewRecord describes one Goto attempt.
type SlewRecord struct {
	RequestedAt time.Time
	RA          float64
	Dec         float64
	HourAngle   float64
	Model       pointing.Kind
	Encoder     pointing.EncoderPair
	Outcome     string
	Error       string
}

// SlewRecorder persists Goto attempts.
type SlewRecorder interface {
	RecordSlew(ctx context.Context, rec SlewRecord) error
}

// Controller runs the pointing pipeline:
// resolve -> pointing model -> travel limits -> mount.
type Controller struct {
	driver   Driver
	model    *pointing.Active
	site     coordinates.Site
	limits   TravelLimits
	metrics  *metrics.Collector
	recorder SlewRecorder
	now      func() time.Time

	// sunAvoidance is the minimum target-sun separation in degrees; 0 disables
	sunAvoidance float64

	mu          sync.Mutex
	setpoint    pointing.EncoderPair
	hasSetpoint bool
}

// ControllerOption configures optional Controller collaborators.
type ControllerOption func(*Controller)

// WithMetrics records resolutions and setpoints in m.
func WithMetrics(m *metrics.Collector) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithSlewRecorder persists every Goto attempt to r.
func WithSlewRecorder(r SlewRecorder) ControllerOption {
	return func(c *Controller) { c.recorder = r }
}

// WithClock overrides the time source used by Goto.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithSunAvoidance rejects targets closer than minSeparation degrees to the sun.
func WithSunAvoidance(minSeparation float64) ControllerOption {
	return func(c *Controller) { c.sunAvoidance = minSeparation }
}

// NewController creates a controller for the given site.
func NewController(driver Driver, model *pointing.Active, site coordinates.Site, limits TravelLimits, opts ...ControllerOption) *Controller {
	c := &Controller{
		driver: driver,
		model:  model,
		site:   site,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Goto points the mount at (ra, dec) in degrees at the current time.
func (c *Controller) Goto(ctx context.Context, ra, dec float64) (pointing.Solution, error) {
	return c.GotoRequest(ctx, coordinates.ObservationRequest{RA: ra, Dec: dec, Time: c.now().UTC()})
}

// GotoRequest resolves req and sends the resulting setpoint.
//
// Nothing is written to the mount unless resolution, the pointing model,
// the travel-limit check and the sun-avoidance check all succeed.
func (c *Controller) GotoRequest(ctx context.Context, req coordinates.ObservationRequest) (pointing.Solution, error) {
	model := c.model.Load()
	kind := pointing.Kind("none")
	if model != nil {
		kind = model.Kind()
	}

	sol, err := pointing.Point(req, c.site, model)
	if err == nil {
		err = c.limits.Check(sol.Encoder)
	}
	if err == nil {
		err = c.checkSun(req)
	}
	if err != nil {
		outcome := Outcome(err)
		c.metrics.ObserveResolution(string(kind), outcome)
		log.Printf("mount: rejected RA=%.5f Dec=%.5f: %v", req.RA, req.Dec, err)
		c.record(ctx, req, sol, kind, outcome, err)
		return pointing.Solution{}, err
	}
	c.metrics.ObserveResolution(string(kind), Outcome(nil))

	log.Printf("mount: RA=%.5f Dec=%.5f -> %s -> encoder %s", req.RA, req.Dec, sol.Position, sol.Encoder)
	if err := c.driver.Goto(ctx, sol.Encoder); err != nil {
		c.record(ctx, req, sol, kind, Outcome(err), err)
		return sol, err
	}
	c.metrics.SetTarget(sol.Encoder.X, sol.Encoder.Y)
	c.storeSetpoint(sol.Encoder)
	c.record(ctx, req, sol, kind, Outcome(nil), nil)
	return sol, nil
}

// Nudge offsets the last setpoint by (dHA, dDec) degrees through the matrix
// model's gains and sends the result. The travel limits still apply.
func (c *Controller) Nudge(ctx context.Context, dHA, dDec float64) (pointing.EncoderPair, error) {
	mm, ok := c.model.Load().(*pointing.MatrixModel)
	if !ok {
		return pointing.EncoderPair{}, ErrNudgeUnsupported
	}
	c.mu.Lock()
	from, has := c.setpoint, c.hasSetpoint
	c.mu.Unlock()
	if !has {
		return pointing.EncoderPair{}, ErrNoSetpoint
	}

	target := mm.Nudge(from, dHA, dDec)
	if err := c.limits.Check(target); err != nil {
		return pointing.EncoderPair{}, err
	}
	log.Printf("mount: nudge dHA=%.4f dDec=%.4f: %s -> %s", dHA, dDec, from, target)
	if err := c.driver.Goto(ctx, target); err != nil {
		return pointing.EncoderPair{}, err
	}
	c.metrics.SetTarget(target.X, target.Y)
	c.storeSetpoint(target)
	return target, nil
}

func (c *Controller) storeSetpoint(e pointing.EncoderPair) {
	c.mu.Lock()
	c.setpoint, c.hasSetpoint = e, true
	c.mu.Unlock()
}

// Halt stops both drives.
func (c *Controller) Halt(ctx context.Context) error {
	return c.driver.Halt(ctx)
}

// Home drives both axes to their home switches and forgets the setpoint.
func (c *Controller) Home(ctx context.Context) error {
	if err := c.driver.Home(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.hasSetpoint = false
	c.mu.Unlock()
	return nil
}

// SwapModel installs a new pointing model. In-flight resolutions finish
// with the model they started with.
func (c *Controller) SwapModel(m pointing.Model) {
	old := c.model.Swap(m)
	c.metrics.ObserveModelSwap()
	if old != nil {
		log.Printf("mount: pointing model replaced (%s -> %s)", old.Kind(), m.Kind())
	} else {
		log.Printf("mount: pointing model installed (%s)", m.Kind())
	}
}

// Model returns the active pointing model.
func (c *Controller) Model() pointing.Model {
	return c.model.Load()
}

func (c *Controller) checkSun(req coordinates.ObservationRequest) error {
	if c.sunAvoidance <= 0 {
		return nil
	}
	sun := coordinates.CalculateSunPosition(req.Time)
	if sep := sun.AngularSeparation(req.RA, req.Dec); sep < c.sunAvoidance {
		return fmt.Errorf("%w: %.2f° from the sun (zone %s), minimum %.2f°",
			coordinates.ErrTooCloseToSun, sep, coordinates.GetSafetyZone(sep), c.sunAvoidance)
	}
	return nil
}

func (c *Controller) record(ctx context.Context, req coordinates.ObservationRequest, sol pointing.Solution, kind pointing.Kind, outcome string, err error) {
	if c.recorder == nil {
		return
	}
	rec := SlewRecord{
		RequestedAt: req.Time,
		RA:          req.RA,
		Dec:         req.Dec,
		HourAngle:   sol.Position.HourAngle,
		Model:       kind,
		Encoder:     sol.Encoder,
		Outcome:     outcome,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if rerr := c.recorder.RecordSlew(ctx, rec); rerr != nil {
		log.Printf("mount: failed to record slew: %v", rerr)
	}
}

// Outcome classifies a pipeline error for metrics and the slew log.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, coordinates.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, pointing.ErrSingularityAtPole):
		return "pole"
	case errors.Is(err, pointing.ErrOutsideCalibrationHull):
		return "outside_hull"
	case errors.Is(err, pointing.ErrNoModel):
		return "no_model"
	case errors.Is(err, ErrOutsideTravelLimits):
		return "travel_limits"
	case errors.Is(err, coordinates.ErrTooCloseToSun):
		return "sun"
	case errors.Is(err, ErrNoResponse):
		return "no_response"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	default:
		return "error"
	}
}
