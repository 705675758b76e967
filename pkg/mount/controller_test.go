package mount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unklstewy/rotse-mount/internal/metrics"
	"github.com/unklstewy/rotse-mount/pkg/coordinates"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// fakeDriver records motion calls instead of talking to a mount.
type fakeDriver struct {
	gotos []pointing.EncoderPair
	halts int
	homes int
	err   error
}

func (f *fakeDriver) Goto(_ context.Context, target pointing.EncoderPair) error {
	f.gotos = append(f.gotos, target)
	return f.err
}

func (f *fakeDriver) Halt(context.Context) error {
	f.halts++
	return f.err
}

func (f *fakeDriver) Home(context.Context) error {
	f.homes++
	return f.err
}

type memoryRecorder struct {
	records []SlewRecord
}

func (m *memoryRecorder) RecordSlew(_ context.Context, rec SlewRecord) error {
	m.records = append(m.records, rec)
	return nil
}

var rotseSite = coordinates.Site{Name: "ROTSE-IIIc", Latitude: -23.272951, Longitude: 16.502814, Elevation: 1800}

func rotseTable() pointing.CalibrationTable {
	return pointing.CalibrationTable{Samples: []pointing.CalibrationSample{
		{HourAngle: -69.997, Declination: -14.565, Encoder: pointing.EncoderPair{X: 1853086, Y: 1299012}},
		{HourAngle: 70.912, Declination: -10.56, Encoder: pointing.EncoderPair{X: -1582589, Y: 1355807}},
		{HourAngle: -2.389, Declination: 30.733, Encoder: pointing.EncoderPair{X: 194421, Y: 2166675}},
		{HourAngle: 3.023, Declination: -83.108, Encoder: pointing.EncoderPair{X: 110055, Y: -309384}},
	}}
}

func newTestController(t *testing.T, model pointing.Model, limits TravelLimits) (*Controller, *fakeDriver, *memoryRecorder, *metrics.Collector) {
	t.Helper()
	col, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	driver := &fakeDriver{}
	rec := &memoryRecorder{}
	now := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	c := NewController(driver, pointing.NewActive(model), rotseSite, limits,
		WithMetrics(col),
		WithSlewRecorder(rec),
		WithClock(func() time.Time { return now }),
	)
	return c, driver, rec, col
}

// raForHourAngle returns the RA that sits at hour angle ha at the given time.
func raForHourAngle(ha float64, at time.Time) float64 {
	lst := coordinates.LocalSiderealTime(rotseSite.Longitude, at)
	return coordinates.NormalizeAngle(lst*coordinates.DegreesPerHour - ha)
}

func TestControllerGotoSendsSetpoint(t *testing.T) {
	model, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	c, driver, rec, col := newTestController(t, model, TravelLimits{})

	at := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	sol, err := c.Goto(context.Background(), raForHourAngle(0, at), 0)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}

	want, err := model.ToEncoder(sol.Position.HourAngle, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]pointing.EncoderPair{want}, driver.gotos); diff != "" {
		t.Errorf("driver calls mismatch (-want +got):\n%s", diff)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != "ok" || rec.records[0].Model != pointing.KindInterpolation {
		t.Errorf("slew records = %+v", rec.records)
	}
	if got := testutil.ToFloat64(col.Resolutions.WithLabelValues("interpolation", "ok")); got != 1 {
		t.Errorf("ok resolutions = %v, want 1", got)
	}
}

func TestControllerNeverSendsOnFailure(t *testing.T) {
	interp, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	matrix, err := pointing.NewMatrixModel(pointing.MatrixParams{
		Rotation: pointing.IdentityRotation(),
		Gain:     [2]float64{1000, 1000},
		Latitude: rotseSite.Latitude,
	})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		model   pointing.Model
		limits  TravelLimits
		ra, dec float64
		want    error
		outcome string
	}{
		{"outside hull", interp, TravelLimits{}, raForHourAngle(120, at), 0, pointing.ErrOutsideCalibrationHull, "outside_hull"},
		{"pole", matrix, TravelLimits{}, 10, -90, pointing.ErrSingularityAtPole, "pole"},
		{"invalid dec", matrix, TravelLimits{}, 10, 120, coordinates.ErrInvalidInput, "invalid_input"},
		{"no model", nil, TravelLimits{}, 10, 10, pointing.ErrNoModel, "no_model"},
		{"travel limits", interp, TravelLimits{MinX: -10, MaxX: 10}, raForHourAngle(0, at), 0, ErrOutsideTravelLimits, "travel_limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, driver, rec, _ := newTestController(t, tt.model, tt.limits)
			sol, err := c.Goto(context.Background(), tt.ra, tt.dec)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Goto error = %v, want %v", err, tt.want)
			}
			if sol != (pointing.Solution{}) {
				t.Errorf("Goto returned solution %+v with error", sol)
			}
			if len(driver.gotos) != 0 {
				t.Errorf("driver received %v despite failure", driver.gotos)
			}
			if len(rec.records) != 1 || rec.records[0].Outcome != tt.outcome {
				t.Errorf("slew records = %+v, want one with outcome %q", rec.records, tt.outcome)
			}
		})
	}
}

func TestControllerDriverError(t *testing.T) {
	model, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	c, driver, rec, _ := newTestController(t, model, TravelLimits{})
	driver.err = ErrNoResponse

	at := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	if _, err := c.Goto(context.Background(), raForHourAngle(5, at), -20); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Goto error = %v, want ErrNoResponse", err)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != "no_response" {
		t.Errorf("slew records = %+v", rec.records)
	}
}

func TestControllerSwapModel(t *testing.T) {
	c, driver, _, col := newTestController(t, nil, TravelLimits{})
	if _, err := c.Goto(context.Background(), 10, 10); !errors.Is(err, pointing.ErrNoModel) {
		t.Fatalf("Goto without model error = %v", err)
	}

	model, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	c.SwapModel(model)
	if c.Model() != pointing.Model(model) {
		t.Error("Model() does not return the swapped-in model")
	}
	if got := testutil.ToFloat64(col.ModelSwaps); got != 1 {
		t.Errorf("model swaps = %v, want 1", got)
	}

	at := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	if _, err := c.Goto(context.Background(), raForHourAngle(0, at), 0); err != nil {
		t.Fatalf("Goto after swap: %v", err)
	}
	if len(driver.gotos) != 1 {
		t.Errorf("driver calls = %d, want 1", len(driver.gotos))
	}
}

func TestControllerHaltHome(t *testing.T) {
	c, driver, _, _ := newTestController(t, nil, TravelLimits{})
	if err := c.Halt(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Home(context.Background()); err != nil {
		t.Fatal(err)
	}
	if driver.halts != 1 || driver.homes != 1 {
		t.Errorf("halts = %d, homes = %d; want 1, 1", driver.halts, driver.homes)
	}
}

func TestControllerWithSimulator(t *testing.T) {
	client, sim := startSimulator(t, fastOptions())
	model, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	c := NewController(client, pointing.NewActive(model), rotseSite, TravelLimits{},
		WithClock(func() time.Time { return now }))

	if _, err := c.Goto(context.Background(), raForHourAngle(200, now), 0); err == nil {
		t.Fatal("Goto outside hull succeeded")
	}
	if n := len(sim.Received()); n != 0 {
		t.Fatalf("simulator received %d lines after a failed resolution", n)
	}

	sol, err := c.Goto(context.Background(), raForHourAngle(-2.389, now), 30.733)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}
	if got := sim.State().Position; got != sol.Encoder {
		t.Errorf("simulated position = %v, want %v", got, sol.Encoder)
	}
}

func TestControllerSunAvoidance(t *testing.T) {
	matrix, err := pointing.NewMatrixModel(pointing.MatrixParams{
		Rotation: pointing.IdentityRotation(),
		Gain:     [2]float64{1000, 1000},
		Latitude: rotseSite.Latitude,
	})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	sun := coordinates.CalculateSunPosition(now)
	driver := &fakeDriver{}
	rec := &memoryRecorder{}
	c := NewController(driver, pointing.NewActive(matrix), rotseSite, TravelLimits{},
		WithSunAvoidance(20),
		WithSlewRecorder(rec),
		WithClock(func() time.Time { return now }),
	)

	if _, err := c.Goto(context.Background(), sun.RA+5, sun.Dec); !errors.Is(err, coordinates.ErrTooCloseToSun) {
		t.Fatalf("Goto near the sun error = %v, want ErrTooCloseToSun", err)
	}
	if len(driver.gotos) != 0 {
		t.Errorf("driver received %v for a target near the sun", driver.gotos)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != "sun" {
		t.Errorf("slew records = %+v", rec.records)
	}

	if _, err := c.Goto(context.Background(), coordinates.NormalizeAngle(sun.RA+180), 0); err != nil {
		t.Fatalf("Goto opposite the sun: %v", err)
	}
	if len(driver.gotos) != 1 {
		t.Errorf("driver calls = %d, want 1", len(driver.gotos))
	}
}

func TestControllerNudge(t *testing.T) {
	matrix, err := pointing.NewMatrixModel(pointing.MatrixParams{
		Rotation: pointing.IdentityRotation(),
		Gain:     [2]float64{1000, 1000},
		Latitude: rotseSite.Latitude,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, driver, _, col := newTestController(t, matrix, TravelLimits{MinX: -5000000, MaxX: 5000000})
	ctx := context.Background()

	if _, err := c.Nudge(ctx, 0.1, 0.1); !errors.Is(err, ErrNoSetpoint) {
		t.Fatalf("Nudge before Goto error = %v, want ErrNoSetpoint", err)
	}

	at := time.Date(2004, 9, 28, 21, 0, 0, 0, time.UTC)
	sol, err := c.Goto(ctx, raForHourAngle(30, at), -20)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}

	got, err := c.Nudge(ctx, 0.1, -0.05)
	if err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	want := pointing.EncoderPair{X: sol.Encoder.X + 100, Y: sol.Encoder.Y - 50}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Nudge() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]pointing.EncoderPair{sol.Encoder, want}, driver.gotos); diff != "" {
		t.Errorf("driver calls mismatch (-want +got):\n%s", diff)
	}
	if x := testutil.ToFloat64(col.Target.WithLabelValues("ra")); x != float64(want.X) {
		t.Errorf("target X gauge = %v, want %d", x, want.X)
	}

	if _, err := c.Nudge(ctx, 1e4, 0); !errors.Is(err, ErrOutsideTravelLimits) {
		t.Errorf("Nudge past the travel limit error = %v, want ErrOutsideTravelLimits", err)
	}
	if len(driver.gotos) != 2 {
		t.Errorf("driver calls = %d after rejected nudge, want 2", len(driver.gotos))
	}

	if err := c.Home(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Nudge(ctx, 0.1, 0); !errors.Is(err, ErrNoSetpoint) {
		t.Errorf("Nudge after Home error = %v, want ErrNoSetpoint", err)
	}

	interp, err := pointing.NewInterpolationModel(rotseTable())
	if err != nil {
		t.Fatal(err)
	}
	c.SwapModel(interp)
	if _, err := c.Nudge(ctx, 0.1, 0); !errors.Is(err, ErrNudgeUnsupported) {
		t.Errorf("Nudge with interpolation model error = %v, want ErrNudgeUnsupported", err)
	}
}
