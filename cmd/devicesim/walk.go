package main

import (
	"math"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/discoverymap/internal/adapters/nats"
	"github.com/samirrijal/discoverymap/internal/core/domain"
)

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Publish a random walk of fixes",
	Long:  "Publishes a fix every interval, drifting from the start coordinate, and answers fresh-fix requests immediately.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id, _ := cmd.Flags().GetString("device")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		step, _ := cmd.Flags().GetFloat64("step")
		accuracy, _ := cmd.Flags().GetFloat64("accuracy")
		interval, _ := cmd.Flags().GetDuration("interval")

		if !natsadapter.ValidToken(id) {
			return eris.Errorf("devicesim: invalid device id %q", id)
		}
		start := domain.Coordinate{Lat: lat, Lng: lng}
		if !start.Valid() {
			return eris.New("devicesim: start coordinate out of range")
		}
		if interval <= 0 {
			return eris.New("devicesim: interval must be positive")
		}
		w := &walker{pos: start, step: step, accuracy: accuracy}

		pub, nc, err := connect("discoverymap-devicesim-" + id)
		if err != nil {
			return err
		}
		defer pub.Close()

		subjects := subjectsFromConfig()
		sub, err := nc.Subscribe(subjects.DeviceRequest(id), func(*nats.Msg) {
			if err := pub.ReportFix(ctx, id, w.current()); err != nil {
				logger(id).Warn("answer fix request failed", "error", err)
			}
		})
		if err != nil {
			return eris.Wrap(err, "devicesim: subscribe requests")
		}
		defer func() { _ = sub.Unsubscribe() }()

		logger(id).Info("walking", "lat", lat, "lng", lng, "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := pub.ReportFix(ctx, id, w.next()); err != nil {
				return eris.Wrap(err, "devicesim: publish fix")
			}
			select {
			case <-ctx.Done():
				logger(id).Info("stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	walkCmd.Flags().Float64("lat", 43.068, "start latitude")
	walkCmd.Flags().Float64("lng", 141.35, "start longitude")
	walkCmd.Flags().Float64("step", 0.0002, "max drift per fix in degrees")
	walkCmd.Flags().Float64("accuracy", 8, "reported accuracy radius in meters")
	walkCmd.Flags().Duration("interval", 2*time.Second, "time between fixes")
	rootCmd.AddCommand(walkCmd)
}

// walker produces a bounded random walk. Request replies read it from
// the NATS callback goroutine.
type walker struct {
	mu       sync.Mutex
	pos      domain.Coordinate
	step     float64
	accuracy float64
}

func (w *walker) next() domain.Fix {
	w.mu.Lock()
	w.pos.Lat = clamp(w.pos.Lat+(rand.Float64()*2-1)*w.step, -90, 90)
	w.pos.Lng = clamp(w.pos.Lng+(rand.Float64()*2-1)*w.step, -180, 180)
	w.mu.Unlock()
	return w.current()
}

func (w *walker) current() domain.Fix {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.Fix{Coordinate: w.pos, Accuracy: w.accuracy, Time: time.Now().UTC()}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
