// Package controller assembles the whole rig service: persistent state,
// the cab bridge (live or simulated), the operating modules and the
// HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/CornwallCorndog/Even-Crop/controller/api"
	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/alarm"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/calibration"
	"github.com/CornwallCorndog/Even-Crop/controller/modules/tramline"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
	"github.com/CornwallCorndog/Even-Crop/controller/storage"
	"github.com/CornwallCorndog/Even-Crop/controller/telemetry"
)

type Controller struct {
	opts      Options
	db        storage.Store
	store     *state.Store
	bridge    bridge.Bridge
	tram      *tramline.Engine
	detector  *alarm.Detector
	flush     *calibration.Flush
	telemetry *telemetry.Telemetry
	server    *http.Server
}

func New(opts Options) (*Controller, error) {
	db, err := storage.NewStore(opts.Database)
	if err != nil {
		return nil, err
	}
	st, err := state.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	b := bridge.Connect(opts.BridgeURL, opts.Simulate, st)
	c := &Controller{
		opts:      opts,
		db:        db,
		store:     st,
		bridge:    b,
		tram:      tramline.New(st, b),
		detector:  alarm.New(st, b, alarm.NewLogSounder()),
		flush:     calibration.NewFlush(st, b),
		telemetry: telemetry.New(opts.MQTTBroker),
	}
	b.OnCycle(c.detector.OnCycle)
	b.OnEvent(c.onEvent)
	c.telemetry.Attach(b)
	return c, nil
}

// onEvent applies cab-side notifications. The effective inter-group
// delay is computed on the cab from geometry and speed; we track it and
// keep group B per-unit offsets within the new floor.
func (c *Controller) onEvent(ev bridge.Event) {
	if ev.Name != bridge.EventAutoDelay {
		return
	}
	ms := int(ev.Value)
	if ms < 0 {
		ms = 0
	}
	c.store.Update(func(st *state.State) {
		st.AutoDelay.CurrentMs = ms
		for i := range st.Units {
			u := &st.Units[i]
			u.PerDelayMs = state.ClampPerDelay(u.Group, u.PerDelayMs, ms)
		}
	})
}

// Start brings up scheduled flushes and serves the API. It blocks until
// the HTTP listener fails or the controller is closed.
func (c *Controller) Start() error {
	for _, f := range c.opts.Flushes {
		if err := c.flush.StartSchedule(f.Unit, f.Rule, f.Ms); err != nil {
			logrus.Errorf("flush schedule for unit %d: %v", f.Unit, err)
		}
	}
	r := mux.NewRouter()
	api.New(c.store, c.bridge, c.tram, c.detector, c.flush).LoadAPI(r)
	c.server = &http.Server{Addr: c.opts.Listen, Handler: r}
	logrus.Infof("listening on %s", c.opts.Listen)
	err := c.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (c *Controller) Close() {
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.server.Shutdown(ctx)
	}
	c.flush.Close()
	c.telemetry.Close()
	c.bridge.Close()
	if err := c.db.Close(); err != nil {
		logrus.Errorf("closing database: %v", err)
	}
}
