// Package telemetry fans inbound bridge notifications out to process
// metrics and, when a broker is configured, to an MQTT topic.
package telemetry

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/CornwallCorndog/Even-Crop/controller/bridge"
)

const mqttTopic = "evencrop/telemetry"

type Telemetry struct {
	flow     prometheus.Gauge
	pressure prometheus.Gauge
	speed    prometheus.Gauge
	cycles   prometheus.Counter

	mqtt mqtt.Client
}

// New registers the gauges on the default registry and optionally
// connects the MQTT mirror. A broker that cannot be reached is logged
// and skipped; telemetry is never load-bearing.
func New(broker string) *Telemetry {
	return NewWithRegistry(prometheus.DefaultRegisterer, broker)
}

func NewWithRegistry(reg prometheus.Registerer, broker string) *Telemetry {
	factory := promauto.With(reg)
	t := &Telemetry{
		flow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "evencrop_flow_lpm", Help: "Last reported flow (l/min)",
		}),
		pressure: factory.NewGauge(prometheus.GaugeOpts{
			Name: "evencrop_pressure_bar", Help: "Last reported line pressure (bar)",
		}),
		speed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "evencrop_speed_kph", Help: "Last reported ground speed (km/h)",
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "evencrop_cycles_total", Help: "Delivery cycles observed",
		}),
	}
	if broker != "" {
		opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("evencrop")
		c := mqtt.NewClient(opts)
		tok := c.Connect()
		if tok.WaitTimeout(5*time.Second) && tok.Error() == nil {
			t.mqtt = c
			logrus.Infof("telemetry: mirroring to mqtt broker %s", broker)
		} else {
			logrus.WithError(tok.Error()).Warn("telemetry: mqtt broker unreachable, mirror disabled")
		}
	}
	return t
}

// Attach registers the bridge listeners.
func (t *Telemetry) Attach(b bridge.Bridge) {
	b.OnTelemetry(t.observe)
	b.OnCycle(func() { t.cycles.Inc() })
}

func (t *Telemetry) observe(sample bridge.Telemetry) {
	t.flow.Set(sample.Flow)
	t.pressure.Set(sample.Pressure)
	t.speed.Set(sample.Speed)
	if t.mqtt != nil {
		payload, err := json.Marshal(sample)
		if err != nil {
			return
		}
		// at-most-once, fire and forget
		t.mqtt.Publish(mqttTopic, 0, false, payload)
	}
}

func (t *Telemetry) Close() {
	if t.mqtt != nil {
		t.mqtt.Disconnect(250)
	}
}
