package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opaluk/terneod/terneo"
)

// collector exposes the cached device state as Prometheus metrics. Values
// come from the last snapshot, so scrape cadence never generates device
// traffic.
type collector struct {
	client *terneo.Client

	floorTemp   *prometheus.Desc
	airTemp     *prometheus.Desc
	targetTemp  *prometheus.Desc
	relayOn     *prometheus.Desc
	powerOn     *prometheus.Desc
	fresh       *prometheus.Desc
	phase       *prometheus.Desc
	revision    *prometheus.Desc
	snapshotAge *prometheus.Desc
}

func newCollector(client *terneo.Client, sn string) *collector {
	labels := prometheus.Labels{"serial": sn}
	return &collector{
		client: client,
		floorTemp: prometheus.NewDesc("terneod_floor_temperature_celsius",
			"Floor sensor reading.", nil, labels),
		airTemp: prometheus.NewDesc("terneod_air_temperature_celsius",
			"Air sensor reading, new-generation devices only.", nil, labels),
		targetTemp: prometheus.NewDesc("terneod_target_temperature_celsius",
			"Effective setpoint, absent when powered off.", nil, labels),
		relayOn: prometheus.NewDesc("terneod_relay_on",
			"Whether the load relay is closed.", nil, labels),
		powerOn: prometheus.NewDesc("terneod_power_on",
			"Whether the device is powered on.", nil, labels),
		fresh: prometheus.NewDesc("terneod_state_fresh",
			"Whether the cached state is within the staleness threshold.", nil, labels),
		phase: prometheus.NewDesc("terneod_session_phase",
			"Session phase: 0 uninitialized, 1 detecting, 2 polling, 3 degraded, 4 stopped.", nil, labels),
		revision: prometheus.NewDesc("terneod_state_revision",
			"Monotonic revision of the cached state.", nil, labels),
		snapshotAge: prometheus.NewDesc("terneod_state_age_seconds",
			"Age of the cached state.", nil, labels),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.floorTemp
	ch <- c.airTemp
	ch <- c.targetTemp
	ch <- c.relayOn
	ch <- c.powerOn
	ch <- c.fresh
	ch <- c.phase
	ch <- c.revision
	ch <- c.snapshotAge
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	health := c.client.Health()
	ch <- prometheus.MustNewConstMetric(c.phase, prometheus.GaugeValue, float64(health.Phase))
	ch <- prometheus.MustNewConstMetric(c.fresh, prometheus.GaugeValue, boolGauge(health.Fresh))

	snap := c.client.Snapshot()
	if snap == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.revision, prometheus.CounterValue, float64(snap.Revision))
	ch <- prometheus.MustNewConstMetric(c.snapshotAge, prometheus.GaugeValue, time.Since(snap.UpdatedAt).Seconds())
	ch <- prometheus.MustNewConstMetric(c.powerOn, prometheus.GaugeValue, boolGauge(snap.PowerOn()))

	if snap.Status.FloorTemperature != nil {
		ch <- prometheus.MustNewConstMetric(c.floorTemp, prometheus.GaugeValue, *snap.Status.FloorTemperature)
	}
	if snap.Status.AirTemperature != nil {
		ch <- prometheus.MustNewConstMetric(c.airTemp, prometheus.GaugeValue, *snap.Status.AirTemperature)
	}
	if snap.TargetTemperature != nil {
		ch <- prometheus.MustNewConstMetric(c.targetTemp, prometheus.GaugeValue, *snap.TargetTemperature)
	}
	if snap.Status.RelayOn != nil {
		ch <- prometheus.MustNewConstMetric(c.relayOn, prometheus.GaugeValue, boolGauge(*snap.Status.RelayOn))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
