/*
 * metrics.go, part of pbembed.
 *
 * Copyright 2025 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package pbe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//Metrics are the prometheus collectors updated by a Driver. A nil *Metrics does nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	scf         *prometheus.HistogramVec
	outer       prometheus.Counter
	energy      prometheus.Gauge
	delta       prometheus.Gauge
}

//NewMetrics creates the embedding collectors and registers them with reg.
//A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbembed",
			Name:      "transitions_total",
			Help:      "State machine transitions, by state entered.",
		}, []string{"state"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbembed",
			Name:      "runs_total",
			Help:      "Finished embedding runs, by outcome.",
		}, []string{"outcome"}),
		scf: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbembed",
			Name:      "scf_duration_seconds",
			Help:      "Wall time of the solver calculations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"calc"}),
		outer: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pbembed",
			Name:      "outer_iterations_total",
			Help:      "Completed outer iterations.",
		}),
		energy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pbembed",
			Name:      "subsystem_energy_hartree",
			Help:      "Subsystem energy of the last outer iteration.",
		}),
		delta: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pbembed",
			Name:      "energy_delta_hartree",
			Help:      "Change of the subsystem energy in the last outer iteration.",
		}),
	}
}

func (M *Metrics) transition(to Status) {
	if M == nil {
		return
	}
	M.transitions.WithLabelValues(to.String()).Inc()
}

func (M *Metrics) outcome(s Status) {
	if M == nil {
		return
	}
	M.outcomes.WithLabelValues(s.String()).Inc()
}

func (M *Metrics) solverTime(calc string, start time.Time) {
	if M == nil {
		return
	}
	M.scf.WithLabelValues(calc).Observe(time.Since(start).Seconds())
}

func (M *Metrics) iteration(energy, delta float64) {
	if M == nil {
		return
	}
	M.outer.Inc()
	M.energy.Set(energy)
	M.delta.Set(delta)
}
