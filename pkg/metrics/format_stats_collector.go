/*
  Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/


package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carina-io/kdisk/pkg/devicemanager"
)

const formatSubSystem = "format"

var (
	formatLabels = []string{"device", "type"}

	formatStatusDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, formatSubSystem, "status"),
		"Result of the latest format per device, 0 pending, 1 succeeded, -1 failed.",
		formatLabels,
		constLabels,
	)
	formatStateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, formatSubSystem, "state"),
		"Step of the latest format per device, 0 resolved, 1 unmounting, 2 formatting, 3 terminal.",
		formatLabels,
		constLabels,
	)
	formatDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, formatSubSystem, "duration_seconds"),
		"Duration of the latest finished format per device.",
		formatLabels,
		constLabels,
	)
)

type formatStatsCollector struct {
	descs    []typedFactorDesc
	registry *devicemanager.TaskRegistry
}

func newFormatStatsCollector(registry *devicemanager.TaskRegistry) (Collector, error) {
	return &formatStatsCollector{
		descs: []typedFactorDesc{
			{desc: formatStatusDesc, valueType: prometheus.GaugeValue},
			{desc: formatStateDesc, valueType: prometheus.GaugeValue},
			{desc: formatDurationDesc, valueType: prometheus.GaugeValue},
		},
		registry: registry,
	}, nil
}

func (f *formatStatsCollector) Name() string {
	return "format_stats"
}

func (f *formatStatsCollector) Update(ch chan<- prometheus.Metric) error {
	tasks := f.registry.Tasks()
	if len(tasks) == 0 {
		return ErrNoData
	}
	for _, t := range tasks {
		req := t.Request()
		// need keep order with desc
		for i, val := range []float64{
			float64(t.Status()),
			float64(t.State()),
			t.Duration().Seconds(),
		} {
			if i >= len(f.descs) {
				break
			}
			ch <- f.descs[i].mustNewConstMetric(val, req.Device, req.Type)
		}
	}
	return nil
}
