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
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carina-io/kdisk/pkg/devicemanager"
)

// bounds the udisks round trip of one scrape
const progressTimeout = 5 * time.Second

var formatProgressDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, formatSubSystem, "progress_ratio"),
	"Progress of the udisks job running a pending format, 0 when unknown.",
	formatLabels,
	constLabels,
)

type formatProgressCollector struct {
	desc     typedFactorDesc
	registry *devicemanager.TaskRegistry
}

func newFormatProgressCollector(registry *devicemanager.TaskRegistry) (Collector, error) {
	return &formatProgressCollector{
		desc:     typedFactorDesc{desc: formatProgressDesc, valueType: prometheus.GaugeValue},
		registry: registry,
	}, nil
}

func (f *formatProgressCollector) Name() string {
	return "format_progress"
}

func (f *formatProgressCollector) Update(ch chan<- prometheus.Metric) error {
	ctx, cancel := context.WithTimeout(context.Background(), progressTimeout)
	defer cancel()

	found := false
	for _, t := range f.registry.Tasks() {
		if t.Status() != devicemanager.StatusPending {
			continue
		}
		found = true
		req := t.Request()
		progress := f.registry.Manager().GetFormatBytesDone(ctx, req.Device)
		ch <- f.desc.mustNewConstMetric(progress, req.Device, req.Type)
	}
	if !found {
		return ErrNoData
	}
	return nil
}
