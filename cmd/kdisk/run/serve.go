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


package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/carina-io/kdisk/pkg/configuration"
	"github.com/carina-io/kdisk/pkg/devicemanager"
	"github.com/carina-io/kdisk/pkg/metrics"
	"github.com/carina-io/kdisk/utils/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the format API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func printWelcome() {
	log.Info("-------- Welcome to use kdisk Server --------")
	log.Infof("Git Commit ID : %s", GitCommitID)
	log.Infof("http addr : %s", configuration.HttpAddr())
	log.Info("------------------------------------")
}

func serve(ctx context.Context) error {
	printWelcome()
	configuration.Watch()

	registry := devicemanager.NewTaskRegistry(newManager(), configuration.TaskRetention())
	collector, err := metrics.NewKdiskCollector(registry)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return err
	}

	notice := make(chan struct{}, 1)
	configuration.RegisterListenerChan(notice)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-notice:
				registry.Manager().SetFormatTimeout(configuration.FormatTimeout())
				log.Infof("format timeout is now %s", configuration.FormatTimeout())
			}
		}
	}()

	return newHttpServer(registry, reg, ctx.Done()).start(configuration.HttpAddr())
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
