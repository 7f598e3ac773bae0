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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carina-io/kdisk"
	"github.com/carina-io/kdisk/pkg/configuration"
	"github.com/carina-io/kdisk/pkg/devicemanager"
	"github.com/carina-io/kdisk/utils/log"
)

// GitCommitID is set by main from the linker flags
var GitCommitID = "dev"

var config struct {
	configPath string
	logFile    string
	debug      bool
}

func newManager() *devicemanager.DeviceManager {
	return devicemanager.NewDeviceManager(configuration.BusAddress(), configuration.FormatTimeout())
}

var rootCmd = &cobra.Command{
	Use:     "kdisk",
	Version: kdisk.Version,
	Short:   "Format disks through UDisks2",
	Long: `kdisk resolves a device node to its UDisks2 block object, unmounts it
and formats it with the filesystem, label and erase mode asked for.

Unlocked encrypted containers are formatted through their backing device.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&config.configPath, "config", "", "Configuration file, default /etc/kdisk/config.json")
	fs.StringVar(&config.logFile, "log-file", "", "Also write logs to this rotated file")
	fs.BoolVar(&config.debug, "debug", false, "Log at debug level")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := configuration.Load(config.configPath); err != nil {
		return err
	}
	if config.logFile != "" {
		log.Setup(log.Options{Filename: config.logFile})
	}
	if config.debug {
		log.SetLevel("debug")
	}
	return nil
}
