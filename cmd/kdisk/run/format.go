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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carina-io/kdisk"
	"github.com/carina-io/kdisk/pkg/configuration"
	"github.com/carina-io/kdisk/pkg/devicemanager"
)

var errFormatFailed = errors.New("format failed")

var formatFlags struct {
	fsType string
	erase  string
	label  string
}

var formatCmd = &cobra.Command{
	Use:   "format DEVICE",
	Short: "Unmount and format a device",
	Long: `Unmount the device when it carries a mounted filesystem and format it.
Progress is printed while the format runs, Ctrl-C cancels the running job.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dm := newManager()
		req := devicemanager.FormatRequest{
			Device: args[0],
			Type:   formatFlags.fsType,
			Erase:  formatFlags.erase,
			Label:  formatFlags.label,
		}
		// the format outlives ctx, an interrupt cancels the udisks job instead
		task := dm.Format(context.Background(), req)
		return waitFormat(ctx, cmd, dm, task, configuration.ProgressInterval())
	},
}

func waitFormat(ctx context.Context, cmd *cobra.Command, dm *devicemanager.DeviceManager, task *devicemanager.FormatTask, interval time.Duration) error {
	out := cmd.OutOrStdout()
	device := task.Request().Device

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	interrupted := ctx.Done()
	for {
		select {
		case <-task.Done():
			fmt.Fprintf(out, "%s: %s (%s)\n", device, task.Status(), task.Duration().Round(time.Millisecond))
			if task.Status() != devicemanager.StatusSucceeded {
				return errFormatFailed
			}
			return nil
		case <-ticker.C:
			fmt.Fprintf(out, "%s: %s %.1f%%\n", device, task.State(), 100*dm.GetFormatBytesDone(context.Background(), device))
		case <-interrupted:
			fmt.Fprintf(out, "%s: cancelling\n", device)
			dm.CancelFormat(context.Background(), device)
			interrupted = nil
		}
	}
}

var progressCmd = &cobra.Command{
	Use:   "progress DEVICE",
	Short: "Print the progress fraction of the job running on the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", newManager().GetFormatBytesDone(cmd.Context(), args[0]))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel DEVICE",
	Short: "Cancel the job running on the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newManager().CancelFormat(cmd.Context(), args[0])
		return nil
	},
}

func init() {
	fs := formatCmd.Flags()
	fs.StringVarP(&formatFlags.fsType, "type", "t", kdisk.FilesystemExt4, "Filesystem type: empty, vfat, ntfs, exfat, ext4 ...")
	fs.StringVarP(&formatFlags.erase, "erase", "e", "", "Erase mode: zero, ata-secure-erase, ata-secure-erase-enhanced")
	fs.StringVarP(&formatFlags.label, "label", "l", "", "Filesystem label")
	rootCmd.AddCommand(formatCmd, progressCmd, cancelCmd)
}
