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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoLabel = errors.New("device has no label")

var labelCmd = &cobra.Command{
	Use:   "label DEVICE",
	Short: "Print the filesystem label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, ok := newManager().GetDeviceLabel(cmd.Context(), args[0])
		if !ok {
			return errNoLabel
		}
		fmt.Fprintln(cmd.OutOrStdout(), label)
		return nil
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size DEVICE",
	Short: "Print the capacity in decimal gigabytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", newManager().GetDeviceSize(cmd.Context(), args[0]))
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find DEVICE",
	Short: "Exit 0 when UDisks2 manages the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !newManager().Find(cmd.Context(), args[0]) {
			return fmt.Errorf("%s is not managed by udisks", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), args[0])
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info DEVICE",
	Short: "Print what is known about the device as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := newManager().Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd, sizeCmd, findCmd, infoCmd)
}
