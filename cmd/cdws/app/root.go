/*
Copyright 2018 the cdws authors

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

package app

import (
	"github.com/spf13/cobra"

	"github.com/2gis/cdws/pkg/errlog"
)

func NewCDWSCommand() *cobra.Command {
	cmds := &cobra.Command{
		Use:   "cdws",
		Short: "Aggregate continuous-testing reports",
		Long:  "cdws collects test results from CI tools and xUnit reports, tracks launches and bugs, and computes scheduled metrics",
		Run:   rootCmd,
	}

	cmds.ResetFlags()
	cmds.AddCommand(NewCmdServe())
	cmds.AddCommand(NewCmdVersion())

	cmds.PersistentFlags().BoolVarP(&errlog.DebugOutput, "debug", "d", false, "Enable debug output (includes stack traces)")
	return cmds
}

func rootCmd(cmd *cobra.Command, args []string) {
	// cdws does nothing when not given a subcommand
	cmd.Help()
}
