package commands

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for inspecting eventrouter configuration and scopes.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runDebugConfig,
}

var debugScopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Show scopes and the aliases a router registers at each",
	RunE:  runDebugScopes,
}

var debugQuery string

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show where configuration is looked up",
	RunE:  runDebugPaths,
}

func init() {
	debugConfigCmd.Flags().StringVarP(&debugQuery, "query", "q", "", "jq expression applied to the output")

	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugScopesCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	return NewRenderer(cmd.OutOrStdout(), noColor).JSON(appConfig, debugQuery)
}

func runDebugScopes(cmd *cobra.Command, args []string) error {
	out := NewRenderer(cmd.OutOrStdout(), noColor)
	for _, s := range scope.All() {
		out.Heading("%s (rank %d)", s, int(s))

		aliases := router.Aliases(s)
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.Line("  %-18s %s", name, aliases[name])
		}
		out.Line("")
	}
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	out := NewRenderer(cmd.OutOrStdout(), noColor)
	out.Heading("eventrouter configuration lookup:")
	out.Line("")
	out.Line("  Directory:  %s", config.Dir())
	out.Line("  Files:      %v", config.FileNames)
	if configFile != "" {
		out.Line("  Override:   %s", configFile)
	}
	return nil
}
