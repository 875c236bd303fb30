package main

import (
	"github.com/spf13/cobra"

	"github.com/earlzo/kubexport/engine"
	"github.com/earlzo/kubexport/flags"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.0.1"

func NewCommand(e *engine.Engine) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "kubexport [flags]",
		Short: "Export Kubernetes resources in structured yaml or json files",
		Long: `Export Kubernetes resources in structured yaml or json files.
Exported resources are stripped of time based information.`,
		Example: `
	# export the recommended resources of the current namespace, excluding secrets
	kubexport

	# export only deployments, configmaps and secrets of the current namespace
	kubexport -r deployments,configmap,secret

	# export recommended resources from every namespace
	kubexport --all-namespaces

	# export recommended namespace and cluster level resources including secrets
	kubexport -cs

	# print the API resources supported by the server
	kubexport show-api-resources`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.Setup()
			return e.Preflight(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.Run(cmd.Context())
		},
	}
	e.AddFlags(rootCmd)
	rootCmd.SetGlobalNormalizationFunc(flags.Normalize)
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.Println(c.UsageString())
		return err
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show-api-resources",
		Short: "Print the supported API resources on the server, cluster level and namespaced separately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.ShowAPIResources(cmd.Context())
		},
	})
	return rootCmd
}

func Execute(e *engine.Engine, args []string) {
	defer func() {
		if r := recover(); r != nil {
			e.Reporter().Unexpected(r)
		}
	}()

	rootCmd := NewCommand(e)
	if args != nil {
		rootCmd.SetArgs(args)
	}
	if err := rootCmd.Execute(); err != nil {
		e.Reporter().Fatal(err)
	}
}

func main() {
	Execute(engine.NewEngine(), nil)
}
