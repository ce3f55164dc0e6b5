package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/config"
	_ "github.com/yuriy-kovalchuk/yk-ddns/internal/dns/providers"
)

var Version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
	zap        zap.Options
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{zap: zap.Options{Development: true}}

	cmd := &cobra.Command{
		Use:   "yk-ddns",
		Short: "Keep DNS records in sync with the addresses this host is reachable at",
		Long: `yk-ddns watches the addresses of this host (local interfaces or the WAN
side of the home router) and keeps A/AAAA records at one or more DNS
providers in sync with them. Records are removed when the router sits
behind carrier-grade NAT.

Supported providers: cloudflare, godaddy, opnsense, rfc2136.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts.zap), zap.WriteTo(cmd.ErrOrStderr())))
			return config.LoadEnv(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		fmt.Sprintf("config file (default $%s or %s)", config.PathEnv, config.DefaultPath))
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "file with KEY=VALUE pairs loaded before the config is read")

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.zap.BindFlags(zapFlags)
	cmd.PersistentFlags().AddGoFlagSet(zapFlags)

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newProvidersCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
