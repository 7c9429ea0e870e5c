package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/viant/podwork"
	"github.com/viant/podwork/service/messaging"
)

type rootOptions struct {
	configFile string
	logLevel   string
	brokerURL  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "podwork [amqp-url nprocs]",
		Short: "Distributes batch job units across worker pods",
		Long: "Runs one role of the work distribution protocol. Invoked with a broker URL\n" +
			"and a process count it joins the push protocol as a pod.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MatchAll(cobra.RangeArgs(0, 2), pushArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			processes, err := parseProcesses(args[1])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(cfg *podwork.Config) {
				cfg.Broker.Vendor = messaging.VendorAMQP
				cfg.Broker.URL = args[0]
				cfg.Pod.Processes = processes
			}, func(ctx context.Context, srv *podwork.Service) error {
				return srv.RunPod(ctx)
			})
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file (any afs URL)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level overriding the configuration")
	flags.StringVar(&opts.brokerURL, "broker", "", "AMQP broker URL overriding the configuration")

	cmd.AddCommand(
		newRunMasterCommand(opts),
		newRunJobCommand(opts),
		newGetMetadataCommand(opts),
		newRunPodCommand(opts),
		newRunAllocatorCommand(opts),
		newBroadcastCommand(opts),
	)
	return cmd
}

func newRunMasterCommand(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "run_master",
		Short: "Serve chunk indices to pulling pods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(cfg *podwork.Config) {
				if port > 0 {
					cfg.Master.Port = port
				}
			}, func(ctx context.Context, srv *podwork.Service) error {
				return srv.RunMaster(ctx)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listening port")
	return cmd
}

func newRunJobCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run_job PAYLOAD",
		Short: "Pull and execute chunks of an encoded job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, nil, func(ctx context.Context, srv *podwork.Service) error {
				count, err := srv.RunJob(ctx, args[0])
				if err == nil {
					logrus.WithField("chunks", count).Info("job finished")
				}
				return err
			})
		},
	}
}

func newGetMetadataCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get_metadata PAYLOAD",
		Short: "Store the runtime metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, nil, func(ctx context.Context, srv *podwork.Service) error {
				key, err := srv.ExtractMetadata(ctx, args[0])
				if err == nil {
					logrus.WithField("key", key).Info("runtime metadata stored")
				}
				return err
			})
		},
	}
}

func newRunPodCommand(opts *rootOptions) *cobra.Command {
	var processes int
	cmd := &cobra.Command{
		Use:   "run_pod",
		Short: "Join the push protocol and run broadcast jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(cfg *podwork.Config) {
				if processes > 0 {
					cfg.Pod.Processes = processes
				}
			}, func(ctx context.Context, srv *podwork.Service) error {
				return srv.RunPod(ctx)
			})
		},
	}
	cmd.Flags().IntVarP(&processes, "processes", "n", 0, "Concurrent processes on this pod")
	return cmd
}

func newRunAllocatorCommand(opts *rootOptions) *cobra.Command {
	var pods int
	cmd := &cobra.Command{
		Use:   "run_allocator",
		Short: "Assign slot ranges to announcing pods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(cfg *podwork.Config) {
				if pods > 0 {
					cfg.Allocator.ExpectedPods = pods
				}
			}, func(ctx context.Context, srv *podwork.Service) error {
				assignments, err := srv.RunAllocator(ctx)
				for _, assignment := range assignments {
					fmt.Fprintln(cmd.OutOrStdout(), assignment.PodRange().String())
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&pods, "pods", 0, "Number of pods to wait for")
	return cmd
}

func newBroadcastCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast PAYLOAD",
		Short: "Publish an encoded job to every pod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, nil, func(ctx context.Context, srv *podwork.Service) error {
				return srv.Broadcast(ctx, args[0])
			})
		},
	}
}

// withService loads the configuration, applies overrides and logging, then runs fn.
func withService(ctx context.Context, opts *rootOptions, override func(cfg *podwork.Config), fn func(ctx context.Context, srv *podwork.Service) error) error {
	cfg := podwork.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := podwork.LoadConfig(ctx, opts.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if override != nil {
		override(cfg)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.brokerURL != "" {
		cfg.Broker.Vendor = messaging.VendorAMQP
		cfg.Broker.URL = opts.brokerURL
	}
	if err := cfg.Log.Apply(); err != nil {
		return err
	}
	srv, err := podwork.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close service")
		}
	}()
	return fn(ctx, srv)
}

// pushArgs accepts the broker form: <amqp-url> <nprocs>.
func pushArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) != 2 || !strings.HasPrefix(args[0], "amqp") {
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return nil
}

// parseProcesses rounds a possibly fractional CPU count to a process count,
// halves going to the even neighbour.
func parseProcesses(value string) (int, error) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid process count %q: %w", value, err)
	}
	processes := int(math.RoundToEven(n))
	if processes <= 0 {
		return 0, fmt.Errorf("process count must be > 0, got %q", value)
	}
	return processes, nil
}
