package app

import (
	"context"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilserrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/component-base/version"
	"k8s.io/component-base/version/verflag"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"syscall"
	"taglogger/cmd/taglogger/options"
	"taglogger/pkg/generic"
	baseoptions "taglogger/pkg/generic/options"
	"taglogger/pkg/runtime"
	"taglogger/pkg/web"
	"time"
)

const (
	ComponentTagLogger = "taglogger"
)

func NewTagLoggerCmd() *cobra.Command {
	cleanFlagSet := pflag.NewFlagSet(ComponentTagLogger, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use:                ComponentTagLogger,
		Long:               `The taglogger keeps a session to every configured device, records tag values to one text file per device and survives connection loss.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// initial flag parse, since we disable cobra's flag parsing
			if err := cleanFlagSet.Parse(args); err != nil {
				klog.ErrorS(err, "Failed to parse flag")
				_ = cmd.Usage()
				os.Exit(1)
			}

			// check if there are non-flag arguments in the command line
			cmds := cleanFlagSet.Args()
			if len(cmds) > 0 {
				klog.ErrorS(nil, "Unknown command", "command", cmds[0])
				_ = cmd.Usage()
				os.Exit(1)
			}

			// short-circuit on help
			baseoptions.PrintHelpAndExitIfRequested(cmd, cleanFlagSet)

			// short-circuit on defaultconfig
			baseoptions.PrintDefaultConfigAndExitIfRequested(options.NewDefaultOptions(), cleanFlagSet)

			// short-circuit on verflag
			verflag.PrintAndExitIfRequested()

			if err := baseoptions.ParseAndApplyConfigFile(o, args); err != nil {
				return err
			}

			if errs := options.Validate(o); len(errs) != 0 {
				return utilserrors.NewAggregate(errs)
			}

			// To help debugging, immediately log version
			klog.InfoS("Starting taglogger", "version", version.Get().GitVersion, "devices", len(o.Devices))
			return run(o)
		},
	}

	verflag.AddFlags(cleanFlagSet)
	o.AddFlags(cleanFlagSet)
	o.AddBaseFlags(cmd, cleanFlagSet)

	return cmd
}

func run(o *options.Options) error {
	// stays installed until every closer returned
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitCh)

	c, err := o.Config()
	if err != nil {
		return err
	}

	if c.Publisher != nil {
		if err := c.Publisher.Start(); err != nil {
			klog.ErrorS(err, "Failed to connect MQTT broker", "broker", o.MQTT.Broker)
		}
	}

	if len(o.Port) > 0 {
		server, err := web.NewServer(generic.Default(), o, c)
		if err != nil {
			_ = shutdown(c.Closers, o.Wait.Duration)
			return err
		}
		if err := server.Serve(); err != nil {
			_ = shutdown(c.Closers, o.Wait.Duration)
			return err
		}
		klog.V(1).InfoS("Status API started", "port", o.Port)
	}

	c.CollectorMgr.Start()

	return shutdownOnSignal(c.Closers, o.Wait.Duration, exitCh)
}

// shutdownOnSignal blocks until the first signal, then runs the closers.
// Signals received while closing are logged and otherwise ignored.
func shutdownOnSignal(closers []runtime.LabeledCloser, wait time.Duration, exitCh <-chan os.Signal) error {
	sig := <-exitCh
	klog.InfoS("Shutting down", "signal", sig.String())

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-exitCh:
				klog.InfoS("Shutdown in progress, waiting for devices to close", "signal", sig.String())
			}
		}
	}()

	return shutdown(closers, wait)
}

func shutdown(closers []runtime.LabeledCloser, wait time.Duration) error {
	var errs []error
	for _, closer := range closers {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		if err := closer.Closer(ctx); err != nil {
			klog.ErrorS(err, "Failed to close", "component", closer.Label)
			errs = append(errs, err)
		}
		cancel()
	}
	return utilserrors.NewAggregate(errs)
}
