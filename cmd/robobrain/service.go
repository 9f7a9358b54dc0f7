package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flemzord/robobrain/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const serviceStopTimeout = 30 * time.Second

// program runs the application under the OS service manager.
type program struct {
	params app.RunParams
	logger service.Logger

	cancel context.CancelFunc
	done   chan error
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := app.RunContext(ctx, p.params)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("robobrain did not stop in time")
	}
}

// serviceConfig describes the system service. The installed unit re-invokes
// this binary with "service run" and the same flags.
func serviceConfig(params app.RunParams, envFile string) *service.Config {
	args := []string{"service", "run"}
	if envFile != "" {
		args = append(args, "--env-file", envFile)
	}
	if params.ConfigPath != "" {
		args = append(args, "--config", params.ConfigPath)
	}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	args = append(args, "--log-level", params.LogLevel.String())

	return &service.Config{
		Name:        "robobrain",
		DisplayName: "Robobrain",
		Description: "Conversational brain for a campus guide robot.",
		Arguments:   args,
		Dependencies: []string{
			"After=network-online.target",
			"Wants=network-online.target",
		},
	}
}

func newService(cmd *cobra.Command) (service.Service, *program, error) {
	params, err := runParams(cmd)
	if err != nil {
		return nil, nil, err
	}
	// The service manager starts us from another working directory.
	envFile, _ := cmd.Flags().GetString("env-file")
	for _, p := range []*string{&params.ConfigPath, &params.DataDir, &envFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, nil, err
		}
		*p = abs
	}

	prg := &program{params: params}
	svc, err := service.New(prg, serviceConfig(params, envFile))
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return svc, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage robobrain as a system service",
	}
	// Subcommands share the run flags.
	addRunFlags(cmd.PersistentFlags())

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the robobrain service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(cmd)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return fmt.Errorf("service status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status, err))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, prg, err := newService(cmd)
			if err != nil {
				return err
			}
			if prg.logger, err = svc.Logger(nil); err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusText(s service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed"
	}
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
