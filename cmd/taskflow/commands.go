package main

import (
	"context"
	"fmt"
	"strings"

	"taskflow/internal/app"
	"taskflow/internal/server"
	"taskflow/internal/ui"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := app.SignalContext(cmd.Context())
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			srv := server.New(a.Service(),
				server.WithLimiter(a.UserLimiter()),
				server.WithStatus(a.Status),
				server.WithVersion(version))
			return a.Serve(ctx, srv.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// withApp builds an app for a one-shot command, runs fn and closes the app.
func withApp(cmd *cobra.Command, needsModel bool, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b := app.NewBuilder(ctx, cfg)
	if !needsModel {
		b.WithoutModel()
	}
	a, err := b.Build()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newSayCmd() *cobra.Command {
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "say <utterance>",
		Short: "Describe part of your routine and update the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				p := ui.NewPrinter(cmd.OutOrStdout())
				before, err := a.Service().GetGraph(ctx, userID)
				if err != nil {
					return err
				}
				res, err := a.Service().UpdateGraph(ctx, userID, strings.Join(args, " "))
				if err != nil {
					p.Error(err)
					return err
				}
				p.Turn(before, res)
				if copyOut {
					return copyRendering(cmd, res.Graph.Rendered)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the new rendering to the clipboard")
	return cmd
}

func newGraphCmd() *cobra.Command {
	var (
		copyOut bool
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the current task graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				view, err := a.Service().GetGraph(ctx, userID)
				if err != nil {
					return err
				}
				if raw {
					fmt.Fprint(cmd.OutOrStdout(), view.Rendered)
				} else {
					ui.NewPrinter(cmd.OutOrStdout()).Graph(view)
				}
				if copyOut {
					return copyRendering(cmd, view.Rendered)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the rendering to the clipboard")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the diagram source instead of the summary")
	return cmd
}

func newRoutinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routines",
		Short: "List saved routines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				routines, err := a.Service().ListRoutines(ctx, userID)
				if err != nil {
					return err
				}
				ui.NewPrinter(cmd.OutOrStdout()).Routines(routines)
				return nil
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the current graph as a routine",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
					view, err := a.Service().SaveRoutine(ctx, userID, args[0])
					if err != nil {
						return err
					}
					ui.NewPrinter(cmd.OutOrStdout()).Graph(view)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "load <name>",
			Short: "Replace the current graph with a saved routine",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
					view, err := a.Service().LoadRoutine(ctx, userID, args[0])
					if err != nil {
						return err
					}
					ui.NewPrinter(cmd.OutOrStdout()).Graph(view)
					return nil
				})
			},
		},
	)
	return cmd
}

func newClearCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the graph back to Start (saved routines are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				run := a.Service().ClearGraph
				if reset {
					run = a.Service().ResetSession
				}
				view, err := run(ctx, userID)
				if err != nil {
					return err
				}
				ui.NewPrinter(cmd.OutOrStdout()).Graph(view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "also forget learned insights and activity")
	return cmd
}

func copyRendering(cmd *cobra.Command, rendered string) error {
	if err := ui.Copy(rendered); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "rendering copied to clipboard")
	return nil
}
