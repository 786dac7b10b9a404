package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"portalsim/engine/internal/grpc"
	"portalsim/engine/internal/input"
	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/replay"
	"portalsim/engine/internal/server"
	"portalsim/engine/internal/simulation"
	"portalsim/engine/internal/stream"
)

type simulateOptions struct {
	steps   int
	dt      time.Duration
	every   int
	camera  string
	portal  string
	record  string
	keep    int
	control input.Controls
}

func newSimulateCmd(a *app) *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Step the world headless and print snapshots as JSON lines",
		Long: "simulate runs the fixed-step loop without a network surface. Held axes apply " +
			"to every step; look deltas and selections apply to the first step only.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.OutOrStdout(), a, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.steps, "steps", 60, "number of ticks to run")
	flags.DurationVar(&opts.dt, "dt", time.Second/60, "tick length")
	flags.IntVar(&opts.every, "every", 1, "print every Nth snapshot; the last one is always printed")
	flags.StringVar(&opts.camera, "camera", "", "camera to drive: left or right")
	flags.StringVar(&opts.portal, "portal", "", "portal to edit: orange or blue")
	flags.Float32Var(&opts.control.Forward, "forward", 0, "forward axis in [-1, 1]")
	flags.Float32Var(&opts.control.Right, "right", 0, "strafe axis in [-1, 1]")
	flags.Float32Var(&opts.control.Up, "up", 0, "vertical axis in [-1, 1]")
	flags.Float32Var(&opts.control.Roll, "roll", 0, "roll axis in [-1, 1]")
	flags.Float32Var(&opts.control.LookYaw, "yaw", 0, "initial yaw delta in radians")
	flags.Float32Var(&opts.control.LookPitch, "pitch", 0, "initial pitch delta in radians; positive looks down")
	flags.BoolVar(&opts.control.Sprint, "sprint", false, "hold sprint")
	flags.StringVar(&opts.record, "record", "", "record the session under this directory")
	flags.IntVar(&opts.keep, "keep", 0, "with --record, keep only the newest N sessions")
	return cmd
}

func runSimulate(out io.Writer, a *app, opts simulateOptions) error {
	//1.- Resolve selections before touching the world.
	if opts.steps <= 0 {
		return fmt.Errorf("--steps must be positive, got %d", opts.steps)
	}
	if opts.dt <= 0 {
		return fmt.Errorf("--dt must be positive, got %s", opts.dt)
	}
	if opts.every <= 0 {
		opts.every = 1
	}
	var err error
	if opts.control.Camera, err = parseCamera(opts.camera); err != nil {
		return err
	}
	if opts.control.Portal, err = parsePortal(opts.portal); err != nil {
		return err
	}

	//2.- Build the world and a headless runner.
	world, err := server.BuildWorld(a.cfg, a.cfg.LevelPath)
	if err != nil {
		return err
	}
	encoder, err := stream.NewEncoder(grpc.CodecNone)
	if err != nil {
		return err
	}
	runner := simulation.NewRunner(world, a.cfg.TickRateHz,
		simulation.WithRunnerLogger(a.logger.With(logging.String("component", "simulate"))))

	//3.- Optional session recording.
	var writer *replay.Writer
	if opts.record != "" {
		if writer, _, err = replay.NewWriter(opts.record, "simulate", nil); err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
		defer writer.Close()
		writer.SetHeader(a.cfg.LevelPath, a.cfg.TickRateHz, opts.dt, tuningParameters(a.cfg.Tuning))
		if err := writer.AppendControls(0, 0, opts.control); err != nil {
			return err
		}
	}
	runner.Submit(opts.control)

	//4.- Step, record and print.
	for i := 1; i <= opts.steps; i++ {
		snap := runner.StepOnce(opts.dt)
		printed := i%opts.every == 0 || i == opts.steps
		if !printed && writer == nil {
			continue
		}
		encoded, err := encoder.Encode(snap)
		if err != nil {
			return err
		}
		if writer != nil {
			if err := writer.AppendFrame(snap.Tick, simulatedMs(i, opts.dt), encoded.Payload); err != nil {
				return err
			}
		}
		if !printed {
			continue
		}
		if _, err := fmt.Fprintln(out, string(encoded.Payload)); err != nil {
			return err
		}
	}
	a.logger.Debug("simulation finished", logging.Int("steps", opts.steps), logging.Duration("dt", opts.dt))

	//5.- Seal the recording and apply retention.
	if writer == nil {
		return nil
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish recording: %w", err)
	}
	a.logger.Info("session recorded", logging.String("path", writer.Directory()))
	if opts.keep > 0 {
		if _, err := replay.Prune(opts.record, replay.RetentionPolicy{MaxSessions: opts.keep}, time.Now(), a.logger); err != nil {
			return fmt.Errorf("prune recordings: %w", err)
		}
	}
	return nil
}

func simulatedMs(step int, dt time.Duration) int64 {
	return (time.Duration(step) * dt).Milliseconds()
}

func parseCamera(name string) (input.CameraSelector, error) {
	switch name {
	case "":
		return input.CameraKeep, nil
	case "left":
		return input.CameraLeft, nil
	case "right":
		return input.CameraRight, nil
	}
	return input.CameraKeep, fmt.Errorf("unknown camera %q (want left or right)", name)
}

func parsePortal(name string) (input.PortalSelector, error) {
	switch name {
	case "":
		return input.PortalKeep, nil
	case "orange":
		return input.PortalOrange, nil
	case "blue":
		return input.PortalBlue, nil
	}
	return input.PortalKeep, fmt.Errorf("unknown portal %q (want orange or blue)", name)
}
