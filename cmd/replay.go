package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"

	"portalsim/engine/internal/config"
	"portalsim/engine/internal/grpc"
	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/replay"
	"portalsim/engine/internal/server"
	"portalsim/engine/internal/simulation"
	"portalsim/engine/internal/stream"
)

// verifyTolerance absorbs float32 drift between the recording and the re-run.
const verifyTolerance = 1e-5

func newReplayCmd(a *app) *cobra.Command {
	var frames, verify bool
	cmd := &cobra.Command{
		Use:   "replay <session-dir>",
		Short: "Inspect a recorded session, print its frames or re-simulate and compare",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := replay.Open(args[0])
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			out := cmd.OutOrStdout()
			switch {
			case frames:
				return printFrames(out, session)
			case verify:
				checked, err := verifySession(a, session)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "verified %d frames\n", checked)
				return err
			}
			return summarizeSession(out, session)
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "print every recorded snapshot as a JSON line")
	cmd.Flags().BoolVar(&verify, "verify", false, "re-run the session and compare every frame")
	cmd.MarkFlagsMutuallyExclusive("frames", "verify")
	return cmd
}

func summarizeSession(out io.Writer, s *replay.Session) error {
	level := s.Header.Level
	if level == "" {
		level = "built-in"
	}
	fmt.Fprintf(out, "session %s\ncreated %s\nlevel %s\nstep %s\n", s.Dir, s.Manifest.CreatedAt, level, s.Header.Step())
	fmt.Fprintf(out, "controls %d\n", len(s.Controls))
	if len(s.Frames) == 0 {
		_, err := fmt.Fprintln(out, "frames 0")
		return err
	}
	first, last := s.Frames[0], s.Frames[len(s.Frames)-1]
	_, err := fmt.Fprintf(out, "frames %d ticks %d..%d simulated %dms\n", len(s.Frames), first.Tick, last.Tick, last.SimulatedMs)
	return err
}

func printFrames(out io.Writer, s *replay.Session) error {
	for _, frame := range s.Frames {
		if _, err := fmt.Fprintln(out, string(frame.Payload)); err != nil {
			return err
		}
	}
	return nil
}

// verifySession rebuilds the recorded world, feeds it the recorded controls and checks
// every recorded frame against a fresh snapshot of the same tick.
func verifySession(a *app, s *replay.Session) (int, error) {
	//1.- Rebuild the world the session started from.
	cfg := *a.cfg
	cfg.Tuning = tuningFromParameters(s.Header.Tuning, a.cfg.Tuning)
	world, err := server.BuildWorld(&cfg, s.Header.Level)
	if err != nil {
		return 0, err
	}
	tickHz := s.Header.TickRateHz
	if tickHz <= 0 {
		tickHz = cfg.TickRateHz
	}
	runner := simulation.NewRunner(world, tickHz,
		simulation.WithRunnerLogger(a.logger.With(logging.String("component", "replay"))))
	encoder, err := stream.NewEncoder(grpc.CodecNone)
	if err != nil {
		return 0, err
	}

	//2.- Walk the timeline.
	checked := 0
	err = s.Replay(func(e replay.Entry) error {
		if e.Kind == replay.EntryControls {
			runner.Submit(e.Controls.Controls)
			return nil
		}
		snap := runner.Latest()
		for snap.Tick < e.Tick {
			snap = runner.StepOnce(s.Header.Step())
		}
		if snap.Tick != e.Tick {
			return fmt.Errorf("frame for tick %d recorded after tick %d", e.Tick, snap.Tick)
		}
		encoded, err := encoder.Encode(snap)
		if err != nil {
			return err
		}
		if diff, err := diffDocuments(e.Frame.Payload, encoded.Payload); err != nil {
			return fmt.Errorf("tick %d: %w", e.Tick, err)
		} else if diff != "" {
			return fmt.Errorf("tick %d diverged (-recorded +replayed):\n%s", e.Tick, diff)
		}
		checked++
		return nil
	})
	return checked, err
}

// diffDocuments compares two snapshot documents field by field. Serialised bytes are
// not compared since protojson output is not byte-stable.
func diffDocuments(recorded, replayed []byte) (string, error) {
	var want, got map[string]any
	if err := json.Unmarshal(recorded, &want); err != nil {
		return "", fmt.Errorf("decode recorded frame: %w", err)
	}
	if err := json.Unmarshal(replayed, &got); err != nil {
		return "", fmt.Errorf("decode replayed frame: %w", err)
	}
	return cmp.Diff(want, got, cmpopts.EquateApprox(0, verifyTolerance)), nil
}

func tuningParameters(t config.TuningConfig) replay.Parameters {
	return replay.Parameters{
		"move_speed":              t.MoveSpeed,
		"sprint_multiplier":       t.SprintMultiplier,
		"roll_speed_deg":          t.RollSpeedDeg,
		"portal_rotate_speed_deg": t.PortalRotateSpeedDeg,
		"portal_resize_speed":     t.PortalResizeSpeed,
		"texture_radius_ratio":    t.TextureRadiusRatio,
	}
}

// tuningFromParameters reads recorded tuning, keeping fallback values for missing keys.
func tuningFromParameters(p replay.Parameters, fallback config.TuningConfig) config.TuningConfig {
	t := fallback
	for key, dst := range map[string]*float64{
		"move_speed":              &t.MoveSpeed,
		"sprint_multiplier":       &t.SprintMultiplier,
		"roll_speed_deg":          &t.RollSpeedDeg,
		"portal_rotate_speed_deg": &t.PortalRotateSpeedDeg,
		"portal_resize_speed":     &t.PortalResizeSpeed,
		"texture_radius_ratio":    &t.TextureRadiusRatio,
	} {
		if v, ok := p[key]; ok {
			*dst = v
		}
	}
	return t
}
