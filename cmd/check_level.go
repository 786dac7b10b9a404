package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"portalsim/engine/internal/server"
	"portalsim/engine/internal/simulation"
)

func newCheckLevelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-level [path]",
		Short: "Load a level and describe the resulting room and portals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.LevelPath
			if len(args) == 1 {
				path = args[0]
			}
			world, err := server.BuildWorld(a.cfg, path)
			if err != nil {
				return err
			}
			if path == "" {
				path = "built-in"
			}
			return describeWorld(cmd.OutOrStdout(), path, world)
		},
	}
}

func describeWorld(out io.Writer, name string, world *simulation.World) error {
	budget := world.IterationBudget()
	player := world.Player()
	_, err := fmt.Fprintf(out, "level %s\n%s", name, world.Room().Describe())
	if err != nil {
		return err
	}
	for _, id := range []simulation.PortalID{simulation.Orange, simulation.Blue} {
		p := world.Portal(id)
		pos, n := p.Position(), p.Normal()
		fmt.Fprintf(out, "%s portal at (%.3f, %.3f, %.3f) normal (%.3f, %.3f, %.3f) radius %.3f max %.3f\n",
			id, pos[0], pos[1], pos[2], n[0], n[1], n[2], p.PhysicalRadius(), p.MaxPhysicalRadius())
	}
	pp := player.Position()
	fmt.Fprintf(out, "player at (%.3f, %.3f, %.3f) radius %.3f\n", pp[0], pp[1], pp[2], player.BoundingSphereRadius())
	_, err = fmt.Fprintf(out, "iteration budget orange %d blue %d\n", budget.Orange, budget.Blue)
	return err
}
