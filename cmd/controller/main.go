// Command controller is the operator-facing CLI for the agent runtime: it
// issues lifecycle commands through the command plane (B) and reads status
// back from shared state (A) and the cycle journal (C). It never touches
// the worker process directly. Grounded on the teacher's cmd/cobra_cli.go
// (cobra root command, fatih/color styled output, persistent flags) adapted
// from an interactive coding-assistant CLI to a one-shot/status-reporting
// operator CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agentrt/internal/commandqueue"
	"agentrt/internal/config"
	"agentrt/internal/journal"
	"agentrt/internal/state"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// controller holds the shared plumbing every subcommand reaches through.
type controller struct {
	commands *commandqueue.Queue
	state    *state.Store
	journal  *journal.Store
	wait     time.Duration
}

func newController() (*controller, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("controller: load config: %w", err)
	}
	jrnl := journal.New(cfg.CycleDBPath, journal.NopWriter(), nil)
	if err := jrnl.Load(); err != nil {
		return nil, fmt.Errorf("controller: load journal: %w", err)
	}
	return &controller{
		commands: commandqueue.New(cfg.CommandRoot, nil),
		state:    state.New(cfg.StateRoot),
		journal:  jrnl,
		wait:     10 * time.Second,
	}, nil
}

// sendAndWait submits a command and blocks for its terminal result,
// printing the JSON result dict the worker's handler produced (spec.md
// §4.Q "Command handlers").
func (c *controller) sendAndWait(cmdType commandqueue.CommandType, params map[string]any) error {
	cmd, err := c.commands.SendCommand(cmdType, params, int(c.wait.Seconds()))
	if err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	done, err := c.commands.WaitForCommand(cmd.CommandID, c.wait, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for command: %w", err)
	}
	if done == nil {
		fmt.Printf("%s command %s is still %s after %s\n", yellow("⏳"), cmd.CommandID, cmd.Status, c.wait)
		return nil
	}

	switch done.Status {
	case commandqueue.StatusCompleted:
		fmt.Printf("%s %s\n", green("✓"), renderResult(done.Result))
	case commandqueue.StatusFailed:
		fmt.Printf("%s %s\n", red("✗"), done.Error)
	case commandqueue.StatusExpired:
		fmt.Printf("%s command %s expired before pickup\n", red("✗"), cmd.CommandID)
	}
	return nil
}

func renderResult(result map[string]any) string {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

func newRootCommand(c *controller) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Operator CLI for the agent runtime",
		Long: bold("agentctl") + ` drives the agent worker through its file-backed
command plane and reports on shared state and cycle history.

Examples:
  agentctl start
  agentctl status
  agentctl pause && agentctl resume
  agentctl execute search --param query="weather tomorrow"
  agentctl history --limit 20`,
	}
	root.PersistentFlags().DurationVar(&c.wait, "wait", c.wait, "how long to wait for a command to complete")

	root.AddCommand(
		newStartCommand(c),
		newStopCommand(c),
		newPauseCommand(c),
		newResumeCommand(c),
		newShutdownCommand(c),
		newReloadConfigCommand(c),
		newExecuteCommand(c),
		newStatusCommand(c),
		newHistoryCommand(c),
		newStatsCommand(c),
	)
	return root
}

func newStartCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start (or resume scheduling of) the agent loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandStart, nil)
		},
	}
}

func newStopCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the agent loop (no process is killed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandStop, nil)
		},
	}
}

func newPauseCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause cycle execution without stopping the loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandPause, nil)
		},
	}
}

func newResumeCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume cycle execution after a pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandResume, nil)
		},
	}
}

func newShutdownCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Request a graceful shutdown of the worker process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandShutdown, nil)
		},
	}
}

func newReloadConfigCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "reload-config",
		Short: "Ask the worker to reload its runtime configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendAndWait(commandqueue.CommandReloadConfig, nil)
		},
	}
}

func newExecuteCommand(c *controller) *cobra.Command {
	var rawParams []string
	cmd := &cobra.Command{
		Use:   "execute <action>",
		Short: "Run a single action out-of-band and report its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{"action": args[0]}
			for _, kv := range rawParams {
				k, v, ok := splitParam(kv)
				if !ok {
					return fmt.Errorf("invalid --param %q, expected key=value", kv)
				}
				params[k] = v
			}
			return c.sendAndWait(commandqueue.CommandExecuteAction, params)
		},
	}
	cmd.Flags().StringArrayVar(&rawParams, "param", nil, "action parameter as key=value (repeatable)")
	return cmd
}

func splitParam(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func newStatusCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the worker's current state and recent cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			full, err := c.state.GetFullStatus(30 * time.Second)
			if err != nil {
				return fmt.Errorf("get full status: %w", err)
			}
			fmt.Printf("%s %s (running=%v alive=%v)\n", bold("status:"), full.State.Status, full.State.IsRunning, full.IsAlive)
			fmt.Printf("%s %s  %s %s\n", bold("goal:"), full.State.Goal, bold("personality:"), full.State.Personality)
			fmt.Printf("%s %d  %s %.2f\n", bold("cycles:"), full.State.CycleCount, bold("total reward:"), full.State.TotalRewards)
			if full.State.CurrentAction != nil {
				fmt.Printf("%s %s\n", bold("current action:"), *full.State.CurrentAction)
			}
			if full.State.LastError != nil {
				fmt.Printf("%s %s\n", red("last error:"), *full.State.LastError)
			}
			return nil
		},
	}
}

func newHistoryCommand(c *controller) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycle journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := c.journal.GetRecentCycles(limit, offset, journal.Filter{})
			for _, row := range rows {
				mark := green("ok")
				if !row.Success {
					mark = red("fail")
				}
				fmt.Printf("%s  %-8s  %-20s  reward=%.2f  %dms\n", row.Timestamp.Format(time.RFC3339), mark, row.Action, row.Reward, row.DurationMS)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newStatsCommand(c *controller) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate cycle statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := c.journal.GetStats(nil, nil)
			fmt.Printf("%s %d  %s %.1f%%  %s %.0fms  %s %.2f\n",
				bold("total cycles:"), stats.TotalCycles,
				bold("success rate:"), stats.SuccessRatePct,
				bold("avg duration:"), stats.AvgDurationMS,
				bold("avg reward:"), stats.AvgReward)
			for _, ac := range stats.TopActions {
				fmt.Printf("  %-24s %d\n", ac.Action, ac.Count)
			}
			return nil
		},
	}
}

func main() {
	c, err := newController()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
	if err := newRootCommand(c).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}
