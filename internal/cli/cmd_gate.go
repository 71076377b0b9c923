package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/orc/internal/task"
)

func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "List and decide human-approval gates",
	}
	cmd.AddCommand(newGateListCmd(), newGateApproveCmd(), newGateRejectCmd())
	return cmd
}

func newGateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gates awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			gates, err := st.ListPendingGates(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(gates)
			}
			for _, g := range gates {
				fmt.Printf("%s  task=%s  stage=%s  type=%s\n", g.ID, g.TaskID, g.StageName, g.Type)
			}
			return nil
		},
	}
}

func newGateApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <gate-id>",
		Short: "Approve a pending gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideGate(args[0], task.GateStatusApproved, comment, "")
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "reviewer comment")
	return cmd
}

func newGateRejectCmd() *cobra.Command {
	var comment, revised string
	cmd := &cobra.Command{
		Use:   "reject <gate-id>",
		Short: "Reject a pending gate, optionally supplying revised content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := task.GateStatusRejected
			if revised != "" {
				status = task.GateStatusRevised
			}
			if comment == "" && isatty.IsTerminal(os.Stdin.Fd()) {
				comment = promptLine("reason for rejection: ")
			}
			return decideGate(args[0], status, comment, revised)
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "reviewer comment")
	cmd.Flags().StringVar(&revised, "revised", "", "revised content, turning the rejection into a revision")
	return cmd
}

func decideGate(gateID string, status task.GateStatus, comment, revised string) error {
	ctx := context.Background()
	st, err := openStore(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	reviewer := os.Getenv("USER")
	if reviewer == "" {
		reviewer = "cli"
	}
	if err := st.DecideGate(ctx, gateID, status, reviewer, comment, revised); err != nil {
		return err
	}
	fmt.Printf("gate %s: %s\n", gateID, status)
	return nil
}

// promptLine reads a single line from stdin. Callers only reach here after
// confirming stdin is a TTY via isatty, so term.GetSize is used solely to
// size the terminal width isatty can't report.
func promptLine(label string) string {
	width, _, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	if len(label) > width {
		label = label[:width]
	}
	fmt.Fprint(os.Stderr, label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
