package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc/internal/task"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and inspect tasks",
	}
	cmd.AddCommand(newTaskNewCmd(), newTaskListCmd(), newTaskStatusCmd(), newTaskCancelCmd(), newTaskLogCmd())
	return cmd
}

func newTaskNewCmd() *cobra.Command {
	var project, description, templateID string
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a new pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			t := &task.Task{
				ID:          uuid.NewString(),
				Title:       args[0],
				Description: description,
				Status:      task.StatusPending,
				ProjectID:   project,
				TemplateID:  templateID,
				CreatedAt:   time.Now().UTC(),
			}
			if err := st.CreateTask(ctx, t); err != nil {
				return err
			}
			fmt.Printf("created task %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project ID this task belongs to")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&templateID, "template", "", "template ID to run (a task without one fails when the engine picks it up)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var status, project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			tasks, err := st.ListTasks(ctx, task.Status(status), project)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(tasks)
			}
			for _, t := range tasks {
				fmt.Printf("%s  %-10s  %s\n", t.ID, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&project, "project", "", "filter by project ID")
	return cmd
}

func newTaskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := st.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			stages, err := st.ListStages(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
					Task   *task.Task    `json:"task"`
					Stages []*task.Stage `json:"stages"`
				}{t, stages})
			}

			fmt.Printf("task %s  [%s]\n", t.ID, t.Status)
			fmt.Printf("  %s\n", t.Title)
			if t.FailReason != "" {
				fmt.Printf("  fail reason: %s\n", t.FailReason)
			}
			fmt.Printf("  tokens=%d cost=$%.4f\n", t.TotalTokens, t.TotalCost)
			for _, s := range stages {
				fmt.Printf("  stage %-20s %-10s role=%s retries=%d\n", s.Name, s.Status, s.AgentRole, s.RetryCount)
			}
			return nil
		},
	}
}

func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := st.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			if err := st.UpdateTaskStatus(ctx, t.ID, t.Status, task.StatusCancelled); err != nil {
				return err
			}
			fmt.Printf("cancelled task %s\n", t.ID)
			return nil
		},
	}
}

func newTaskLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <task-id>",
		Short: "Show a task's audit event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.ListEventLog(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(events)
			}
			for _, e := range events {
				fmt.Printf("%4d  %-20s %-8s %-10s %s\n", e.Sequence, e.EventType, e.Source, e.Status, e.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
