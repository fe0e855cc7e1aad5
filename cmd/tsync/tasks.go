package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldwork/tasksync/internal/schema"
	"github.com/fieldwork/tasksync/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create [title]",
	GroupID: "tasks",
	Short:   "Create a task",
	Long: `Create a task assigned to you or to --assign.

Offline, or when the remote store is unreachable, the task is saved locally
and queued for replay.

Examples:
  tsync create "Inspect north valve" --due "next friday"
  tsync create -i                      # interactive form
  tsync create -q "Paint fence"        # print only the new id`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		assignee, _ := cmd.Flags().GetString("assign")
		due, _ := cmd.Flags().GetString("due")
		status, _ := cmd.Flags().GetString("status")
		interactive, _ := cmd.Flags().GetBool("interactive")
		quiet, _ := cmd.Flags().GetBool("quiet")

		var title string
		if len(args) > 0 {
			title = args[0]
		}
		if interactive {
			if err := runCreateForm(&title, &description, &assignee, &due, &status); err != nil {
				return err
			}
		}
		if strings.TrimSpace(title) == "" {
			return errors.New("a title is required (pass it as an argument or use -i)")
		}

		in := schema.Input{Title: title, Description: description, AssignedTo: assignee}
		if due != "" {
			t, err := parseDate(due, time.Now())
			if err != nil {
				return err
			}
			in.DueDate = &t
		}
		if status != "" {
			s, err := schema.ParseStatus(status)
			if err != nil {
				return err
			}
			in.Status = s
		}

		return withEngine(cmd.Context(), func(a *app) error {
			if in.AssignedTo == "" {
				if s, err := a.sessions.Current(cmd.Context()); err == nil {
					in.AssignedTo = s.Email
				}
			}
			out := a.engine.CreateTask(cmd.Context(), in)
			if err := outcomeErr(out); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}

			w := cmd.OutOrStdout()
			if quiet {
				fmt.Fprintln(w, out.Task.ID)
				return nil
			}
			fmt.Fprintf(w, "%s Created task %s: %s\n", ui.RenderPass("✓"), out.Task.ID, out.Task.Title)
			if out.Queued {
				fmt.Fprintf(w, "   %s\n", ui.RenderWarn(fmt.Sprintf("Queued for sync (%d pending)", a.engine.Snapshot().QueueLength())))
			}
			return nil
		})
	},
}

func runCreateForm(title, description, assignee, due, status *string) error {
	if *status == "" {
		*status = string(schema.StatusNotStarted)
	}
	statusOptions := make([]huh.Option[string], 0, len(schema.Statuses))
	for _, s := range schema.Statuses {
		statusOptions = append(statusOptions, huh.NewOption(string(s), string(s)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					if len(s) > schema.MaxTitleLength {
						return fmt.Errorf("title must be %d characters or less", schema.MaxTitleLength)
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(description),
			huh.NewInput().
				Title("Assigned to").
				Placeholder("defaults to you").
				Value(assignee),
			huh.NewInput().
				Title("Due").
				Placeholder("2024-06-01, tomorrow, next friday").
				Value(due).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := parseDate(s, time.Now())
					return err
				}),
			huh.NewSelect[string]().
				Title("Status").
				Options(statusOptions...).
				Value(status),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("cancelled")
		}
		return fmt.Errorf("form failed: %w", err)
	}
	return nil
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "tasks",
	Short:   "Change fields of a task",
	Long: `Change fields of a task. Only the flags you pass are changed.

Examples:
  tsync update 4f1c... --status in_progress
  tsync update 4f1c... --complete
  tsync update 4f1c... --due tomorrow
  tsync update 4f1c... --clear-due`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := changesFromFlags(cmd)
		if err != nil {
			return err
		}

		return withEngine(cmd.Context(), func(a *app) error {
			out := a.engine.UpdateTask(cmd.Context(), args[0], changes)
			if err := outcomeErr(out); err != nil {
				return fmt.Errorf("failed to update task: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s Updated task %s\n", ui.RenderPass("✓"), args[0])
			if out.Task != nil {
				fmt.Fprintf(w, "   %s  %s\n", ui.RenderTaskStatus(out.Task.Status), out.Task.Title)
			}
			if out.Queued {
				fmt.Fprintf(w, "   %s\n", ui.RenderWarn(fmt.Sprintf("Queued for sync (%d pending)", a.engine.Snapshot().QueueLength())))
			}
			return nil
		})
	},
}

func changesFromFlags(cmd *cobra.Command) (schema.Changes, error) {
	var c schema.Changes
	flags := cmd.Flags()

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		c.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		c.Description = &v
	}
	if flags.Changed("assign") {
		v, _ := flags.GetString("assign")
		c.AssignedTo = &v
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		t, err := parseDate(v, time.Now())
		if err != nil {
			return c, err
		}
		c.DueDate = &t
	}
	if flags.Changed("clear-due") {
		c.ClearDueDate, _ = flags.GetBool("clear-due")
	}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		s, err := schema.ParseStatus(v)
		if err != nil {
			return c, err
		}
		c.Status = &s
	}
	if flags.Changed("complete") {
		v, _ := flags.GetBool("complete")
		c.Completed = &v
	}

	if c.IsEmpty() {
		return c, errors.New("nothing to change (see tsync update --help)")
	}
	return c, nil
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "tasks",
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(a *app) error {
			out := a.engine.DeleteTask(cmd.Context(), args[0])
			if err := outcomeErr(out); err != nil {
				return fmt.Errorf("failed to delete task: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s Deleted task %s\n", ui.RenderPass("✓"), args[0])
			if out.Queued {
				fmt.Fprintf(w, "   %s\n", ui.RenderWarn(fmt.Sprintf("Queued for sync (%d pending)", a.engine.Snapshot().QueueLength())))
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tasks",
	Short:   "Show one task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		return withEngine(cmd.Context(), func(a *app) error {
			task, ok := a.engine.Task(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", schema.ErrTaskNotFound, args[0])
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json", "yaml":
				return encode(w, format, task)
			case "text", "":
				printTask(w, task)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
			}
		})
	},
}

func printTask(w io.Writer, t schema.Task) {
	fmt.Fprintf(w, "\n%s %s\n\n", ui.RenderAccent(t.ID), t.Title)
	fmt.Fprintf(w, "Status: %s\n", ui.RenderTaskStatus(t.Status))
	if t.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", t.Description)
	}
	fmt.Fprintf(w, "Assigned to: %s\n", valueOr(t.AssignedTo, "-"))
	fmt.Fprintf(w, "Assigned: %s\n", ui.FormatDate(&t.AssignedDate))
	fmt.Fprintf(w, "Due: %s\n", ui.FormatDate(t.DueDate))
	fmt.Fprintf(w, "Updated: %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w)
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List tasks",
	Long: `List tasks, filtered and sorted.

Examples:
  tsync list --status in_progress
  tsync list --search valve --sort dueDate --desc
  tsync list -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		status, _ := cmd.Flags().GetString("status")
		sortBy, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")
		format, _ := cmd.Flags().GetString("output")

		f := schema.DefaultFilters()
		f.Search = search
		var err error
		if f.Status, err = schema.ParseStatusFilter(status); err != nil {
			return err
		}
		if f.SortBy, err = schema.ParseSortField(sortBy); err != nil {
			return err
		}
		if desc {
			f.SortDirection = schema.SortDesc
		}

		return withEngine(cmd.Context(), func(a *app) error {
			snap := a.engine.Snapshot()
			tasks := slices.Collect(snap.VisibleWith(f))
			if tasks == nil {
				tasks = []schema.Task{}
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json", "yaml":
				return encode(w, format, tasks)
			case "table", "":
				if len(tasks) == 0 {
					fmt.Fprintln(w, "No tasks")
				} else {
					fmt.Fprint(w, ui.TaskTable(tasks))
				}
				if n := snap.QueueLength(); n > 0 {
					fmt.Fprintf(w, "\n%s\n", ui.RenderWarn(fmt.Sprintf("%d change(s) waiting to sync", n)))
				}
				if snap.ServedFromCache {
					fmt.Fprintf(w, "%s\n", ui.RenderMuted("Showing cached tasks; the remote store could not be reached"))
				}
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
			}
		})
	},
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "Task description")
	createCmd.Flags().StringP("assign", "a", "", "Assignee (default: you)")
	createCmd.Flags().String("due", "", "Due date (2024-06-01, tomorrow, next friday)")
	createCmd.Flags().String("status", "", "Initial status (not_started, in_progress, completed)")
	createCmd.Flags().BoolP("interactive", "i", false, "Fill in the task with a form")
	createCmd.Flags().BoolP("quiet", "q", false, "Print only the new task id")

	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().StringP("assign", "a", "", "New assignee")
	updateCmd.Flags().String("due", "", "New due date")
	updateCmd.Flags().Bool("clear-due", false, "Remove the due date")
	updateCmd.Flags().String("status", "", "New status")
	updateCmd.Flags().Bool("complete", false, "Mark completed (--complete=false reopens)")

	showCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")

	listCmd.Flags().StringP("search", "s", "", "Only titles containing this text")
	listCmd.Flags().String("status", "all", "Only this status, or all")
	listCmd.Flags().String("sort", "assignedDate", "Sort by assignedDate, dueDate or updatedAt")
	listCmd.Flags().Bool("desc", false, "Sort descending")
	listCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")

	rootCmd.AddCommand(createCmd, updateCmd, deleteCmd, showCmd, listCmd)
}
