package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cognical/internal/ai"
	"cognical/internal/app"
	"cognical/internal/db"
	"cognical/internal/domain"
	"cognical/internal/planning"
	"cognical/internal/repo"
	"cognical/internal/server"
	"cognical/internal/task"
)

var rootCmd = &cobra.Command{
	Use:   "cognical",
	Short: "Cognical CLI",
	Long: `Cognical plans your tasks around your calendar and your habits.
- Tasks: work items with priority, estimates, tags and deadlines.
- Dependencies: edges that keep plans in a valid order; cycles are refused.
- Planning: 'cognical plan generate' proposes ranked schedule options; apply
  one to stamp start times onto your tasks, or adjust blocks and re-check
  conflicts.
- Preferences: the learner watches feedback and shifts focus windows and
  buffers toward what you actually do.
- Everything lives in a local SQLite workspace under .cognical.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COGNICAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(aiCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskDeleteCmd())
	t.AddCommand(taskReadyCmd())
	t.AddCommand(taskParseCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var (
		title, description, status, priority string
		due, start, planned                  string
		estimate                             int
		tags, links                          []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				in := task.CreateInput{
					Title:          title,
					Description:    description,
					Status:         status,
					Priority:       priority,
					DueAt:          optString(due),
					StartAt:        optString(start),
					PlannedStartAt: optString(planned),
					Tags:           tags,
					Links:          links,
				}
				if estimate > 0 {
					in.EstimatedMinutes = &estimate
				}
				created, err := a.Tasks.Create(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(created)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default todo)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (default medium)")
	cmd.Flags().StringVar(&due, "due", "", "due timestamp (RFC3339)")
	cmd.Flags().StringVar(&start, "start", "", "start timestamp (RFC3339)")
	cmd.Flags().StringVar(&planned, "planned-start", "", "planned start timestamp (RFC3339)")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "estimated minutes")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&links, "link", nil, "link (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Tasks.List(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag filter")
	return cmd
}

func renderTaskTable(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Est"})
	for _, t := range tasks {
		due := ""
		if t.DueAt != nil {
			due = *t.DueAt
		}
		est := ""
		if t.EstimatedMinutes != nil {
			est = fmt.Sprintf("%dm", *t.EstimatedMinutes)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, due, est})
	}
	tw.Render()
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Tasks.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var (
		title, description, status, priority, due string
		estimate                                  int
		tags                                      []string
		clearDue, clearEstimate                   bool
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var p task.Patch
				if cmd.Flags().Changed("title") {
					p.Title = task.Set(title)
				}
				if cmd.Flags().Changed("description") {
					p.Description = task.Set(description)
				}
				if cmd.Flags().Changed("status") {
					p.Status = task.Set(status)
				}
				if cmd.Flags().Changed("priority") {
					p.Priority = task.Set(priority)
				}
				if cmd.Flags().Changed("due") {
					p.DueAt = task.Set(due)
				}
				if clearDue {
					p.DueAt = task.Clear[string]()
				}
				if cmd.Flags().Changed("estimate") {
					p.EstimatedMinutes = task.Set(estimate)
				}
				if clearEstimate {
					p.EstimatedMinutes = task.Clear[int]()
				}
				if cmd.Flags().Changed("tag") {
					p.Tags = task.Set(tags)
				}
				updated, err := a.Tasks.Update(ctx, args[0], p)
				if err != nil {
					return err
				}
				return printJSON(updated)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&due, "due", "", "new due timestamp")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due timestamp")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "new estimate in minutes")
	cmd.Flags().BoolVar(&clearEstimate, "clear-estimate", false, "remove the estimate")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "replace tags (repeatable)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskReadyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "Tasks whose predecessors are all done",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Deps.ReadyTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func taskParseCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Extract a task draft from free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				parsed, err := a.Provider(ctx).ParseTask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if !create {
					return printJSON(parsed)
				}
				created, err := a.Tasks.Create(ctx, task.CreateInput{
					Title:            parsed.Title,
					Description:      parsed.Description,
					Priority:         parsed.Priority,
					DueAt:            parsed.DueAt,
					EstimatedMinutes: parsed.EstimatedMinutes,
					Tags:             parsed.Tags,
				})
				if err != nil {
					return err
				}
				return printJSON(created)
			})
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create the parsed task immediately")
	return cmd
}

func depCmd() *cobra.Command {
	d := &cobra.Command{Use: "dep", Short: "Manage task dependencies"}
	d.AddCommand(depAddCmd())
	d.AddCommand(depRemoveCmd())
	d.AddCommand(depValidateCmd())
	d.AddCommand(depGraphCmd())
	return d
}

func depAddCmd() *cobra.Command {
	var depType string
	cmd := &cobra.Command{
		Use:   "add <predecessor-id> <successor-id>",
		Short: "Add a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Deps.Add(ctx, args[0], args[1], depType)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	cmd.Flags().StringVar(&depType, "type", "", "dependency type (default finish_to_start)")
	return cmd
}

func depRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <dependency-id>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Deps.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
	return cmd
}

func depValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <predecessor-id> <successor-id>",
		Short: "Dry-run cycle check for a prospective edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Deps.Validate(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	return cmd
}

func depGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Dependency graph with topological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				g, err := a.Deps.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printJSON(g)
			})
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	p := &cobra.Command{Use: "plan", Short: "Generate and manage schedule plans"}
	p.AddCommand(planGenerateCmd())
	p.AddCommand(planShowCmd())
	p.AddCommand(planApplyCmd())
	p.AddCommand(planResolveCmd())
	p.AddCommand(planDiscardCmd())
	return p
}

func loadConstraints(path string) (*domain.Constraints, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c domain.Constraints
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse constraints file: %w", err)
	}
	return &c, nil
}

func planGenerateCmd() *cobra.Command {
	var (
		taskIDs         []string
		constraintsFile string
		preferenceID    string
		seed            int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate ranked schedule options",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				constraints, err := loadConstraints(constraintsFile)
				if err != nil {
					return err
				}
				in := planning.GenerateInput{
					TaskIDs:      taskIDs,
					Constraints:  constraints,
					PreferenceID: preferenceID,
				}
				if cmd.Flags().Changed("seed") {
					in.Seed = &seed
				}
				view, err := a.Planning.Generate(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderSession(view)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&taskIDs, "task", nil, "task id to plan (repeatable)")
	cmd.Flags().StringVar(&constraintsFile, "constraints", "", "JSON file with windows and events")
	cmd.Flags().StringVar(&preferenceID, "preference", "", "preference snapshot id")
	cmd.Flags().Int64Var(&seed, "seed", 0, "deterministic seed")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func renderSession(view *planning.SessionView) {
	fmt.Printf("session %s (%s, source=%s)\n", view.Session.ID, view.Session.Status, view.Source)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Rank", "Option", "Score", "Label", "Blocks", "Conflicts"})
	for _, opt := range view.Options {
		tw.AppendRow(table.Row{opt.Rank, opt.ID, fmt.Sprintf("%.1f", opt.Score), opt.Label, len(opt.Blocks), len(opt.Conflicts)})
	}
	tw.Render()
	for _, opt := range view.Options {
		for _, b := range opt.Blocks {
			fmt.Printf("  [%d] %s  %s -> %s  task=%s\n", opt.Rank, b.ID, b.StartAt, b.EndAt, b.TaskID)
		}
	}
	for _, c := range view.Conflicts {
		fmt.Printf("conflict: %s (%s) %s\n", c.Kind, c.Severity, c.Description)
	}
}

func planShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a planning session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Planning.View(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderSession(view)
				return nil
			})
		},
	}
	return cmd
}

func planApplyCmd() *cobra.Command {
	var optionID string
	cmd := &cobra.Command{
		Use:   "apply <session-id>",
		Short: "Apply an option onto the tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Planning.Apply(ctx, planning.ApplyInput{
					SessionID: args[0],
					OptionID:  optionID,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderSession(view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&optionID, "option", "", "option id to apply")
	_ = cmd.MarkFlagRequired("option")
	return cmd
}

func planResolveCmd() *cobra.Command {
	var optionID, blockID, startAt, endAt, flexibility string
	cmd := &cobra.Command{
		Use:   "resolve <session-id>",
		Short: "Move a block and re-derive conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				override := planning.BlockOverride{
					BlockID:     blockID,
					StartAt:     optString(startAt),
					EndAt:       optString(endAt),
					Flexibility: optString(flexibility),
				}
				view, err := a.Planning.Resolve(ctx, planning.ResolveInput{
					SessionID:   args[0],
					OptionID:    optionID,
					Adjustments: []planning.BlockOverride{override},
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderSession(view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&optionID, "option", "", "option id")
	cmd.Flags().StringVar(&blockID, "block", "", "block id to move")
	cmd.Flags().StringVar(&startAt, "start", "", "new start (RFC3339)")
	cmd.Flags().StringVar(&endAt, "end", "", "new end (RFC3339)")
	cmd.Flags().StringVar(&flexibility, "flexibility", "", "fixed or flexible")
	_ = cmd.MarkFlagRequired("option")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func planDiscardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard <session-id>",
		Short: "Discard a draft session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Planning.Discard(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println("session", view.Session.ID, "is now", view.Session.Status)
				return nil
			})
		},
	}
	return cmd
}

func prefsCmd() *cobra.Command {
	p := &cobra.Command{Use: "prefs", Short: "Schedule preferences and feedback"}
	p.AddCommand(prefsShowCmd())
	p.AddCommand(prefsSetCmd())
	p.AddCommand(prefsFeedbackCmd())
	return p
}

func prefsShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored preference snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap, err := a.Planning.Preferences(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(snap)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "default", "preference id")
	return cmd
}

func prefsSetCmd() *cobra.Command {
	var (
		id                   string
		focusStart, focusEnd int
		buffer               int
		compact              bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Overwrite preference fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap, err := a.Planning.Preferences(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("focus-start") {
					snap.FocusStartMinute = &focusStart
				}
				if cmd.Flags().Changed("focus-end") {
					snap.FocusEndMinute = &focusEnd
				}
				if cmd.Flags().Changed("buffer") {
					snap.BufferMinutesBetweenBlocks = buffer
				}
				if cmd.Flags().Changed("compact") {
					snap.PreferCompactSchedule = compact
				}
				saved, err := a.Planning.UpdatePreferences(ctx, id, snap)
				if err != nil {
					return err
				}
				return printJSON(saved)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "default", "preference id")
	cmd.Flags().IntVar(&focusStart, "focus-start", 0, "focus window start minute of day")
	cmd.Flags().IntVar(&focusEnd, "focus-end", 0, "focus window end minute of day")
	cmd.Flags().IntVar(&buffer, "buffer", 0, "buffer minutes between blocks")
	cmd.Flags().BoolVar(&compact, "compact", false, "prefer compact schedules")
	return cmd
}

func prefsFeedbackCmd() *cobra.Command {
	var id, file string
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Feed execution outcomes to the learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var events []domain.FeedbackEvent
				if err := json.Unmarshal(data, &events); err != nil {
					return fmt.Errorf("parse feedback file: %w", err)
				}
				snap, err := a.Planning.RecordFeedback(ctx, id, events)
				if err != nil {
					return err
				}
				return printJSON(snap)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "default", "preference id")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with feedback events")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func aiCmd() *cobra.Command {
	c := &cobra.Command{Use: "ai", Short: "Assistant provider settings"}
	c.AddCommand(aiSetKeyCmd())
	c.AddCommand(aiSetURLCmd())
	c.AddCommand(aiSetModelCmd())
	c.AddCommand(aiPingCmd())
	c.AddCommand(aiClearCmd())
	return c
}

func aiSetKeyCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the provider API key, sealed with the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := ai.StoreAPIKey(ctx, a.Repo, a.Vault, key, now); err != nil {
					return err
				}
				fmt.Println("API key stored")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func aiSetURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-url <base-url>",
		Short: "Set the provider base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				return a.Repo.SetAISetting(ctx, ai.SettingBaseURL, args[0], now)
			})
		},
	}
	return cmd
}

func aiSetModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-model <model>",
		Short: "Set the provider model name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				return a.Repo.SetAISetting(ctx, ai.SettingModel, args[0], now)
			})
		},
	}
	return cmd
}

func aiPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Provider(ctx).Ping(ctx); err != nil {
					return err
				}
				fmt.Println("provider ok")
				return nil
			})
		},
	}
	return cmd
}

func aiClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored key and the vault master secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.DeleteAISetting(ctx, ai.SettingAPIKey); err != nil {
					return err
				}
				if err := a.Vault.ClearMasterSecret(); err != nil {
					return err
				}
				fmt.Println("provider credentials cleared")
				return nil
			})
		},
	}
	return cmd
}

func cacheCmd() *cobra.Command {
	c := &cobra.Command{Use: "cache", Short: "Response cache maintenance"}
	c.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Cache.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Println("removed", n, "entries")
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Cache entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Repo.CountCacheEntries(ctx)
				if err != nil {
					return err
				}
				fmt.Println(n, "entries")
				return nil
			})
		},
	})
	return c
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, limit, evtType, "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "ID"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityKind, e.EntityID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			a.StartMaintenance()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			handler, err := server.New(server.Config{App: a, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Cognical API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
