package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gigline/internal/app"
	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gl",
	Short: "Gigline CLI",
	Long: `Gigline is the engagement lifecycle core of a two-sided marketplace.
Posters publish projects, providers quote on them, one quote wins, and the
two sides talk it over in per-project conversations.
- Project: a posted piece of work; flows open -> assigned -> completed, with
  cancelled as an exit from either working state.
- Quote: a provider's offer on an open project. One live quote per provider
  per project; approving one rejects the rest atomically.
- Conversation: a 1:1 thread between two users about one project. Opening it
  twice always lands on the same thread.
- Notification: the record written after a lifecycle change commits; list,
  read, and sweep them from here.`,
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
	viper.SetEnvPrefix("GIGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCancelCmd())
	prj.AddCommand(projectCompleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, description, deadline string
	var budget float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
					Title:       title,
					Description: description,
					Budget:      budget,
					Deadline:    deadline,
					PosterID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	var mine bool
	var posterID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if mine {
					posterID = viper.GetString("actor-id")
				}
				items, err := a.Engine.ListProjects(ctx, posterID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Budget", "Quotes", "Provider"})
				for _, p := range items {
					provider := ""
					if p.AssignedProviderID != nil {
						provider = *p.AssignedProviderID
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.Budget, p.QuoteCount, provider})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only projects posted by --actor-id")
	cmd.Flags().StringVar(&posterID, "poster", "", "filter by poster id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Cancel(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete an assigned project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Complete(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func quoteCmd() *cobra.Command {
	q := &cobra.Command{Use: "quote", Short: "Manage quotes"}
	q.AddCommand(quoteSubmitCmd())
	q.AddCommand(quoteListCmd())
	q.AddCommand(quoteMineCmd())
	q.AddCommand(quoteUpdateCmd())
	q.AddCommand(quoteWithdrawCmd())
	q.AddCommand(quoteApproveCmd())
	return q
}

func quoteSubmitCmd() *cobra.Command {
	var projectID, timeline, description string
	var amount float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a quote on a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := a.Engine.SubmitQuote(ctx, engine.QuoteSubmitOptions{
					ProjectID:   projectID,
					ProviderID:  viper.GetString("actor-id"),
					Amount:      amount,
					Timeline:    timeline,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().Float64Var(&amount, "amount", 0, "quoted amount")
	cmd.Flags().StringVar(&timeline, "timeline", "", "estimated timeline")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func quoteListCmd() *cobra.Command {
	var projectID string
	var admin bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes on a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListQuotes(ctx, projectID, viper.GetString("actor-id"), admin)
				if err != nil {
					return err
				}
				return printQuotes(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().BoolVar(&admin, "admin", false, "bypass visibility rules")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func quoteMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List quotes submitted by --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProviderQuotes(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printQuotes(items)
			})
		},
	}
	return cmd
}

func quoteUpdateCmd() *cobra.Command {
	var amount float64
	var timeline, description string
	cmd := &cobra.Command{
		Use:   "update <quote-id>",
		Short: "Update a submitted quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch engine.QuotePatch
			if cmd.Flags().Changed("amount") {
				patch.Amount = &amount
			}
			if cmd.Flags().Changed("timeline") {
				patch.Timeline = &timeline
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := a.Engine.UpdateQuote(ctx, args[0], viper.GetString("actor-id"), patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "quoted amount")
	cmd.Flags().StringVar(&timeline, "timeline", "", "estimated timeline")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func quoteWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <quote-id>",
		Short: "Withdraw a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.WithdrawQuote(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("withdrawn")
				return nil
			})
		},
	}
	return cmd
}

func quoteApproveCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "approve <quote-id>",
		Short: "Approve a quote and assign the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Approve(ctx, projectID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Project %s assigned to %s (quote %s, amount %.2f)\n",
					res.Project.ID, res.Approved.ProviderID, res.Approved.ID, res.Approved.Amount)
				if len(res.Rejected) > 0 {
					fmt.Printf("Rejected %d competing quote(s)\n", len(res.Rejected))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func chatCmd() *cobra.Command {
	c := &cobra.Command{Use: "chat", Short: "Conversations and messages"}
	c.AddCommand(chatOpenCmd())
	c.AddCommand(chatListCmd())
	c.AddCommand(chatSendCmd())
	c.AddCommand(chatMessagesCmd())
	return c
}

func chatOpenCmd() *cobra.Command {
	var projectID, with string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Find or create the conversation with another user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Engine.Resolve(ctx, projectID, viper.GetString("actor-id"), with)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&with, "with", "", "other participant id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("with")
	return cmd
}

func chatListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListConversations(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "With", "Last message", "At"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ProjectTitle, c.CounterpartName, c.LastMessage, c.LastMessageAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func chatSendCmd() *cobra.Command {
	var text, attachment string
	cmd := &cobra.Command{
		Use:   "send <conversation-id>",
		Short: "Post a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				msg, err := a.Engine.PostMessage(ctx, args[0], viper.GetString("actor-id"), text, optionalString(attachment))
				if err != nil {
					return err
				}
				return printJSONOrTable(msg)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().StringVar(&attachment, "attachment", "", "attachment URL")
	return cmd
}

func chatMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "List messages in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListMessages(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, m := range items {
					line := m.Text
					if m.AttachmentURL != nil {
						line = strings.TrimSpace(line + " [" + *m.AttachmentURL + "]")
					}
					fmt.Printf("%s  %s: %s\n", m.CreatedAt, m.SenderID, line)
				}
				return nil
			})
		},
	}
	return cmd
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Notifications"}
	n.AddCommand(notifyListCmd())
	n.AddCommand(notifyCountsCmd())
	n.AddCommand(notifyReadCmd())
	n.AddCommand(notifyReadAllCmd())
	n.AddCommand(notifySweepCmd())
	return n
}

func notifyListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Notify.List(ctx, viper.GetString("actor-id"), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Title", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Category, n.Title, n.IsRead, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records")
	return cmd
}

func notifyCountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Notification counts for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				counts, err := a.Notify.Counts(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	}
	return cmd
}

func notifyReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Notify.MarkRead(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notifyReadAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Notify.MarkAllRead(ctx, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notifySweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Hard-delete soft-deleted and expired notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				retention := time.Duration(a.Config.Notify.RetentionDays) * 24 * time.Hour
				n, err := a.Notify.Sweep(ctx, retention)
				if err != nil {
					return err
				}
				fmt.Printf("swept %d notification(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw, key, err := server.NewAPIKey(ctx, a.Engine.Repo, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, raw)
				fmt.Println("Store the key now; it is not shown again.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			logger := log.New(os.Stderr, "gigline ", log.LstdFlags)
			a, err := app.Open(workspace, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Address
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              a.Config.Auth.JWTSecret,
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("GIGLINE_JWT_SECRET")
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("auth.jwt_secret (or GIGLINE_JWT_SECRET) is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Notify:   a.Notify,
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			stopWebhooks := server.StartWebhooks(a.Engine.Repo, a.Config.Webhooks)
			defer stopWebhooks()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Gigline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	logger := log.New(os.Stderr, "gigline ", log.LstdFlags)
	a, err := app.Open(workspace, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printQuotes(items []domain.Quote) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Project", "Provider", "Amount", "Status", "Created"})
	for _, q := range items {
		tw.AppendRow(table.Row{q.ID, q.ProjectID, q.ProviderID, q.Amount, q.Status, q.CreatedAt})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
