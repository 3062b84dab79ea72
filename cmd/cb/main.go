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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"claimbot/internal/collab"
	"claimbot/internal/config"
	"claimbot/internal/db"
	"claimbot/internal/domain"
	"claimbot/internal/engine"
	"claimbot/internal/migrate"
	"claimbot/internal/repo"
	"claimbot/internal/scheduler"
	"claimbot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cb",
	Short: "Claimbot CLI",
	Long: `Claimbot keeps track of who owns a task and chases the answer.
Core concepts:
- Workspace: the .claimbot directory holding the database; config lives in claimbot.yml next to it.
- Tenant: one customer installation, pairing a tracker workspace with a chat team and an owner sheet.
- Conversation: the claim dialogue for one task; states go awaiting_response -> claimed / unassignable / closed.
- Owner sheet: the spreadsheet that maps task names to the human who should claim them.
- Reminders: half-time and near-deadline follow-ups, sent at most once each.
- Event log: diary of everything that happened, view with 'cb log tail'.`,
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
	viper.SetEnvPrefix("CLAIMBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("chat-url", "", "chat service base URL")
	rootCmd.PersistentFlags().String("chat-token", "", "chat service token")
	rootCmd.PersistentFlags().String("sheet-url", "", "sheet service base URL")
	rootCmd.PersistentFlags().String("sheet-token", "", "sheet service token")
	rootCmd.PersistentFlags().String("notify-secret", "", "shared secret for outcome callbacks")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("chat-url", rootCmd.PersistentFlags().Lookup("chat-url"))
	_ = viper.BindPFlag("chat-token", rootCmd.PersistentFlags().Lookup("chat-token"))
	_ = viper.BindPFlag("sheet-url", rootCmd.PersistentFlags().Lookup("sheet-url"))
	_ = viper.BindPFlag("sheet-token", rootCmd.PersistentFlags().Lookup("sheet-token"))
	_ = viper.BindPFlag("notify-secret", rootCmd.PersistentFlags().Lookup("notify-secret"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default claimbot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func tenantCmd() *cobra.Command {
	t := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	t.AddCommand(tenantAddCmd())
	t.AddCommand(tenantListCmd())
	t.AddCommand(tenantShowCmd())
	t.AddCommand(tenantKeyCmd())
	return t
}

func tenantAddCmd() *cobra.Command {
	var name, chatTeam, botUser, trackerWorkspace, sheetID, notifyURL string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || chatTeam == "" || trackerWorkspace == "" || sheetID == "" {
				return fmt.Errorf("--name, --chat-team, --tracker-workspace and --sheet required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t := domain.Tenant{
					ID:                 uuid.NewString(),
					Name:               name,
					ChatTeamID:         chatTeam,
					ChatBotUserID:      botUser,
					TrackerWorkspaceID: trackerWorkspace,
					SheetID:            sheetID,
					NotifyURL:          notifyURL,
					CreatedAt:          time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertTenant(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tenant display name")
	cmd.Flags().StringVar(&chatTeam, "chat-team", "", "chat team id")
	cmd.Flags().StringVar(&botUser, "bot-user", "", "chat bot user id")
	cmd.Flags().StringVar(&trackerWorkspace, "tracker-workspace", "", "tracker workspace id")
	cmd.Flags().StringVar(&sheetID, "sheet", "", "owner sheet id")
	cmd.Flags().StringVar(&notifyURL, "notify-url", "", "outcome callback URL")
	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tenants, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tenants)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Chat Team", "Tracker Workspace", "Sheet"})
				for _, t := range tenants {
					tw.AppendRow(table.Row{t.ID, t.Name, t.ChatTeamID, t.TrackerWorkspaceID, t.SheetID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func tenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <tenant-id>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTenant(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func tenantKeyCmd() *cobra.Command {
	var tenantID, name string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Issue an API key for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetTenant(ctx, tenantID); err != nil {
					return err
				}
				plaintext := server.NewAPIKeyValue()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					TenantID:  tenantID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plaintext),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Println(plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func conversationCmd() *cobra.Command {
	c := &cobra.Command{Use: "conversation", Short: "Inspect conversations"}
	c.AddCommand(conversationListCmd())
	c.AddCommand(conversationShowCmd())
	return c
}

func conversationListCmd() *cobra.Command {
	var tenantID, state string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListConversations(ctx, repo.ConversationFilters{
					TenantID: tenantID,
					State:    state,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "State", "Candidate", "Deadline", "Follow-ups"})
				for _, c := range items {
					candidate := ""
					if c.CandidateOwnerName != nil {
						candidate = *c.CandidateOwnerName
					}
					deadline := ""
					if c.TaskDeadline != nil {
						deadline = *c.TaskDeadline
					}
					tw.AppendRow(table.Row{c.ID, c.TaskName, c.State, candidate, deadline, strings.Join(c.FollowUpsSent, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func conversationShowCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetConversation(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: claim requests, replies, reminders, and outcomes.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var tenantID, evtType, taskID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, tenantID, evtType, taskID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&taskID, "task", "", "task filter")
	return cmd
}

func simulateCmd() *cobra.Command {
	sim := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the engine locally without chat or sheet services",
		Long:  "Simulate commands run the real state machine against the workspace database, printing DMs to stdout and resolving owners from flags instead of a live sheet.",
	}
	sim.AddCommand(simulateAssignCmd())
	sim.AddCommand(simulateReplyCmd())
	sim.AddCommand(simulateCloseCmd())
	sim.AddCommand(simulateSweepCmd())
	return sim
}

func simulateAssignCmd() *cobra.Command {
	var tenantID, taskID, taskName, deadlineStr, ownerName, ownerEmail string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Simulate a task-assigned event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" || taskID == "" || taskName == "" {
				return fmt.Errorf("--tenant, --task and --name required")
			}
			var deadline *time.Time
			if deadlineStr != "" {
				parsed, err := parseDeadline(deadlineStr)
				if err != nil {
					return err
				}
				deadline = &parsed
			}
			return withSimEngine(cmd.Context(), ownerName, ownerEmail, func(ctx context.Context, e engine.Engine) error {
				c, err := e.OnTaskAssigned(ctx, tenantID, taskID, taskName, deadline)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&taskName, "name", "", "task name")
	cmd.Flags().StringVar(&deadlineStr, "deadline", "", "deadline (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&ownerName, "owner-name", "", "sheet owner name for this task")
	cmd.Flags().StringVar(&ownerEmail, "owner-email", "", "sheet owner email for this task")
	return cmd
}

func simulateReplyCmd() *cobra.Command {
	var tenantID, taskID, text, ownerName, ownerEmail string
	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Simulate a chat reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" || taskID == "" {
				return fmt.Errorf("--tenant and --task required")
			}
			return withSimEngine(cmd.Context(), ownerName, ownerEmail, func(ctx context.Context, e engine.Engine) error {
				return e.OnReplyReceived(ctx, tenantID, taskID, text)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&text, "text", "", "reply text")
	cmd.Flags().StringVar(&ownerName, "owner-name", "", "sheet owner for re-resolution after a decline")
	cmd.Flags().StringVar(&ownerEmail, "owner-email", "", "sheet owner email")
	return cmd
}

func simulateCloseCmd() *cobra.Command {
	var tenantID, taskID string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Simulate a task-closed event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" || taskID == "" {
				return fmt.Errorf("--tenant and --task required")
			}
			return withSimEngine(cmd.Context(), "", "", func(ctx context.Context, e engine.Engine) error {
				return e.OnTaskClosed(ctx, tenantID, taskID)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	return cmd
}

func simulateSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSimEngine(cmd.Context(), "", "", func(ctx context.Context, e engine.Engine) error {
				return scheduler.New(e).Sweep(ctx)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			chatURL := viper.GetString("chat-url")
			sheetURL := viper.GetString("sheet-url")
			if chatURL == "" || sheetURL == "" {
				return fmt.Errorf("--chat-url and --sheet-url (or CLAIMBOT_CHAT_URL / CLAIMBOT_SHEET_URL) required")
			}
			chat := collab.NewHTTPChatClient(chatURL, viper.GetString("chat-token"))
			sheet := collab.NewHTTPSheetClient(sheetURL, viper.GetString("sheet-token"))
			notifier := collab.NewHTTPNotifier(viper.GetString("notify-secret"))
			e := engine.New(conn, cfg, chat, sheet, notifier)

			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CLAIMBOT_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CLAIMBOT_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}

			schedCtx, cancelSched := context.WithCancel(cmd.Context())
			defer cancelSched()
			go scheduler.New(e).Run(schedCtx)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Claimbot API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

// consoleChat prints DMs to stdout so simulate commands work without a
// chat service. User refs are derived from names deterministically.
type consoleChat struct{}

func (consoleChat) SendDirectMessage(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error) {
	fmt.Printf("[dm %s -> %s] %s\n", tenant.ChatTeamID, userRef, text)
	return uuid.NewString(), nil
}

func (consoleChat) ResolveUserByName(ctx context.Context, tenant domain.Tenant, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", collab.ErrUserNotFound
	}
	return "sim:" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ".")), nil
}

func (c consoleChat) ResolveUserByEmail(ctx context.Context, tenant domain.Tenant, email string) (string, error) {
	return c.ResolveUserByName(ctx, tenant, email)
}

// staticSheet serves a single owner mapping from flags.
type staticSheet struct {
	ownerName  string
	ownerEmail string
}

func (s staticSheet) LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*collab.OwnerMapping, error) {
	if s.ownerName == "" {
		return nil, nil
	}
	return &collab.OwnerMapping{OwnerName: s.ownerName, OwnerEmail: s.ownerEmail}, nil
}

type consoleNotifier struct{}

func (consoleNotifier) NotifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) error {
	fmt.Printf("[outcome %s] task=%s outcome=%s owner=%s\n", tenant.ID, taskID, outcome, ownerRef)
	return nil
}

func withSimEngine(ctx context.Context, ownerName, ownerEmail string, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, consoleChat{}, staticSheet{ownerName: ownerName, ownerEmail: ownerEmail}, consoleNotifier{})
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: use RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
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
