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
	"go.uber.org/zap"

	"creditline/internal/app"
	"creditline/internal/config"
	"creditline/internal/db"
	"creditline/internal/domain"
	"creditline/internal/repo"
	"creditline/internal/server"
	"creditline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "CreditLine CLI",
	Long: `CreditLine tracks credit applications from intake to funds release.
A dossier moves through a fixed review pipeline: account managers forward it
to credit analysts, analysts to the risk committee, the committee approves or
rejects, and the back office releases funds. Every move is journaled and the
affected parties are notified.`,
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
	viper.SetEnvPrefix("CREDITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(dossierCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func dossierCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dossier", Short: "Manage dossiers"}
	cmd.AddCommand(dossierCreateCmd())
	cmd.AddCommand(dossierShowCmd())
	cmd.AddCommand(dossierListCmd())
	cmd.AddCommand(dossierArchiveCmd(true))
	cmd.AddCommand(dossierArchiveCmd(false))
	return cmd
}

func dossierCreateCmd() *cobra.Command {
	var clientID, product string
	var amount int64
	var duration int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a credit application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if clientID == "" {
					clientID = viper.GetString("actor-id")
				}
				d, err := a.Engine.CreateDossier(ctx, workflow.CreateDossierOptions{
					ClientID:       clientID,
					Product:        product,
					Amount:         amount,
					DurationMonths: duration,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client identifier (defaults to --actor-id)")
	cmd.Flags().StringVar(&product, "product", "", "product name from the catalog")
	cmd.Flags().Int64Var(&amount, "amount", 0, "requested amount")
	cmd.Flags().IntVar(&duration, "duration-months", 0, "repayment duration in months")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("duration-months")
	return cmd
}

func dossierShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <reference>",
		Short: "Show a dossier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Repo.GetDossier(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func dossierListCmd() *cobra.Command {
	var f repo.DossierFilter
	var status string
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dossiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f.AgentStatus = domain.AgentStatus(status)
				if cmd.Flags().Changed("archived") {
					f.Archived = &archived
				}
				dossiers, err := a.Repo.ListDossiers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(dossiers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Reference", "Client", "Product", "Amount", "Status", "Client Status", "Submitted"})
				for _, d := range dossiers {
					tw.AppendRow(table.Row{d.Reference, d.ClientID, d.Product, d.Amount, d.AgentStatus, d.ClientStatus, d.SubmittedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client-id", "", "client filter")
	cmd.Flags().StringVar(&status, "status", "", "agent status filter")
	cmd.Flags().StringVar(&f.Product, "product", "", "product filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assigned actor filter")
	cmd.Flags().BoolVar(&archived, "archived", false, "archived filter")
	cmd.Flags().StringVar(&f.AfterReference, "after", "", "page after this reference")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size")
	return cmd
}

func dossierArchiveCmd(archive bool) *cobra.Command {
	use, short := "archive <reference>", "Archive a dossier"
	if !archive {
		use, short = "unarchive <reference>", "Restore an archived dossier"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.SetDossierArchived(ctx, args[0], archive); err != nil {
					return err
				}
				d, err := a.Repo.GetDossier(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func actionCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "action <name> <reference>",
		Short: "Apply a workflow action to a dossier",
		Long: `Apply a workflow action as the actor named by --actor-id.
Actions: ` + actionNames() + `.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.Apply(ctx, workflow.ApplyOptions{
					ActorID:   viper.GetString("actor-id"),
					Reference: args[1],
					Action:    workflow.Action(args[0]),
					Comment:   comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment (required for return_to_client)")
	return cmd
}

func actionNames() string {
	var names []string
	for _, a := range workflow.Actions() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func journalCmd() *cobra.Command {
	var newest bool
	cmd := &cobra.Command{
		Use:   "journal <reference>",
		Short: "Show a dossier's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Repo.GetDossier(ctx, args[0]); err != nil {
					return err
				}
				entries, err := a.Repo.JournalEntries(ctx, args[0], newest)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "From", "To", "Actor", "Comment", "At"})
				for _, e := range entries {
					from := ""
					if e.FromStatus != nil {
						from = string(*e.FromStatus)
					}
					tw.AppendRow(table.Row{e.ID, e.Kind, from, e.ToStatus, e.ActorID, e.Comment, e.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&newest, "newest-first", false, "newest entries first")
	return cmd
}

func notificationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notification", Short: "In-app notifications"}

	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListNotifications(ctx, viper.GetString("actor-id"), unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Reference", "Title", "Read", "At"})
				for _, n := range items {
					read := ""
					if n.ReadAt != nil {
						read = *n.ReadAt
					}
					tw.AppendRow(table.Row{n.ID, n.Kind, n.Reference, n.Title, read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "unread only")
	list.Flags().IntVar(&limit, "limit", 0, "max entries")

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var id int64
				if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
					return fmt.Errorf("invalid notification id %q", args[0])
				}
				return a.Repo.MarkNotificationRead(ctx, viper.GetString("actor-id"), id)
			})
		},
	}

	cmd.AddCommand(list, read)
	return cmd
}

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Manage actors and roles"}

	var fullName, email, role string
	var inactive bool
	upsert := &cobra.Command{
		Use:   "upsert <id>",
		Short: "Create or update an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r := domain.Role(role)
				if !domain.ValidRole(r) {
					return fmt.Errorf("invalid role %q", role)
				}
				actor, err := a.Repo.UpsertActor(ctx, domain.Actor{
					ID:       args[0],
					FullName: fullName,
					Email:    email,
					Role:     r,
					Active:   !inactive,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(actor)
			})
		},
	}
	upsert.Flags().StringVar(&fullName, "full-name", "", "display name")
	upsert.Flags().StringVar(&email, "email", "", "email address")
	upsert.Flags().StringVar(&role, "role", "", "role")
	upsert.Flags().BoolVar(&inactive, "inactive", false, "create deactivated")
	_ = upsert.MarkFlagRequired("role")

	var listRole string
	list := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actors, err := a.Repo.ListActors(ctx, domain.Role(listRole))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Active"})
				for _, actor := range actors {
					tw.AppendRow(table.Row{actor.ID, actor.FullName, actor.Email, actor.Role, actor.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listRole, "role", "", "role filter")

	var newRole string
	setRole := &cobra.Command{
		Use:   "set-role <id>",
		Short: "Reassign an actor's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r := domain.Role(newRole)
				if !domain.ValidRole(r) {
					return fmt.Errorf("invalid role %q", newRole)
				}
				return a.Repo.SetActorRole(ctx, args[0], r)
			})
		},
	}
	setRole.Flags().StringVar(&newRole, "role", "", "new role")
	_ = setRole.MarkFlagRequired("role")

	deactivate := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.SetActorActive(ctx, args[0], false)
			})
		},
	}
	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Reactivate an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.SetActorActive(ctx, args[0], true)
			})
		},
	}

	cmd.AddCommand(upsert, list, setRole, deactivate, activate)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name, actorID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				target := actorID
				if target == "" {
					target = viper.GetString("actor-id")
				}
				key, secret, err := a.Repo.CreateAPIKey(ctx, target, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"key": key, "secret": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringVar(&actorID, "for", "", "actor id (defaults to --actor-id)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Institution config and product catalog"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if viper.GetBool("json") {
					return printJSON(a.Config)
				}
				out, err := a.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}

	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import a config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				if err := a.Repo.SaveConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Printf("imported config %q\n", cfg.Name)
				return nil
			})
		},
	}
	imp.Flags().StringVar(&file, "file", "", "YAML config file")
	_ = imp.MarkFlagRequired("file")

	cmd.AddCommand(show, imp)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()
			a, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				Log:       log,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("CREDITLINE_JWT_SECRET"),
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
				Log:                    log,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("CREDITLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Log:      log,
			})
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
			log.Info("serving CreditLine API",
				zap.String("addr", addr),
				zap.String("base_path", basePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
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
