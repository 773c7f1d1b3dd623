package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadready/internal/app"
	"leadready/internal/config"
	"leadready/internal/db"
	"leadready/internal/domain"
	"leadready/internal/engine"
	"leadready/internal/migrate"
	"leadready/internal/repo"
	"leadready/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "leadready",
	Short: "leadready CLI",
	Long: `leadready decides which uploaded contacts are ready for outreach.
- Clients own uploads; uploads hold contacts.
- Validation probes each contact's website (HTTP), email (DNS MX and an SMTP
  RCPT probe) and business name, then picks a scrape method:
  direct_url (1) > email_domain (2) > business_search (3).
- Duplicates are flagged against the same client's earlier contacts.
- The event log records every change; 'leadready serve' exposes the API and
  forwards events to configured webhooks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADREADY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (defaults to <workspace>/leadready.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(contactCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default leadready.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := app.OpenWorkspace(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			version, err := migrate.Current(cmd.Context(), conn)
			if err != nil {
				return err
			}
			path := config.Path(workspace)
			wrote := false
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) || force {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				wrote = true
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"database": db.Path(workspace), "schema_version": version, "config": path, "config_written": wrote})
			}
			fmt.Printf("database: %s (schema v%d)\n", db.Path(workspace), version)
			if wrote {
				fmt.Println("config written:", path)
			} else {
				fmt.Println("config kept:", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing leadready.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default leadready.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	return cfg
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Manage clients"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClient(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "client name")
	_ = create.MarkFlagRequired("name")
	cl.AddCommand(create)
	cl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListClients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Created")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cl
}

func uploadCmd() *cobra.Command {
	up := &cobra.Command{Use: "upload", Short: "Manage uploads"}
	var clientID, filename string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an upload for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUpload(ctx, clientID, filename)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	create.Flags().StringVar(&clientID, "client", "", "client id")
	create.Flags().StringVar(&filename, "filename", "", "source file name")
	_ = create.MarkFlagRequired("client")
	up.AddCommand(create)

	var listClient string
	list := &cobra.Command{
		Use:   "list",
		Short: "List uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListUploads(ctx, listClient)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Client", "File", "Status", "Total", "Valid", "Invalid")
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.ClientID, u.Filename, u.Status, u.Total, u.ValidCount, u.InvalidCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listClient, "client", "", "only uploads of this client")
	up.AddCommand(list)
	return up
}

func contactCmd() *cobra.Command {
	ct := &cobra.Command{Use: "contact", Short: "Manage contacts"}
	ct.AddCommand(contactAddCmd())
	ct.AddCommand(&cobra.Command{
		Use:   "show <contact-id>",
		Short: "Show a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetContact(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	ct.AddCommand(contactListCmd())
	return ct
}

func contactAddCmd() *cobra.Command {
	var uploadID string
	var in engine.ContactInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one contact to an upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.AddContacts(ctx, uploadID, []engine.ContactInput{in})
				if err != nil {
					return err
				}
				return printJSONOrTable(items[0])
			})
		},
	}
	cmd.Flags().StringVar(&uploadID, "upload", "", "upload id")
	cmd.Flags().StringVar(&in.BusinessName, "name", "", "business name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.Website, "website", "", "website url")
	cmd.Flags().StringVar(&in.City, "city", "", "city")
	cmd.Flags().StringVar(&in.State, "state", "", "state or region")
	cmd.Flags().StringVar(&in.Country, "country", "", "country")
	cmd.Flags().StringVar(&in.PostalCode, "postal-code", "", "postal code")
	_ = cmd.MarkFlagRequired("upload")
	return cmd
}

func contactListCmd() *cobra.Command {
	var f repo.ContactFilters
	var valid string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if valid != "" {
				v, err := strconv.ParseBool(valid)
				if err != nil {
					return fmt.Errorf("--valid must be true or false")
				}
				f.Valid = &v
			}
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContacts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Business", "Email", "Website", "Valid", "Method", "Status", "Duplicate")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.BusinessName, c.Email, c.Website, c.Valid, c.ScrapeMethod, c.Status, c.DuplicateStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&f.UploadID, "upload", "", "upload id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status: new, ready_to_scrape, duplicate")
	cmd.Flags().StringVar(&valid, "valid", "", "true or false")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows (0 for all)")
	return cmd
}

func validateCmd() *cobra.Command {
	v := &cobra.Command{Use: "validate", Short: "Run validation"}
	v.AddCommand(&cobra.Command{
		Use:   "contact <contact-id>",
		Short: "Validate one stored contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.ValidateContact(ctx, args[0]); err != nil {
					return err
				}
				c, err := e.GetContact(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	v.AddCommand(&cobra.Command{
		Use:   "upload <upload-id>",
		Short: "Validate every contact of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.ValidateUpload(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	})
	v.AddCommand(&cobra.Command{
		Use:   "revalidate <upload-id>",
		Short: "Re-check the invalid contacts of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.RevalidateInvalid(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"upload_id": args[0], "revalidated": n})
			})
		},
	})
	v.AddCommand(&cobra.Command{
		Use:   "email <address>",
		Short: "Check one email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.CheckEmail(ctx, args[0]))
			})
		},
	})
	v.AddCommand(&cobra.Command{
		Use:   "website <url>",
		Short: "Check that a website answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.CheckWebsite(ctx, args[0]))
			})
		},
	})
	return v
}

func resolveCmd() *cobra.Command {
	r := &cobra.Command{Use: "resolve", Short: "Find missing data for contacts"}
	r.AddCommand(&cobra.Command{
		Use:   "website <contact-id>",
		Short: "Find a website for a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ResolveWebsite(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	return r
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var clientID, evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, n, clientID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Payload")
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	tail.Flags().StringVar(&clientID, "client", "", "client id")
	tail.Flags().StringVar(&evtType, "type", "", "event type")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind: client, upload, contact")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				addr := viper.GetString("addr")
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				if d := server.NewWebhookDispatcher(e, e.Logger.With("component", "webhooks")); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving leadready API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withEngine opens the workspace and wires the network probers from config.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.LoadConfig(workspace, viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := app.OpenWorkspace(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	e, closeFn, err := app.Build(ctx, conn, cfg, newLogger())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, e)
}

// withStore is withEngine for commands that never probe the network.
func withStore(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.LoadConfig(workspace, viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := app.OpenWorkspace(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn, cfg)
	e.Logger = newLogger()
	return fn(ctx, e)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	switch t := v.(type) {
	case domain.Contact:
		tw := newTable("Field", "Value")
		tw.AppendRows([]table.Row{
			{"id", t.ID},
			{"business", t.BusinessName},
			{"email", t.Email},
			{"website", t.Website},
			{"valid", t.Valid},
			{"scrape_method", t.ScrapeMethod},
			{"status", t.Status},
			{"duplicate", t.DuplicateStatus},
			{"reason", t.ValidationReason},
		})
		tw.Render()
		return nil
	case engine.UploadSummary:
		tw := newTable("Total", "Validated", "Valid", "Invalid")
		tw.AppendRow(table.Row{t.Total, t.Validated, t.Valid, t.Invalid})
		tw.Render()
		return nil
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
