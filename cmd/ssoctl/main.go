package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	characterrepo "github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/entity"
	settingrepo "github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func openDB(driver, dsn string) (*sqlx.DB, *utilities.Sealer, error) {
	cfg := database.ConfigFromEnv()
	cfg.Driver = driver
	cfg.DSN = dsn
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	sealer, err := utilities.SealerFromEnv()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, sealer, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	_ = godotenv.Load()

	dbDefaults := database.ConfigFromEnv()
	var (
		driver  = dbDefaults.Driver
		dsn     = dbDefaults.DSN
		timeout = 10 * time.Second
	)

	root := &cobra.Command{
		Use:          "ssoctl",
		Short:        "Operator tool for the ESI SSO service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&driver, "db-driver", driver, "database driver: sqlite|postgres (env DATABASE_DRIVER)")
	root.PersistentFlags().StringVar(&dsn, "db", dsn, "database DSN or sqlite file (env DATABASE_URL)")

	configCmd := &cobra.Command{Use: "config", Short: "Show or replace the stored SSO configuration"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored configuration with the secret masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, sealer, err := openDB(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			r := settingrepo.NewRepo(db, sealer)
			if err := r.EnsureTable(ctx); err != nil {
				return err
			}
			cfg, err := setting.NewService(r, nil).Load(ctx)
			if err != nil {
				return err
			}
			return printJSON(cfg.View())
		},
	}

	var in entity.SsoConfig
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the stored configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, sealer, err := openDB(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			r := settingrepo.NewRepo(db, sealer)
			if err := r.EnsureTable(ctx); err != nil {
				return err
			}
			if in.Scope == "" {
				in.Scope = strings.Join(sso.DefaultScopes, " ")
			}
			saved, err := setting.NewService(r, nil).Save(ctx, &in)
			if err != nil {
				return err
			}
			fmt.Println("saved; restart the service to apply")
			return printJSON(saved.View())
		},
	}
	setCmd.Flags().StringVar(&in.ClientID, "client-id", os.Getenv("ESI_CLIENT_ID"), "application client id")
	setCmd.Flags().StringVar(&in.ClientSecret, "client-secret", os.Getenv("ESI_CLIENT_SECRET"), "application secret key")
	setCmd.Flags().StringVar(&in.CallbackURL, "callback-url", os.Getenv("ESI_CALLBACK_URL"), "registered callback URL")
	setCmd.Flags().StringVar(&in.Scope, "scopes", os.Getenv("ESI_SCOPES"), "space or comma separated scopes (default: all ESI scopes)")

	charactersCmd := &cobra.Command{
		Use:   "characters",
		Short: "List characters that have logged in",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, sealer, err := openDB(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			r := characterrepo.NewCharacterRepo(db, sealer)
			if err := r.EnsureTable(ctx); err != nil {
				return err
			}
			list, err := r.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSIGNED IN\tTOKEN EXPIRES\tUPDATED")
			for _, c := range list {
				expires := "-"
				if !c.ExpiresAt.IsZero() {
					expires = c.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", c.CharacterID, c.CharacterName, c.HasTokens(), expires, c.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	var (
		serviceURL = envOr("SSO_SERVICE_URL", "http://localhost:8431")
		scopes     string
		openIt     bool
	)
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Print (and optionally open) the service's login URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loginURL(serviceURL, scopes)
			if err != nil {
				return err
			}
			fmt.Println(u)
			if openIt {
				return open.Run(u)
			}
			return nil
		},
	}
	loginCmd.Flags().StringVar(&serviceURL, "service", serviceURL, "base URL of the running service (env SSO_SERVICE_URL)")
	loginCmd.Flags().StringVar(&scopes, "scopes", "", "comma separated scopes to request")
	loginCmd.Flags().BoolVar(&openIt, "open", false, "open the URL in the default browser")

	configCmd.AddCommand(showCmd, setCmd)
	root.AddCommand(configCmd, charactersCmd, loginCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loginURL(base, scopes string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/login")
	if err != nil {
		return "", fmt.Errorf("service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("service url %q must be absolute", base)
	}
	if list := sso.ParseScopes(scopes); len(list) > 0 {
		u.RawQuery = url.Values{"scopes": {strings.Join(list, ",")}}.Encode()
	}
	return u.String(), nil
}
