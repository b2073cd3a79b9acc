package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sigaa-scraper/internal/components/telemetry"
	"sigaa-scraper/internal/scrapers/sigaa/account"
	"sigaa-scraper/internal/scrapers/sigaa/course"
	"sigaa-scraper/internal/scrapers/sigaa/session"
	"sigaa-scraper/internal/sessiondb"
	"sigaa-scraper/pkg/configutil"

	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl           string           `json:"base_url"`
	Username          string           `json:"username"`
	Password          string           `json:"password"`
	SessionDb         string           `json:"session_db"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	Timezone          string           `json:"timezone"`
	Telemetry         telemetry.Config `json:"telemetry"`
}

var (
	verbose    *bool
	configName *string
	dumpDir    *string

	config Config
	tel    telemetry.Telemetry
)

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print debug reports.")
	configName = rootCmd.PersistentFlags().String("config", "sigaa.json5", "The name of the config file.")
	dumpDir = rootCmd.PersistentFlags().String("dump", "", "Write every http exchange with the portal into this directory.")
}

var rootCmd = &cobra.Command{
	Use:   "sigaa-cli",
	Short: "sigaa-cli lists and downloads the contents of classes on a SIGAA portal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)

		var err error
		config, err = configutil.ReadRecursively[Config](*configName)
		if err != nil {
			Fatal("failed to read config", err)
		}
		if config.SessionDb == "" {
			config.SessionDb = "sigaa-session.db"
		}

		tel, err = telemetry.Setup(cmd.Context(), "sigaa-cli", config.Telemetry)
		if err != nil {
			Fatal("failed to setup telemetry", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush traces", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *session.Client {
	client, err := session.NewClient(session.ClientOptions{
		BaseUrl:           config.BaseUrl,
		RequestsPerSecond: config.RequestsPerSecond,
		Timezone:          config.Timezone,
		DumpDir:           *dumpDir,
	}, telemetry.SlogAPI{})
	if err != nil {
		Fatal("invalid portal configuration", err)
	}
	return client
}

// openAccount resumes the session saved for the configured user, it logs in
// again if there is none or the portal does not accept it anymore.
func openAccount(ctx context.Context) (*account.Account, []*course.Class, sessiondb.DB) {
	db, err := sessiondb.Open(config.SessionDb)
	if err != nil {
		Fatal("failed to open session db", err)
	}
	client := newClient()

	snapshot, err := db.Load(ctx, config.Username)
	switch {
	case err == nil:
		err = client.Restore(snapshot)
		if err != nil {
			slog.Warn("discarding saved session", "err", err)
			break
		}
		acc := account.Resume(client, telemetry.SlogAPI{})
		classes, err := acc.Classes(ctx)
		if err == nil {
			slog.Debug("resumed saved session", "username", config.Username)
			return acc, classes, db
		}
		if !errors.Is(err, session.ErrSessionExpired) {
			Fatal("failed to list classes", err)
		}
		slog.Info("saved session expired, logging in again")
		client.Close()
	case !errors.Is(err, sessiondb.ErrNoSession):
		Fatal("failed to load saved session", err)
	}

	acc, err := account.Login(ctx, client, config.Username, config.Password, telemetry.SlogAPI{})
	if err != nil {
		Fatal("failed to login", err)
	}
	err = db.Save(ctx, config.Username, client.Snapshot())
	if err != nil {
		slog.Warn("failed to save session", "err", err)
	}

	classes, err := acc.Classes(ctx)
	if err != nil {
		Fatal("failed to list classes", err)
	}
	return acc, classes, db
}

func findClass(classes []*course.Class, id string) *course.Class {
	for _, c := range classes {
		if c.Id() == id {
			return c
		}
	}
	Fatal(fmt.Sprintf("there is no class with id '%s'", id), nil)
	return nil
}
