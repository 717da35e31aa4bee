// Package cli implementiert das Kommandozeilenwerkzeug facectl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"facegate/config"
	"facegate/internal/app"
	"facegate/internal/logger"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/config/config.yaml"

// session hält den Zustand eines Programmaufrufs
type session struct {
	detectors  app.DetectorFactory
	configPath string
	verbose    bool

	cfg *config.Config
	app *app.App
}

// NewRootCommand baut den Befehlsbaum. detectors darf nil sein. Die
// Datenbankverbindung bleibt offen, Run schließt sie nach dem Befehl.
func NewRootCommand(detectors app.DetectorFactory) *cobra.Command {
	root, _ := newRoot(detectors)
	return root
}

func newRoot(detectors app.DetectorFactory) (*cobra.Command, *session) {
	rt := &session{detectors: detectors}

	root := &cobra.Command{
		Use:   "facectl",
		Short: "Manage the facegate enrollment store and recognition model",
		Long: `facectl works directly on the facegate database and model artifact.
It enrolls people, trains the LBPH model and runs recognitions without
the HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.loadConfig()
		},
	}

	configDefault := os.Getenv("FACEGATE_CONFIG")
	if configDefault == "" {
		configDefault = defaultConfigPath
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", configDefault, "Path to the configuration file")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	root.AddCommand(
		newTrainCommand(rt),
		newStatusCommand(rt),
		newRecognizeCommand(rt),
		newCompareCommand(rt),
		newEnrollCommand(rt),
		newPersonsCommand(rt),
		newLogsCommand(rt),
		newDiagnoseCommand(rt),
	)
	return root, rt
}

// Run führt einen Befehl aus und gibt danach Datenbank und Detektor frei
func Run(ctx context.Context, detectors app.DetectorFactory, args []string, stdout, stderr io.Writer) error {
	root, rt := newRoot(detectors)
	defer rt.close()

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// Execute führt facectl mit den Programmargumenten aus
func Execute(detectors app.DetectorFactory) {
	if err := Run(context.Background(), detectors, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (rt *session) loadConfig() error {
	// .env ist optional
	_ = godotenv.Load()

	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if !rt.verbose {
		cfg.Log.Level = "warn"
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	rt.cfg = cfg
	return nil
}

// open verbindet Datenbank und Engine beim ersten Bedarf
func (rt *session) open() (*app.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	a, err := app.New(rt.cfg, rt.detectors, nil)
	if err != nil {
		return nil, err
	}
	rt.app = a
	return a, nil
}

func (rt *session) close() {
	if rt.app != nil {
		rt.app.Close()
		rt.app = nil
	}
}
