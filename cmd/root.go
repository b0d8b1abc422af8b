package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CornwallCorndog/Even-Crop/controller"
	"github.com/CornwallCorndog/Even-Crop/controller/state"
	"github.com/CornwallCorndog/Even-Crop/controller/storage"
)

var (
	configFile string
	logLevel   string
	database   string
	listen     string
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "evencrop",
	Short: "Cab-side controller for the Even-Crop delivery rig",
}

func loadOptions() controller.Options {
	opts, err := controller.LoadOptions(configFile)
	if err != nil {
		logrus.Fatalf("reading config %s: %v", configFile, err)
	}
	if database != "" {
		opts.Database = database
	}
	if listen != "" {
		opts.Listen = listen
	}
	if simulate {
		opts.Simulate = true
	}
	return opts
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller service",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		c, err := controller.New(loadOptions())
		if err != nil {
			logrus.Fatalf("starting controller: %v", err)
		}

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-ch
			logrus.Info("shutting down")
			c.Close()
		}()

		if err := c.Start(); err != nil {
			logrus.Fatalf("serving: %v", err)
		}
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the persisted rig state to factory defaults",
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadOptions()
		db, err := storage.NewStore(opts.Database)
		if err != nil {
			logrus.Fatalf("opening database %s: %v", opts.Database, err)
		}
		defer db.Close()
		st, err := state.NewStore(db)
		if err != nil {
			logrus.Fatalf("loading state: %v", err)
		}
		st.Reset()
		logrus.Info("state reset to defaults")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "evencrop.yml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&database, "database", "", "Override the database path")
	runCmd.Flags().StringVar(&listen, "listen", "", "Override the HTTP listen address")
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Skip the cab link and run against the built-in simulator")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
}
