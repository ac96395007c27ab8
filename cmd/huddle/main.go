package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ammar1510/huddle/internal/config"
	"github.com/ammar1510/huddle/internal/logger"
)

var (
	envFile string
	cfg     *config.Config
	log     = logger.New("main")

	rootCmd = &cobra.Command{
		Use:           "huddle",
		Short:         "Friends and one-to-one chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			if cfg, err = config.Load(files...); err != nil {
				return err
			}
			return logger.SetLevel(cfg.LogLevel)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (defaults to .env)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
