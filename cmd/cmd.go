package cmd

import (
	"os"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrInvincible29/Qguardarr/config"
)

// RootCmd is the base command when qguardarr is called without subcommands.
var RootCmd = &cobra.Command{
	Use:   "qguardarr",
	Short: "qguardarr enforces collective per-tracker upload caps across a qBittorrent instance.",
	Long:  `qguardarr periodically reallocates per-torrent upload limits so that the sum of upload speed for torrents on each configured tracker stays within its cap.`,
}

// Execute adds all child commands to RootCmd and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	cobra.OnInitialize(func() {
		// level: panic(0), fatal(1), error(2), warn(3), info(4), debug(5), trace(6). Default = info(4).
		logLevel := 4 + config.VerboseLevel
		log.SetLevel(log.Level(logLevel))
		log.Debugf("qguardarr start: %s", os.Args)
		log.Infof("config file: %s", config.ConfigFile)
		if config.LockFile != "" {
			log.Debugf("locking file: %s", config.LockFile)
			if err := flock.New(config.LockFile).Lock(); err != nil {
				log.Fatalf("unable to lock file %s: %v", config.LockFile, err)
			}
			log.Infof("lock acquired")
		}
	})
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	configFile := "qguardarr.yaml"
	candidates := []string{
		"qguardarr.yaml",
		"/etc/qguardarr/qguardarr.yaml",
	}
	for _, cf := range candidates {
		if _, err := os.Stat(cf); err == nil {
			configFile = cf
			break
		}
	}

	RootCmd.PersistentFlags().StringVarP(&config.ConfigFile, "config", "c", configFile, "Config file (qguardarr.yaml)")
	RootCmd.PersistentFlags().StringVarP(&config.LockFile, "lock", "", "", "Lock filename; prevents concurrent qguardarr invocations. Created automatically, never deleted on exit")
	RootCmd.PersistentFlags().CountVarP(&config.VerboseLevel, "verbose", "v", "verbose (-v, -vv, -vvv)")
}
