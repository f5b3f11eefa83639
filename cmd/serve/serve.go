// Package serve implements the "serve" subcommand: it wires every component
// together and runs the periodic allocation cycle until an interrupt or
// terminate signal arrives, following the reference implementation's
// main-module lifecycle (load config, construct adapter, run forever).
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrInvincible29/Qguardarr/api"
	"github.com/mrInvincible29/Qguardarr/cache"
	"github.com/mrInvincible29/Qguardarr/client"
	rootcmd "github.com/mrInvincible29/Qguardarr/cmd"
	"github.com/mrInvincible29/Qguardarr/client/qbittorrent"
	"github.com/mrInvincible29/Qguardarr/config"
	"github.com/mrInvincible29/Qguardarr/crossseed"
	"github.com/mrInvincible29/Qguardarr/dryrun"
	"github.com/mrInvincible29/Qguardarr/engine"
	"github.com/mrInvincible29/Qguardarr/rollback"
	"github.com/mrInvincible29/Qguardarr/tracker"
	"github.com/mrInvincible29/Qguardarr/webhook"
)

var command = &cobra.Command{
	Use:   "serve",
	Short: "Run the allocation service",
	Args:  cobra.MatchAll(cobra.ExactArgs(0), cobra.OnlyValidArgs),
	RunE:  run,
}

func init() {
	rootcmd.RootCmd.AddCommand(command)
}

func run(c *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ConfigFile)
	if err != nil {
		log.Errorf("configuration error: %v", err)
		return err
	}
	applyLoggingConfig(cfg.Logging)

	matcher, err := tracker.New(cfg.Trackers)
	if err != nil {
		return err
	}

	qb, err := qbittorrent.New(cfg.QBittorrent.Host, cfg.QBittorrent.Port, cfg.QBittorrent.Username, cfg.QBittorrent.Password,
		time.Duration(cfg.QBittorrent.Timeout)*time.Second)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := qb.Login(ctx); err != nil {
		return err
	}
	defer qb.Close(context.Background())

	ch := cache.New()

	rb, err := rollback.Open(cfg.Rollback.DatabasePath)
	if err != nil {
		return err
	}
	defer rb.Close()

	dry, err := dryrun.Load(cfg.Global.DryRunStorePath)
	if err != nil {
		return err
	}

	queue := webhook.NewQueue(1000)

	var forwarder *crossseed.Forwarder
	if cfg.CrossSeed.Enabled {
		forwarder = crossseed.New(cfg.CrossSeed.URL, cfg.CrossSeed.APIKey, time.Duration(cfg.CrossSeed.Timeout)*time.Second)
	}

	var c2 client.Client = qb
	eng := engine.New(cfg, c2, matcher, ch, rb, dry, queue)

	server := api.New(eng, matcher, queue, config.ConfigFile, func(newCfg *config.Config) {
		if err := matcher.Reload(newCfg.Trackers); err != nil {
			log.Warnf("tracker reload failed: %v", err)
		}
	})
	httpServer := &http.Server{
		Addr:    cfg.Global.Host + ":" + strconv.Itoa(cfg.Global.Port),
		Handler: server.Handler(),
	}
	go func() {
		log.Infof("HTTP surface listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	watcher := config.NewWatcher(config.ConfigFile, func(newCfg *config.Config, err error) {
		if err != nil {
			log.Warnf("config reload failed: %v", err)
			return
		}
		eng.UpdateConfig(newCfg)
		if rerr := matcher.Reload(newCfg.Trackers); rerr != nil {
			log.Warnf("tracker reload after config change failed: %v", rerr)
		}
		log.Info("configuration reloaded")
	})
	watcher.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.Global.UpdateInterval) * time.Second)
	defer ticker.Stop()

	log.Info("qguardarr serve starting")
	for {
		select {
		case <-sigCh:
			log.Info("shutdown signal received")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			return nil
		case <-ticker.C:
			runCycleAndForward(ctx, eng, forwarder)
		}
	}
}

// applyLoggingConfig layers the config file's logging section on top of the
// -v flag's default level, and redirects output to a file when configured.
// Log rotation (max_size_mb, backup_count) is left to an external tool
// (e.g. logrotate) since nothing in the retrieval pack pulls in a rotation
// library.
func applyLoggingConfig(cfg config.LoggingSettings) {
	if cfg.Level != "" {
		if lvl, err := log.ParseLevel(cfg.Level); err == nil {
			log.SetLevel(lvl)
		} else {
			log.Warnf("invalid logging.level %q: %v", cfg.Level, err)
		}
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Warnf("unable to open log file %s: %v", cfg.File, err)
			return
		}
		log.SetOutput(f)
	}
}

func runCycleAndForward(ctx context.Context, eng *engine.Engine, forwarder *crossseed.Forwarder) {
	cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	drained, err := eng.RunCycle(cycleCtx)
	if err != nil {
		log.Warnf("cycle failed: %v", err)
	}
	if forwarder == nil {
		return
	}
	for _, ev := range drained {
		if ev.Type == webhook.EventComplete {
			go forwarder.Forward(ctx, ev)
		}
	}
}
