// Package main provides the arena server. It wires together
// configuration, database, content catalogues, scripted opponent
// controllers, and the battle session manager.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mserrano/riftbound/internal/config"
	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/reward"
	"github.com/mserrano/riftbound/internal/game/session"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/observability"
	"github.com/mserrano/riftbound/internal/scripting"
	"github.com/mserrano/riftbound/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting Riftbound arena server",
		zap.String("addr", cfg.Server.Addr()),
	)

	// Connect to PostgreSQL
	ctx := context.Background()
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Name),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	// Load content catalogues
	contentDir := cfg.Engine.ContentDir
	classes, err := character.LoadClasses(filepath.Join(contentDir, "classes"))
	if err != nil {
		logger.Fatal("loading classes", zap.Error(err))
	}
	trees, err := skilltree.LoadDirectory(filepath.Join(contentDir, "skilltrees"))
	if err != nil {
		logger.Fatal("loading skill trees", zap.Error(err))
	}
	items, err := item.LoadDirectory(filepath.Join(contentDir, "items"))
	if err != nil {
		logger.Fatal("loading items", zap.Error(err))
	}
	loot, err := reward.LoadDirectory(filepath.Join(contentDir, "loot"))
	if err != nil {
		logger.Fatal("loading loot tables", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("classes", len(classes.All())),
		zap.Int("skill_trees", len(trees.Trees())),
		zap.Int("items", len(items.All())),
		zap.Int("loot_tables", loot.Len()),
	)

	// Load scripted opponent controllers
	controllers := scripting.NewManager(cfg.Engine.ScriptInstructionLimit, logger)
	defer controllers.Close()
	if err := loadControllers(controllers, filepath.Join(contentDir, "scripts")); err != nil {
		logger.Fatal("loading opponent controllers", zap.Error(err))
	}

	// Build services
	characters := postgres.NewCharacterRepository(pool.DB(), classes, trees, items, logger)
	roster, err := characters.List(ctx)
	if err != nil {
		logger.Fatal("listing characters", zap.Error(err))
	}
	battles := session.NewManager(cfg.Engine.TurnTimeout, controllers, logger)

	logger.Info("arena server ready",
		zap.Int("characters", len(roster)),
		zap.Int("active_battles", battles.BattleCount()),
		zap.Duration("startup", time.Since(start)),
	)

	// Run until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down",
		zap.String("signal", sig.String()),
		zap.Duration("grace", cfg.Server.ShutdownGrace),
		zap.Int("active_battles", battles.BattleCount()),
	)
	logger.Info("arena server stopped", zap.Duration("uptime", time.Since(start)))
}

// loadControllers registers every *.lua file in dir as an opponent
// controller keyed by its base name. A missing directory is not an
// error; servers can run without scripted opponents.
func loadControllers(m *scripting.Manager, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".lua")
		if err := m.Load(id, filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
