package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/worldcore/internal/component"
	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/core/arena"
	"github.com/l1jgo/worldcore/internal/core/event"
	"github.com/l1jgo/worldcore/internal/core/task"
	"github.com/l1jgo/worldcore/internal/data"
	"github.com/l1jgo/worldcore/internal/persist"
	"github.com/l1jgo/worldcore/internal/scripting"
	"github.com/l1jgo/worldcore/internal/system"
	"github.com/l1jgo/worldcore/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string, index int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             worldsim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mworld:\033[0m %s \033[90m(index: %d)\033[0m\n\n", name, index)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main loop ──────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path("config/worldsim.toml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.World.Name, cfg.World.Index)

	// 3. World and managers
	printSection("World")
	pool := task.NewPool(cfg.Tasks.Workers, log)
	w := world.New(world.Config{
		Index:         uint8(cfg.World.Index),
		Name:          cfg.World.Name,
		Debug:         cfg.World.Debug,
		Simulating:    cfg.World.Simulate,
		BlockCapacity: cfg.World.BlockCapacity,
		Allocator:     arena.NewLargeBlockAllocator(0, cfg.World.MemoryLimit),
		Executor:      pool,
	}, log)
	defer w.Close()
	printStat("workers", pool.Workers())

	engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()

	g := cfg.Tasks.DefaultGranularity
	managers := []world.ComponentManager{
		component.NewLifetimeManager(w, g),
		component.NewMoverManager(w, g),
		component.NewRotatorManager(w, g),
		scripting.NewScriptManager(w, engine, component.MoverIntegrate),
	}
	for _, m := range managers {
		if err := w.RegisterManager(m); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
	}
	if err := w.ResolveUpdateFunctions(); err != nil {
		return fmt.Errorf("resolve update functions: %w", err)
	}
	st := w.Stats()
	printStat("component managers", len(managers))
	printStat("update functions", st.Functions)

	event.Subscribe(w.Events(), func(ev event.ObjectDeleted) {
		log.Debug("object deleted", zap.Stringer("id", ev.ID))
	})
	fmt.Println()

	// 4. Snapshot storage
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		autosave *system.AutosaveSystem
		restored bool
	)
	if cfg.Persist.Enabled {
		printSection("Database")
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		repo := persist.NewSnapshotRepo(db, cfg.Persist.Keep)
		if cfg.Persist.RestoreOnBoot {
			restored, err = restore(ctx, w, repo, log)
			if err != nil {
				return err
			}
		}
		autosave = system.NewAutosaveSystem(w, repo, log, cfg.Persist.AutosaveFrames)
		fmt.Println()
	}

	// 5. Scene
	if !restored && cfg.World.Scene != "" {
		printSection("Scene")
		scene, err := data.LoadScene(cfg.World.Scene)
		if err != nil {
			return err
		}
		res, err := data.Instantiate(w, scene, 0)
		if err != nil {
			return fmt.Errorf("instantiate scene: %w", err)
		}
		printStat("objects", res.Objects)
		printStat("components", res.Components)
		fmt.Println()
	}

	// 6. Frame loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.FrameRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("frame loop started (frame: %s)", cfg.World.FrameRate))
	fmt.Println()

	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	statsEvery := int(10 * time.Second / cfg.World.FrameRate)
	frames := 0

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := w.Update(loopCtx, cfg.World.FrameRate); err != nil {
				return err
			}
			if d := time.Since(start); d > cfg.World.FrameRate {
				log.Warn("frame overran", zap.Uint64("frame", w.Frame()), zap.Duration("took", d))
			}
			if autosave != nil {
				autosave.Tick(loopCtx)
			}
			frames++
			if statsEvery > 0 && frames%statsEvery == 0 {
				logStats(log, w)
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			stop()
			if autosave != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err := autosave.Flush(flushCtx)
				cancel()
				if err != nil {
					log.Error("final save failed", zap.Error(err))
				}
			}
			log.Info("world stopped", zap.Uint64("frame", w.Frame()))
			return nil
		}
	}
}

func restore(ctx context.Context, w *world.World, repo *persist.SnapshotRepo, log *zap.Logger) (bool, error) {
	snap, id, err := repo.LoadLatest(ctx, w.Index())
	if errors.Is(err, persist.ErrNoSnapshot) {
		printOK("no snapshot to restore")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := persist.Restore(w, snap); err != nil {
		return false, fmt.Errorf("restore snapshot %d: %w", id, err)
	}
	log.Info("snapshot restored",
		zap.Int64("snapshot", id),
		zap.Uint64("frame", snap.Frame),
		zap.Time("taken_at", snap.TakenAt),
	)
	printStat("restored objects", len(snap.Objects))
	return true, nil
}

func logStats(log *zap.Logger, w *world.World) {
	var st world.Stats
	_ = w.WithRead(func(w *world.World) error {
		st = w.Stats()
		return nil
	})
	fields := []zap.Field{
		zap.Uint64("frame", st.Frame),
		zap.Int("objects", st.Objects),
		zap.Int("static", st.Static.Records),
		zap.Int("dynamic", st.Dynamic.Records),
		zap.Int64("memory", st.Memory.LiveBytes),
	}
	for name, n := range st.Components {
		fields = append(fields, zap.Int("components."+name, n))
	}
	log.Info("world stats", fields...)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
