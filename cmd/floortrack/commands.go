package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"floortrack/internal/archive"
	"floortrack/internal/blob"
	"floortrack/internal/config"
	"floortrack/internal/core"
	"floortrack/internal/ident"
	"floortrack/internal/infra/persistence/memory"
	"floortrack/internal/infra/persistence/postgres"
	"floortrack/internal/infra/persistence/sqlite"
	"floortrack/internal/migration"
	"floortrack/pkg/domain"
)

var (
	reportDate  string
	archiveDate string
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import legacy tracker data (runs at most once)",
		RunE:  runMigrate,
	}
	rootCmd.AddCommand(migrateCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and sync status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show the daily production report",
		RunE:  runReport,
	}
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(reportCmd)

	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Build the end-of-day archive for a date",
		RunE:  runArchive,
	}
	archiveCmd.Flags().StringVar(&archiveDate, "date", "", "archive date YYYY-MM-DD (default yesterday)")
	rootCmd.AddCommand(archiveCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "List outbox entries awaiting delivery",
		RunE:  runSync,
	}
	rootCmd.AddCommand(syncCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker daemon with the scheduled archive job",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(runCmd)
}

// env bundles the wired process dependencies behind one setup path.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	clock *ident.Service
	store domain.PersistentStore
	close func()
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}
	clock, err := ident.NewService(ident.NewFileBackend(cfg.Ident.Path), log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	// From here on every failure path releases what is already open.
	e := &env{cfg: cfg, log: log, clock: clock, close: func() { _ = log.Sync() }}
	switch core.StorageDriver(cfg.Storage.Driver) {
	case core.StorageMemory:
		e.store = memory.NewStore(clock)
	case core.StorageSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, clock)
		if err != nil {
			e.close()
			return nil, err
		}
		e.store = store
		e.close = func() { _ = store.Close(); _ = log.Sync() }
	case core.StoragePostgres:
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, clock)
		if err != nil {
			e.close()
			return nil, err
		}
		e.store = store
		e.close = func() { _ = store.Close(); _ = log.Sync() }
	default:
		e.close()
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return e, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	opts := []migration.Option{migration.WithLogger(e.log)}
	if e.cfg.Blob.Driver != "" {
		blobs, err := blob.OpenDriver(cmd.Context(), blob.Driver(e.cfg.Blob.Driver), e.cfg.Blob.FSRoot)
		if err != nil {
			e.log.Warn("blob store unavailable, backup stays in the legacy namespace", zap.Error(err))
		} else {
			opts = append(opts, migration.WithBlobStore(blobs))
		}
	}
	engine := migration.NewEngine(e.store, migration.NewFileKV(e.cfg.Legacy.KVPath), e.clock, opts...)
	status, err := engine.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("migration %s\n", map[bool]string{true: "succeeded", false: "failed"}[status.Success])
	fmt.Printf("  records migrated: %d\n", status.RecordsMigrated)
	fmt.Printf("  backup created:   %v (%s)\n", status.BackupCreated, status.BackupPath)
	for _, msg := range status.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
	if status.Notes != "" {
		fmt.Printf("  notes: %s\n", status.Notes)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	queries := core.NewQueryService(e.store)
	active, err := queries.ActiveSessions(cmd.Context())
	if err != nil {
		return err
	}
	pending, err := queries.PendingSyncItems(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "device\t%s\n", e.clock.DeviceID())
	fmt.Fprintf(w, "storage\t%s\n", e.cfg.Storage.Driver)
	fmt.Fprintf(w, "employees\t%d\n", len(e.store.ListEmployees()))
	fmt.Fprintf(w, "products\t%d\n", len(e.store.ListProducts()))
	fmt.Fprintf(w, "tasks\t%d\n", len(e.store.ListTasks()))
	fmt.Fprintf(w, "batches\t%d\n", len(e.store.ListBatches()))
	fmt.Fprintf(w, "active sessions\t%d\n", len(active))
	fmt.Fprintf(w, "completions\t%d\n", len(e.store.ListCompletions()))
	fmt.Fprintf(w, "pending sync items\t%d\n", len(pending))
	if statuses := e.store.ListMigrationStatuses(); len(statuses) > 0 {
		last := statuses[len(statuses)-1]
		fmt.Fprintf(w, "last migration\t%s (success=%v)\n", last.MigrationDate.Format(time.RFC3339), last.Success)
	} else {
		fmt.Fprintf(w, "last migration\tnever\n")
	}
	return w.Flush()
}

func runReport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	date := reportDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)

	queries := core.NewQueryService(e.store)
	completions, err := queries.CompletionsInRange(cmd.Context(), from, to)
	if err != nil {
		return err
	}

	fmt.Printf("production report %s\n\n", date)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMPLOYEE\tTASK\tBATCH\tQTY\tGOOD\tUPH\tEFF%")
	var totalUnits, totalGood int
	for _, c := range completions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.1f\t%.0f\n",
			nameOf(e.store.GetEmployee(c.EmployeeID)),
			taskNameOf(e.store, c.TaskID),
			batchNameOf(e.store, c.BatchID),
			c.Quantity, c.GoodUnits, c.UPH, c.Efficiency)
		totalUnits += c.Quantity
		totalGood += c.GoodUnits
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d completions, %d units (%d good)\n", len(completions), totalUnits, totalGood)
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	date := archiveDate
	if date == "" {
		date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}
	archiver := archive.NewArchiver(e.store, e.log)
	built, err := archiver.BuildArchive(cmd.Context(), date)
	if err != nil {
		return err
	}
	fmt.Printf("archive %s: %d completions, %d units, OEE %.1f%%, FPY %.1f%%\n",
		built.Date, len(built.CompletionIDs), built.TotalUnits, built.OEE, built.FPY)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if !e.cfg.Archive.Enabled {
		return fmt.Errorf("archive job disabled in config, nothing to run")
	}
	archiver := archive.NewArchiver(e.store, e.log)
	scheduler, err := archive.NewScheduler(archiver, e.cfg.Archive.Schedule, e.log)
	if err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", e.cfg.Archive.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	e.log.Info("daemon started",
		zap.String("device", e.clock.DeviceID()),
		zap.String("archiveSchedule", e.cfg.Archive.Schedule))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-cmd.Context().Done():
	}
	e.log.Info("daemon stopping")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	queries := core.NewQueryService(e.store)
	pending, err := queries.PendingSyncItems(cmd.Context())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("sync queue empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAMPORT\tENTITY\tOP\tID\tSTATUS\tATTEMPTS")
	for _, item := range pending {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			item.LamportTimestamp, item.EntityType, item.Operation, item.EntityID, item.Status, item.Attempts)
	}
	return w.Flush()
}

func nameOf(e domain.Employee, ok bool) string {
	if !ok {
		return "?"
	}
	return e.Name
}

func taskNameOf(store domain.PersistentStore, id string) string {
	if t, ok := store.GetTask(id); ok {
		return t.Name
	}
	return "?"
}

func batchNameOf(store domain.PersistentStore, id string) string {
	if b, ok := store.GetBatch(id); ok {
		return b.Name
	}
	return "-"
}
