package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"floortrack/internal/infra/persistence/memory"
	"floortrack/pkg/domain"
)

const testDate = "2025-03-10"

func listOEE(t *testing.T, store domain.PersistentStore) []domain.OEECalculation {
	t.Helper()
	var out []domain.OEECalculation
	err := store.View(context.Background(), func(view domain.TransactionView) error {
		out = view.ListOEECalculations()
		return nil
	})
	require.NoError(t, err)
	return out
}

func seedProductionDay(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateEmployee(domain.Employee{ID: "emp-day", Name: "Dana", Shift: domain.ShiftDay, Active: true}); err != nil {
			return err
		}
		if _, err := tx.CreateEmployee(domain.Employee{ID: "emp-night", Name: "Noa", Shift: domain.ShiftNight, Active: true}); err != nil {
			return err
		}
		completions := []domain.Completion{
			{
				ID: "c-day-1", EmployeeID: "emp-day", BatchID: "batch-1",
				Quantity: 100, GoodUnits: 95, Efficiency: 110,
				StartTime: day, EndTime: day.Add(4 * time.Hour),
				Duration: 4 * time.Hour.Milliseconds(),
			},
			{
				ID: "c-day-2", EmployeeID: "emp-day", BatchID: "batch-1",
				Quantity: 100, GoodUnits: 100, Efficiency: 90,
				StartTime: day.Add(4 * time.Hour), EndTime: day.Add(8 * time.Hour),
				Duration: 4 * time.Hour.Milliseconds(),
			},
			{
				ID: "c-night", EmployeeID: "emp-night", BatchID: "batch-2",
				Quantity: 50, GoodUnits: 40, Efficiency: 80,
				StartTime: day.Add(14 * time.Hour), EndTime: day.Add(16 * time.Hour),
				Duration: 2 * time.Hour.Milliseconds(),
			},
			{
				ID: "c-other-day", EmployeeID: "emp-day", BatchID: "batch-1",
				Quantity: 999, GoodUnits: 999, Efficiency: 100,
				StartTime: day.AddDate(0, 0, 1),
				Duration:  time.Hour.Milliseconds(),
			},
		}
		for _, c := range completions {
			if _, err := tx.CreateCompletion(c); err != nil {
				return err
			}
		}
		if _, err := tx.CreateSession(domain.Session{ID: "sess-1", EmployeeID: "emp-day", StartTime: day}); err != nil {
			return err
		}
		_, err := tx.CreateShiftHandoff(domain.ShiftHandoff{
			ID: "handoff-1", FromShift: domain.ShiftDay, ToShift: domain.ShiftNight, Timestamp: day.Add(8 * time.Hour),
		})
		return err
	})
	require.NoError(t, err)
	return store
}

func TestBuildArchiveAggregatesDay(t *testing.T) {
	store := seedProductionDay(t)
	archiver := NewArchiver(store, nil)

	archive, err := archiver.BuildArchive(context.Background(), testDate)
	require.NoError(t, err)

	require.Equal(t, testDate, archive.Date)
	require.Equal(t, []string{"c-day-1", "c-day-2", "c-night"}, archive.CompletionIDs)
	require.Equal(t, []string{"sess-1"}, archive.SessionIDs)
	require.Equal(t, []string{"batch-1", "batch-2"}, archive.BatchIDs)
	require.Equal(t, []string{"handoff-1"}, archive.ShiftHandoffIDs)
	require.Equal(t, 250, archive.TotalUnits)
	require.InDelta(t, 10.0, archive.TotalHours, 1e-9)
	require.InDelta(t, (110.0+90.0+80.0)/3, archive.AverageEfficiency, 1e-9)
	require.InDelta(t, 235.0/250.0*100, archive.FPY, 1e-9)
	require.False(t, archive.MigratedFromLegacy)
}

func TestBuildArchiveComputesShiftOEE(t *testing.T) {
	store := seedProductionDay(t)
	archiver := NewArchiver(store, nil)

	_, err := archiver.BuildArchive(context.Background(), testDate)
	require.NoError(t, err)

	calcs := listOEE(t, store)
	require.Len(t, calcs, 2, "one row per shift that produced")
	byShift := map[domain.Shift]domain.OEECalculation{}
	for _, calc := range calcs {
		byShift[calc.Shift] = calc
	}

	day := byShift[domain.ShiftDay]
	require.Equal(t, testDate, day.Date)
	require.InDelta(t, 480.0, day.RunTime, 1e-9, "two 4h completions fill the planned window")
	require.InDelta(t, 0.0, day.Downtime, 1e-9)
	require.InDelta(t, 100.0, day.Availability, 1e-9)
	require.InDelta(t, 100.0, day.Performance, 1e-9, "mean of 110 and 90")
	require.InDelta(t, 195.0/200.0*100, day.Quality, 1e-9)
	require.InDelta(t, day.Availability*day.Performance*day.Quality/10000, day.OEE, 1e-9)
	require.Equal(t, []string{"batch-1"}, day.BatchIDs)

	night := byShift[domain.ShiftNight]
	require.InDelta(t, 120.0, night.RunTime, 1e-9)
	require.InDelta(t, 360.0, night.Downtime, 1e-9)
	require.InDelta(t, 25.0, night.Availability, 1e-9)
	require.InDelta(t, 80.0, night.Performance, 1e-9)
	require.InDelta(t, 80.0, night.Quality, 1e-9)
}

func TestBuildArchiveIdempotent(t *testing.T) {
	store := seedProductionDay(t)
	archiver := NewArchiver(store, nil)
	ctx := context.Background()

	first, err := archiver.BuildArchive(ctx, testDate)
	require.NoError(t, err)
	second, err := archiver.BuildArchive(ctx, testDate)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.Len(t, store.ListDailyArchives(), 1)
	require.Len(t, listOEE(t, store), 2, "re-run does not duplicate shift rows")
}

func TestBuildArchiveEmptyDay(t *testing.T) {
	store := memory.NewStore(nil)
	archiver := NewArchiver(store, nil)

	archive, err := archiver.BuildArchive(context.Background(), "2025-01-01")
	require.NoError(t, err)
	require.Zero(t, archive.TotalUnits)
	require.Equal(t, 100.0, archive.FPY, "nothing ran, nothing failed")
	require.Zero(t, archive.OEE)
	require.Empty(t, listOEE(t, store))
}

func TestBuildArchiveRejectsBadDate(t *testing.T) {
	archiver := NewArchiver(memory.NewStore(nil), nil)

	_, err := archiver.BuildArchive(context.Background(), "03/10/2025")
	require.Error(t, err)
	_, err = archiver.BuildArchive(context.Background(), "")
	require.Error(t, err)
}
