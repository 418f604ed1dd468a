// Package archive rolls completed production activity into end-of-day
// summary rows: one DailyArchive per calendar date plus an OEECalculation
// per shift that produced anything that day.
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"floortrack/pkg/domain"

	"go.uber.org/zap"
)

// plannedShiftMinutes is the default planned production time per shift.
const plannedShiftMinutes = 480

// Archiver builds daily archives from the store.
type Archiver struct {
	store domain.PersistentStore
	log   *zap.Logger
	nowFn func() time.Time
}

// NewArchiver constructs an archiver. A nil logger means no logging.
func NewArchiver(store domain.PersistentStore, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archiver{
		store: store,
		log:   log,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// BuildArchive aggregates one calendar date (YYYY-MM-DD). Building a date
// that already has an archive returns the existing row unchanged, so the
// scheduled job is safe to re-run.
func (a *Archiver) BuildArchive(ctx context.Context, date string) (domain.DailyArchive, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.DailyArchive{}, fmt.Errorf("invalid archive date %q: %w", date, err)
	}
	for _, existing := range a.store.ListDailyArchives() {
		if existing.Date == date {
			return existing, nil
		}
	}

	var archive domain.DailyArchive
	_, err := a.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		snap := tx.Snapshot()
		day := a.collectDay(snap, date)

		for _, shift := range day.shifts() {
			if _, err := tx.CreateOEECalculation(day.oeeFor(date, shift, a.nowFn())); err != nil {
				return err
			}
		}

		created, err := tx.CreateDailyArchive(day.archive(date, a.nowFn()))
		if err != nil {
			return err
		}
		archive = created
		return nil
	})
	if err != nil {
		return domain.DailyArchive{}, err
	}
	a.log.Info("daily archive built",
		zap.String("date", date),
		zap.Int("completions", len(archive.CompletionIDs)),
		zap.Int("totalUnits", archive.TotalUnits))
	return archive, nil
}

// dayData is the working set of one calendar date.
type dayData struct {
	completions []domain.Completion
	sessions    []domain.Session
	handoffs    []domain.ShiftHandoff
	shiftOf     map[string]domain.Shift // employee ID -> shift
}

func (a *Archiver) collectDay(snap domain.TransactionView, date string) dayData {
	var day dayData
	day.shiftOf = make(map[string]domain.Shift)
	for _, e := range snap.ListEmployees() {
		day.shiftOf[e.ID] = e.Shift
	}
	for _, c := range snap.ListCompletions() {
		if c.StartTime.Format("2006-01-02") == date {
			day.completions = append(day.completions, c)
		}
	}
	for _, s := range snap.ListSessions() {
		if s.StartTime.Format("2006-01-02") == date {
			day.sessions = append(day.sessions, s)
		}
	}
	for _, h := range snap.ListShiftHandoffs() {
		if h.Timestamp.Format("2006-01-02") == date {
			day.handoffs = append(day.handoffs, h)
		}
	}
	return day
}

// shifts lists the shifts that produced completions on this date, in a
// stable order.
func (d dayData) shifts() []domain.Shift {
	seen := make(map[domain.Shift]bool)
	for _, c := range d.completions {
		seen[d.shiftFor(c)] = true
	}
	var out []domain.Shift
	for _, s := range []domain.Shift{domain.ShiftDay, domain.ShiftSwing, domain.ShiftNight} {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}

func (d dayData) shiftFor(c domain.Completion) domain.Shift {
	if s, ok := d.shiftOf[c.EmployeeID]; ok {
		return s
	}
	return domain.ShiftDay
}

// oeeFor computes availability x performance x quality for one shift.
// Run time comes from summed completion durations against the planned
// shift window; performance is the mean recorded efficiency; quality is
// first-pass yield.
func (d dayData) oeeFor(date string, shift domain.Shift, now time.Time) domain.OEECalculation {
	calc := domain.OEECalculation{
		Date:                  date,
		Shift:                 shift,
		PlannedProductionTime: plannedShiftMinutes,
		Calculated:            now,
		BatchIDs:              []string{},
	}
	var runMillis int64
	var effSum float64
	var count int
	batches := make(map[string]bool)
	for _, c := range d.completions {
		if d.shiftFor(c) != shift {
			continue
		}
		count++
		runMillis += c.Duration
		effSum += c.Efficiency
		calc.TotalUnitsProduced += c.Quantity
		calc.TotalUnits += c.Quantity
		calc.GoodUnits += c.GoodUnits
		if c.BatchID != "" && !batches[c.BatchID] {
			batches[c.BatchID] = true
			calc.BatchIDs = append(calc.BatchIDs, c.BatchID)
		}
	}
	sort.Strings(calc.BatchIDs)

	calc.RunTime = float64(runMillis) / float64(time.Minute.Milliseconds())
	calc.ActualProductionTime = calc.RunTime
	if calc.PlannedProductionTime > calc.RunTime {
		calc.Downtime = calc.PlannedProductionTime - calc.RunTime
	}
	calc.Availability = domain.ClampPercent(calc.RunTime / calc.PlannedProductionTime * 100)
	if count > 0 {
		calc.Performance = domain.ClampPercent(effSum / float64(count))
	}
	calc.Quality = fpyOf(calc.GoodUnits, calc.TotalUnits)
	calc.OEE = calc.Availability * calc.Performance * calc.Quality / 10000
	return calc
}

func (d dayData) archive(date string, now time.Time) domain.DailyArchive {
	archive := domain.DailyArchive{
		Date:            date,
		Timestamp:       now,
		CompletionIDs:   []string{},
		SessionIDs:      []string{},
		BatchIDs:        []string{},
		ShiftHandoffIDs: []string{},
		FPY:             100,
	}
	var effSum float64
	var goodUnits int
	batches := make(map[string]bool)
	for _, c := range d.completions {
		archive.CompletionIDs = append(archive.CompletionIDs, c.ID)
		archive.TotalUnits += c.Quantity
		archive.TotalHours += float64(c.Duration) / float64(time.Hour.Milliseconds())
		effSum += c.Efficiency
		goodUnits += c.GoodUnits
		if c.BatchID != "" && !batches[c.BatchID] {
			batches[c.BatchID] = true
			archive.BatchIDs = append(archive.BatchIDs, c.BatchID)
		}
	}
	if n := len(d.completions); n > 0 {
		archive.AverageEfficiency = effSum / float64(n)
	}
	archive.FPY = fpyOf(goodUnits, archive.TotalUnits)
	for _, s := range d.sessions {
		archive.SessionIDs = append(archive.SessionIDs, s.ID)
	}
	for _, h := range d.handoffs {
		archive.ShiftHandoffIDs = append(archive.ShiftHandoffIDs, h.ID)
	}
	sort.Strings(archive.CompletionIDs)
	sort.Strings(archive.SessionIDs)
	sort.Strings(archive.BatchIDs)
	sort.Strings(archive.ShiftHandoffIDs)

	var oeeSum float64
	shifts := d.shifts()
	for _, shift := range shifts {
		oeeSum += d.oeeFor(date, shift, now).OEE
	}
	if len(shifts) > 0 {
		archive.OEE = oeeSum / float64(len(shifts))
	}
	return archive
}

// fpyOf is first-pass yield: good over total, 100 when nothing ran.
func fpyOf(good, total int) float64 {
	if total <= 0 {
		return 100
	}
	return domain.ClampPercent(float64(good) / float64(total) * 100)
}
