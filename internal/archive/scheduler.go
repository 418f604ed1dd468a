package archive

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the archiver on a cron schedule. The job archives the
// previous calendar day, so schedules are expected to fire shortly after
// midnight.
type Scheduler struct {
	archiver *Archiver
	cron     *cron.Cron
	log      *zap.Logger
}

// NewScheduler wires the archiver to a cron expression in standard
// five-field format.
func NewScheduler(archiver *Archiver, schedule string, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		archiver: archiver,
		cron:     cron.New(),
		log:      log,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	date := s.archiver.nowFn().AddDate(0, 0, -1).Format("2006-01-02")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.archiver.BuildArchive(ctx, date); err != nil {
		s.log.Warn("scheduled archive failed", zap.String("date", date), zap.Error(err))
	}
}

// Start begins scheduled execution.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
