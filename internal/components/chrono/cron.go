package chrono

import (
	"context"
	"fmt"
	"time"

	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/timezone"

	"github.com/robfig/cron/v3"
)

const (
	report_scheduler_job     = "scheduler.job"
	report_scheduler_seconds = "scheduler.job-seconds"
)

// Scheduler runs named jobs on cron specs evaluated in Europe/London. A job
// that is still running when its next tick arrives skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	time   API
	tel    telemetry.API
}

// NewScheduler starts an empty scheduler, call Stop to release it.
func NewScheduler(time API, tel telemetry.API) *Scheduler {
	tel = telemetry.NewScopedAPI("chrono", tel)
	logger := cronLogger{tel: tel}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(timezone.Location),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
		time:   time,
		tel:    tel,
	}
}

// Schedule registers `job` under `spec` (standard 5 field syntax or
// descriptors like "@hourly"). The context given to `job` is cancelled by
// Stop.
func (s *Scheduler) Schedule(name, spec string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := s.time.Now()
		err := job(s.ctx)
		if err != nil {
			s.tel.ReportBroken(report_scheduler_job, name, err)
		}
		s.tel.ReportCount(report_scheduler_seconds, int64(s.time.Now().Sub(start).Seconds()))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.tel.ReportDebug("scheduled job", name, spec)
	return nil
}

// Next returns when the earliest registered job runs next, the zero time
// when nothing is registered.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger adapts telemetry.API to cron.Logger.
type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("cron", append([]any{msg, err}, keysAndValues...)...)
}
