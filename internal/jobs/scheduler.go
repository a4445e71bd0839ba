package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

const (
	ExpireOTPsJob    = "Expire Stale OTPs"
	StalePendingJob  = "Report Stale Pending Appointments"
	defaultStaleAge  = 15 * time.Minute
	defaultSweepTick = time.Hour
)

// OTPSweeper retires lapsed OTP challenges.
type OTPSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// PendingLister finds bookings that never left pending.
type PendingLister interface {
	StalePending(ctx context.Context, age time.Duration) ([]*models.Appointment, error)
}

type Options struct {
	SweepInterval  time.Duration
	ReportInterval time.Duration
	StaleAfter     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepTick
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = defaultStaleAge
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = o.StaleAfter
	}
	return o
}

// MaintenanceJobs runs the periodic OTP sweep and the pending booking
// report on a gocron scheduler.
type MaintenanceJobs struct {
	scheduler    gocron.Scheduler
	otp          OTPSweeper
	appointments PendingLister
	opts         Options
	log          *zerolog.Logger
}

// NewMaintenanceJobs creates the scheduler and registers both jobs. Nothing
// runs until Start.
func NewMaintenanceJobs(ctx context.Context, otp OTPSweeper, appointments PendingLister, opts Options) (*MaintenanceJobs, error) {
	zlog := zerolog.Ctx(ctx)

	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithEventListeners(
				gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
					zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job started")
				}),
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					zlog.Err(err).Str("job_name", jobName).Str("job_id", jobID.String()).Msg("error while running the job")
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					zlog.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("job panicked")
				}),
			),
		),
		gocron.WithLogger(logger{l: zlog}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	j := &MaintenanceJobs{
		scheduler:    scheduler,
		otp:          otp,
		appointments: appointments,
		opts:         opts.withDefaults(),
		log:          zlog,
	}
	if err := j.register(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return j, nil
}

func (j *MaintenanceJobs) register() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.opts.SweepInterval),
		gocron.NewTask(j.SweepExpiredOTPs),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(ExpireOTPsJob),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", ExpireOTPsJob, err)
	}

	_, err = j.scheduler.NewJob(
		gocron.DurationJob(j.opts.ReportInterval),
		gocron.NewTask(j.ReportStalePending),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(StalePendingJob),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", StalePendingJob, err)
	}
	return nil
}

// Start begins running the registered jobs
func (j *MaintenanceJobs) Start() {
	j.scheduler.Start()
	j.log.Info().Dur("sweep_interval", j.opts.SweepInterval).Dur("report_interval", j.opts.ReportInterval).Msg("maintenance jobs started")
}

// Stop waits for running jobs and shuts the scheduler down.
func (j *MaintenanceJobs) Stop() error {
	j.log.Info().Msg("stopping maintenance jobs")
	return j.scheduler.Shutdown()
}

// Names lists the registered job names.
func (j *MaintenanceJobs) Names() []string {
	var names []string
	for _, job := range j.scheduler.Jobs() {
		names = append(names, job.Name())
	}
	return names
}

// SweepExpiredOTPs marks active challenges past their expiry as expired.
func (j *MaintenanceJobs) SweepExpiredOTPs(ctx context.Context) error {
	n, err := j.otp.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire stale otps: %w", err)
	}
	if n > 0 {
		j.log.Info().Int64("expired", n).Msg("stale otps expired")
	}
	return nil
}

// ReportStalePending logs every booking still pending after StaleAfter.
// These were accepted or rejected remotely without the local row catching up.
func (j *MaintenanceJobs) ReportStalePending(ctx context.Context) error {
	stale, err := j.appointments.StalePending(ctx, j.opts.StaleAfter)
	if err != nil {
		return fmt.Errorf("list stale pending appointments: %w", err)
	}
	for _, a := range stale {
		j.log.Warn().
			Uint("appointment_id", a.ID).
			Str("account_number", a.AccountNumber).
			Str("reference", a.ReferenceIdentifier).
			Time("created_at", a.CreatedAt).
			Msg("appointment stuck in pending")
	}
	return nil
}

type logger struct {
	l *zerolog.Logger
}

func (l logger) Debug(msg string, args ...any) {
	l.l.Debug().Fields(args).Msg(msg)
}
func (l logger) Error(msg string, args ...any) {
	l.l.Error().Fields(args).Msg(msg)
}
func (l logger) Info(msg string, args ...any) {
	l.l.Info().Fields(args).Msg(msg)
}
func (l logger) Warn(msg string, args ...any) {
	l.l.Warn().Fields(args).Msg(msg)
}
