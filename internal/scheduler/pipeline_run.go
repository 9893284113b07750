package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/pipeline"
)

// PipelineRunJob triggers a full pipeline run on schedule, using the
// wall clock as the reference time. Only one run executes at a time;
// an overlapping trigger is skipped, not queued.
type PipelineRunJob struct {
	log     zerolog.Logger
	runner  *pipeline.Runner
	running sync.Mutex
}

// NewPipelineRunJob creates a new scheduled pipeline run job
func NewPipelineRunJob(runner *pipeline.Runner, log zerolog.Logger) *PipelineRunJob {
	return &PipelineRunJob{
		log:    log.With().Str("job", "pipeline_run").Logger(),
		runner: runner,
	}
}

// Name returns the job name
func (j *PipelineRunJob) Name() string {
	return "pipeline_run"
}

// Run executes a pipeline run
func (j *PipelineRunJob) Run() error {
	if !j.running.TryLock() {
		j.log.Warn().Msg("Pipeline run already in progress, skipping trigger")
		return nil
	}
	defer j.running.Unlock()

	run, err := j.runner.Run(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}

	j.log.Info().Str("run_id", run.ID).Msg("Scheduled pipeline run finished")
	return nil
}
