// Package job sequences one extraction-to-load cycle and exposes the HTTP
// trigger boundary around it.
package job

import (
	"context"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
	"github.com/courtside-labs/crm-sync/pkg/retry"
	"github.com/courtside-labs/crm-sync/pkg/sink"
)

const eventSource = "crm-sync"

type Extractor interface {
	Extract(ctx context.Context) (string, error)
}

type Locator interface {
	List() ([]string, error)
}

type Transformer interface {
	Transform(path string) ([]models.CanonicalCustomerRecord, error)
}

// Publisher matches the kafka producer; nil disables event publishing.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Runner struct {
	extractor   Extractor
	locator     Locator
	transformer Transformer
	sink        sink.Sink
	publisher   Publisher
	policy      retry.Policy
}

func NewRunner(extractor Extractor, locator Locator, transformer Transformer, s sink.Sink, publisher Publisher, policy retry.Policy) *Runner {
	return &Runner{
		extractor:   extractor,
		locator:     locator,
		transformer: transformer,
		sink:        s,
		publisher:   publisher,
		policy:      policy,
	}
}

// Run executes one job: extract once (never retried), then transform and
// load each artifact independently, so one bad file does not block the
// others. Transform and load each get the retry budget.
func (r *Runner) Run(ctx context.Context) models.JobResult {
	result := models.JobResult{Started: time.Now()}
	logger.Log.Info("Job started")
	r.publish(ctx, "job.started", map[string]interface{}{"started": result.Started})

	if _, err := r.extractor.Extract(ctx); err != nil {
		// No artifacts can exist without extraction; the whole job fails.
		result.Status = models.StatusError
		result.Message = err.Error()
		return r.finish(ctx, result)
	}

	files, err := r.locator.List()
	if err != nil {
		result.Status = models.StatusError
		result.Message = err.Error()
		return r.finish(ctx, result)
	}
	if len(files) == 0 {
		result.Status = models.StatusError
		result.Message = "no export artifacts found"
		return r.finish(ctx, result)
	}

	failed := 0
	for _, file := range files {
		fr := r.processFile(ctx, file)
		if fr.Status != models.StatusSuccess {
			failed++
		}
		result.Results = append(result.Results, fr)
	}

	if failed == 0 {
		result.Status = models.StatusSuccess
	} else {
		result.Status = models.StatusError
		result.Message = "one or more artifacts failed"
	}
	return r.finish(ctx, result)
}

func (r *Runner) processFile(ctx context.Context, file string) models.FileResult {
	records, err := retry.DoValue(ctx, "transform", r.policy, func() ([]models.CanonicalCustomerRecord, error) {
		return r.transformer.Transform(file)
	})
	if err != nil {
		return models.FileResult{File: file, Status: models.StatusError, Error: err.Error()}
	}

	batchID, err := retry.DoValue(ctx, "load", r.policy, func() (string, error) {
		return r.sink.Load(ctx, records)
	})
	if err != nil {
		return models.FileResult{File: file, Status: models.StatusError, Error: err.Error()}
	}

	logger.Log.WithFields(map[string]interface{}{
		"file":     file,
		"batch_id": batchID,
	}).Info("Processed export artifact")
	r.publish(ctx, "batch.loaded", map[string]interface{}{
		"file":     file,
		"batch_id": batchID,
		"records":  len(records),
		"sink":     r.sink.Name(),
	})
	return models.FileResult{File: file, BatchID: batchID, Status: models.StatusSuccess}
}

func (r *Runner) finish(ctx context.Context, result models.JobResult) models.JobResult {
	result.Finished = time.Now()
	logger.Log.WithFields(map[string]interface{}{
		"status":   result.Status,
		"files":    len(result.Results),
		"duration": result.Finished.Sub(result.Started).String(),
	}).Info("Job finished")

	r.publish(ctx, "job.completed", map[string]interface{}{
		"status":  result.Status,
		"message": result.Message,
		"results": result.Results,
	})
	return result
}

// publish is best-effort; a broken event bus never fails a job.
func (r *Runner) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish job event")
	}
}
