package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/report"
)

// ReportQueue carries report.Job messages.
const ReportQueue = "report_queue"

// EnqueueReport publishes job to ReportQueue.
func EnqueueReport(ch Channel, job report.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal report job: %w", err)
	}
	if err := PublishFIFO(ch, ReportQueue, data); err != nil {
		return fmt.Errorf("failed to publish report job: %w", err)
	}
	logger.Debug("[Queue] Report job queued", "report_id", job.ReportID)
	return nil
}

// ReportGenerator is implemented by *report.Generator.
type ReportGenerator interface {
	Generate(ctx context.Context, job report.Job) (*report.Result, error)
}

// ProcessReportMessage generates the report described by body. A malformed
// message is an error like any other and ends up in the DLQ after retries.
func ProcessReportMessage(ctx context.Context, gen ReportGenerator, body []byte) error {
	var job report.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("failed to decode report job: %w", err)
	}
	if job.ReportID == "" {
		return fmt.Errorf("report job without report_id")
	}

	res, err := gen.Generate(ctx, job)
	if err != nil {
		return fmt.Errorf("report %s: %w", job.ReportID, err)
	}
	logger.Info("[Queue] Report ready", "report_id", res.ReportID, "rows", res.RowsCount)
	return nil
}
