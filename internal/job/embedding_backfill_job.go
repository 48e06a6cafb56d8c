package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultBackfillBatch = 50

type backfiller interface {
	Backfill(ctx context.Context, batch int) (int, error)
}

// EmbeddingBackfillJob embeds notes that carry text but have no stored
// vectors, e.g. after a provider outage.
type EmbeddingBackfillJob struct {
	notes backfiller
	batch int
}

func NewEmbeddingBackfillJob(notes backfiller, batch int) *EmbeddingBackfillJob {
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	return &EmbeddingBackfillJob{notes: notes, batch: batch}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	if j.notes == nil {
		return nil
	}
	done, err := j.notes.Backfill(ctx, j.batch)
	if done > 0 {
		logutil.GetLogger(ctx).Info("backfilled note embeddings", zap.Int("count", done))
	}
	return err
}
