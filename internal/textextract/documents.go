package textextract

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"docintake/internal/model"
)

// DocumentText pairs a discovered document with its extracted text. Err is
// set when extraction failed; other documents are unaffected.
type DocumentText struct {
	Document model.DiscoveredDocument
	Text     string
	Err      error
}

// ExtractAll runs ex over docs with at most workers extractions in flight and
// returns results in input order. Only context cancellation aborts the batch.
func ExtractAll(ctx context.Context, ex model.TextExtractor, docs []model.DiscoveredDocument, workers int) ([]DocumentText, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]DocumentText, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			text, err := ex.ExtractText(gctx, doc.Path)
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			out[i] = DocumentText{Document: doc, Text: text, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
