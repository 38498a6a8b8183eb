package insights

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

// Completer issues chat completions. The routed llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.CompleteRequest) (string, error)
}

// Processor runs the six-layer cascade. A layer runs for a meeting only when
// its predecessor's flag is set; a failure leaves the layer incomplete for
// the next pass without blocking other meetings.
type Processor struct {
	db          *database.DB
	llm         Completer
	parallelism int
	log         zerolog.Logger
}

// NewProcessor wires the cascade.
func NewProcessor(db *database.DB, completer Completer, parallelism int, log zerolog.Logger) *Processor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Processor{
		db:          db,
		llm:         completer,
		parallelism: parallelism,
		log:         log.With().Str("component", "insights").Logger(),
	}
}

// CascadeStats summarizes one full cascade pass.
type CascadeStats struct {
	PerLayer  [6]LayerStats
	Processed int
	Failed    int
}

// LayerStats is one layer's share of a pass.
type LayerStats struct {
	Eligible  int
	Completed int
	Failed    int
}

type layerFunc func(*Processor, context.Context, *database.MeetingRow) error

var layerFuncs = [6]layerFunc{
	(*Processor).runLayer1,
	(*Processor).runLayer2,
	(*Processor).runLayer3,
	(*Processor).runLayer4,
	(*Processor).runLayer5,
	(*Processor).runLayer6,
}

// ProcessPending walks layers 1..6 in order, each over its currently eligible
// meetings. A meeting completing layer N within this pass becomes eligible
// for layer N+1 in the same pass.
func (p *Processor) ProcessPending(ctx context.Context, perLayerLimit int) (*CascadeStats, error) {
	stats := &CascadeStats{}

	for layer := 1; layer <= 6; layer++ {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		meetings, err := p.db.PendingMeetingsForLayer(ctx, layer, perLayerLimit)
		if err != nil {
			return stats, fmt.Errorf("select layer %d: %w", layer, err)
		}
		ls := &stats.PerLayer[layer-1]
		ls.Eligible = len(meetings)
		if len(meetings) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.parallelism)
		results := make([]error, len(meetings))

		for i := range meetings {
			i := i
			m := &meetings[i]
			g.Go(func() error {
				results[i] = p.runLayer(gctx, layer, m)
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range results {
			if err != nil {
				ls.Failed++
				stats.Failed++
				p.log.Warn().Err(err).
					Int("layer", layer).
					Int64("meeting_id", meetings[i].ID).
					Msg("layer failed, meeting stays incomplete")
			} else {
				ls.Completed++
				stats.Processed++
			}
		}
	}

	p.log.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Msg("cascade pass complete")
	return stats, nil
}

func (p *Processor) runLayer(ctx context.Context, layer int, m *database.MeetingRow) error {
	if layer < 1 || layer > 6 {
		return fmt.Errorf("layer out of range: %d", layer)
	}
	return layerFuncs[layer-1](p, ctx, m)
}
