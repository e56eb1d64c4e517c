package usecase

import (
	"context"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	mid "TradePulse/internal/middleware"
)

// TickIngestor pulls ticks from the upstream market stream and feeds
// them through the ingest pipeline onto the market data bus.
type TickIngestor struct {
	stream  drepo.MarketStream
	pipe    *mid.IngestPipeline
	metrics drepo.Metrics
}

// NewTickIngestor creates a new TickIngestor instance.
func NewTickIngestor(stream drepo.MarketStream, pipe *mid.IngestPipeline, metrics drepo.Metrics) *TickIngestor {
	return &TickIngestor{stream: stream, pipe: pipe, metrics: metrics}
}

// IsConnected returns true if the market stream is connected.
func (c *TickIngestor) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickIngestor) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickIngestor) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					return
				}
				tickCh, errCh = c.stream.Read(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			_ = c.pipe.Process(ctx, t)
			c.metrics.RecordLastPrice(t.Symbol, t.LastPrice)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickIngestor) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
