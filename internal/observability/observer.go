package observability

import (
	"context"
	"log/slog"

	"github.com/apresai/paperq/internal/segment"
)

// SlogObserver reports segmentation events as debug logs. Missing sections
// and exhausted cascades are logged at warn since they usually mean a paper
// layout the parsers do not know.
func SlogObserver(ctx context.Context, logger *slog.Logger) segment.Observer {
	return func(e segment.Event) {
		level := slog.LevelDebug
		if e.Kind == segment.SectionMissing || e.Kind == segment.StrategyExhausted {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("event", string(e.Kind)),
			slog.String("group", e.Group.Label()),
		}
		if e.Strategy != "" {
			attrs = append(attrs, slog.String("strategy", e.Strategy))
		}
		if e.Kind == segment.GroupParsed {
			attrs = append(attrs, slog.Int("count", e.Count))
		}
		if e.Chars > 0 {
			attrs = append(attrs, slog.Int("chars", e.Chars))
		}
		if e.Detail != "" {
			attrs = append(attrs, slog.String("detail", e.Detail))
		}
		logger.LogAttrs(ctx, level, "segment", attrs...)
	}
}
