package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"scout/internal/metrics"
	"scout/internal/model"
)

// streamResearch runs the research flow inside a fasthttp body stream
// writer, forwarding every orchestrator event as one SSE frame. The
// run is cancelled as soon as a write fails, which is how a closed
// client connection is observed.
func streamResearch(c *fiber.Ctx, q model.Query, run researchRunner, logger *slog.Logger) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	reqID := c.Locals("request_id")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		emit := func(e model.Event) {
			if ctx.Err() != nil {
				return
			}
			if err := writeEvent(w, e); err != nil {
				logger.Debug("stream write failed, cancelling research", "request_id", reqID, "error", err)
				cancel()
			}
		}

		out, err := run(ctx, q, emit)
		if err != nil {
			// The terminal error event was already emitted by the
			// orchestrator before it returned.
			logger.Error("streaming research failed", "request_id", reqID, "error", err)
			return
		}
		metrics.RecordResearch(string(out.Mode), true)
		logger.Info("streaming research complete",
			"request_id", reqID,
			"mode", out.Mode,
			"iterations", out.Iterations,
			"results", out.TotalResults,
		)
	}))

	return nil
}

// writeEvent serializes one lifecycle event as an SSE frame and
// flushes it immediately so the client sees phases as they happen.
func writeEvent(w *bufio.Writer, e model.Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	return w.Flush()
}
