package handler

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/nebulosa/api/internal/stream"
)

const keepAliveInterval = 30 * time.Second

type StreamHandler struct {
	broker *stream.Broker
}

func NewStreamHandler(broker *stream.Broker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// Events handles GET /api/stream. It registers the connection as a
// subscriber and relays job events as SSE frames until the client goes
// away; a failed write or flush is the disconnect signal and triggers
// unsubscription.
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	sub := h.broker.Subscribe()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.broker.Unsubscribe(sub)

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case data, ok := <-sub.C:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				// Comment frame keeps idle connections alive and lets the
				// writer notice a dead peer.
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
