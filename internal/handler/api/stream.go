package api

import (
	"net/http"
	"time"

	"StockVote/internal/domain/models"
	applogger "StockVote/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamBatch pushes BatchRun snapshots over a websocket until the batch is
// final or the client goes away. Unknown batches are rejected before the
// upgrade.
func (h *AnalysisEchoHandler) StreamBatch(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	run, err := h.batches.Lookup(ctx, id)
	if err != nil {
		return h.fail(c, "stream batch", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", applogger.String("batch_id", id), applogger.Error(err))
		return nil
	}
	defer conn.Close()
	log := h.logger.With(applogger.String("batch_id", id))

	// the reader only exists to notice the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	var last *models.BatchRun
	for {
		if progressed(last, run) {
			if err := writeSnapshot(conn, run); err != nil {
				log.Debug("stream write failed", applogger.Error(err))
				return nil
			}
			last = run
		}
		if run.Status.Final() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		}
		select {
		case <-gone:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		next, err := h.batches.Lookup(ctx, id)
		if err != nil {
			log.Warn("stream lookup failed", applogger.Error(err))
			return nil
		}
		run = next
	}
}

func progressed(prev, cur *models.BatchRun) bool {
	return prev == nil ||
		prev.Succeeded != cur.Succeeded ||
		prev.Failed != cur.Failed ||
		prev.Status != cur.Status
}

func writeSnapshot(conn *websocket.Conn, run *models.BatchRun) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(run)
}
