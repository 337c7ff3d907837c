package http

import (
	"context"
	"sync"

	authhttp "feedback-sync/internal/auth/adapter/http"
	"feedback-sync/internal/feedback/adapter/wire"
	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// handleListen runs one listen channel. The client sends its query as the
// first message; the server answers with a listening frame or an error
// frame, then streams batch frames until either side closes.
func (h *HTTPHandler) handleListen(conn *websocket.Conn) {
	uid, _ := conn.Locals(authhttp.LocalUserID).(string)
	ctx, cancel := context.WithCancel(contextkeys.WithUserID(context.Background(), uid))
	defer cancel()
	ctx = context.WithValue(ctx, contextkeys.SubscriptionIDKey, uuid.NewString())
	log := h.Log.WithContext(ctx)

	var q model.Query
	if err := conn.ReadJSON(&q); err != nil {
		conn.WriteJSON(wire.ErrorFrame(apperrors.ErrInvalidRequest.New().WithCause(err)))
		return
	}

	var writeMu sync.Mutex
	send := func(f wire.Frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(f); err != nil {
			log.Debugf("listen channel write failed: %v", err)
			cancel()
		}
	}

	// Batches queue behind writeMu until the listening frame is out.
	writeMu.Lock()
	reg, err := h.Store.Listen(ctx, q, repository.ObserverFuncs{
		Batch: func(b model.DeltaBatch) { send(wire.EncodeBatch(b)) },
		Error: func(err error) {
			log.Warnf("listener failed: %v", err)
			send(wire.ErrorFrame(err))
		},
	})
	if err != nil {
		log.Infof("listen on %s rejected: %v", q.Collection, err)
		conn.WriteJSON(wire.ErrorFrame(err))
		writeMu.Unlock()
		return
	}
	conn.WriteJSON(wire.Frame{Type: wire.FrameListening})
	writeMu.Unlock()
	defer reg.Remove()

	if h.Metrics != nil {
		h.Metrics.Listeners.Inc()
		defer h.Metrics.Listeners.Dec()
	}
	log.Debugf("listening on %s", q.Collection)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("listen channel closed: %v", err)
			}
			return
		}
	}
}
