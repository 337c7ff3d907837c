package wsclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"feedback-sync/internal/feedback/adapter/wire"
	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/fasthttp/websocket"
)

// Listen implements repository.RemoteStore. It returns once the server has
// accepted the query; rejections come back as the server's AppError.
func (c *Client) Listen(ctx context.Context, q model.Query, observer repository.BatchObserver) (reg repository.ListenerRegistration, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveRemoteCall("listen", start, err) }()

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, apperrors.NewTransportError("invalid listen url").WithCause(err)
	}
	query := u.Query()
	query.Set("token", c.Token())
	u.RawQuery = query.Encode()

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.timeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{"User-Agent": {"feedback-sync"}})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, apperrors.NewTransportError("listen handshake rejected").
				WithDetail("status", resp.StatusCode).WithCause(err)
		}
		return nil, apperrors.NewTransportError("failed to connect listen channel").WithCause(err)
	}

	if err := conn.WriteJSON(q); err != nil {
		conn.Close()
		return nil, apperrors.NewTransportError("failed to send query").WithCause(err)
	}
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	var ack wire.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, apperrors.NewTransportError("no answer to listen request").WithCause(err)
	}
	if ack.Type == wire.FrameError && ack.Error != nil {
		conn.Close()
		return nil, ack.Error
	}
	if ack.Type != wire.FrameListening {
		conn.Close()
		return nil, apperrors.NewTransportError("unexpected frame " + ack.Type)
	}
	conn.SetReadDeadline(time.Time{})

	r := &remoteListener{conn: conn, observer: observer, logger: c.logger.WithContext(ctx)}
	go r.run()
	stop := context.AfterFunc(ctx, r.remove)
	return repository.RegistrationFunc(func() {
		stop()
		r.remove()
	}), nil
}

type remoteListener struct {
	conn     *websocket.Conn
	observer repository.BatchObserver
	logger   logger.Logger

	once    sync.Once
	removed atomic.Bool
}

func (r *remoteListener) remove() {
	r.once.Do(func() {
		r.removed.Store(true)
		r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		r.conn.Close()
	})
}

func (r *remoteListener) run() {
	for {
		var frame wire.Frame
		if err := r.conn.ReadJSON(&frame); err != nil {
			if r.removed.Load() {
				return
			}
			r.logger.Warnf("listen channel lost: %v", err)
			r.observer.OnError(apperrors.NewTransportError("listen channel lost").WithCause(err))
			r.remove()
			return
		}
		if r.removed.Load() {
			return
		}

		switch frame.Type {
		case wire.FrameBatch:
			r.observer.OnBatch(wire.DecodeBatch(frame))
		case wire.FrameError:
			var err error = apperrors.NewTransportError("listener failed on the server")
			if frame.Error != nil {
				err = frame.Error
			}
			r.observer.OnError(err)
			r.remove()
			return
		default:
			r.logger.Debugf("ignoring frame %q", frame.Type)
		}
	}
}
