package session

import (
	"errors"

	framework "github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/metrics"
	"github.com/bhandras/noderunner/internal/protocol/wire"
	"github.com/bhandras/noderunner/internal/runner"
	"github.com/bhandras/noderunner/pkg/logger"
)

// socketLifecycle is the subset of socket clients used for actor wiring.
type socketLifecycle interface {
	OnConnect(fn func())
	OnDisconnect(fn func(reason string))
	OnMessage(fn func(payload any))
}

// actorEnqueuer is the minimal Actor API we need to enqueue channel events.
type actorEnqueuer interface {
	Enqueue(input framework.Input) bool
}

// wireActorToSocket registers socket callbacks that enqueue the
// corresponding runner inputs. Callbacks run on the socket's event
// goroutine, so inputs reach the actor in arrival order.
func wireActorToSocket(a actorEnqueuer, sock socketLifecycle, m *metrics.Registry) {
	if a == nil || sock == nil {
		return
	}

	sock.OnConnect(func() {
		if m != nil {
			m.SetConnected(true)
		}
		_ = a.Enqueue(runner.Connected())
	})
	sock.OnDisconnect(func(reason string) {
		if m != nil {
			m.SetConnected(false)
		}
		_ = a.Enqueue(runner.Disconnected(reason))
	})
	sock.OnMessage(func(payload any) {
		msg, err := wire.ParseInbound(payload)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownMessageType) {
				logger.Debugf("noderunner: ignoring message: %v", err)
			} else {
				logger.Warnf("noderunner: undecodable message: %v", err)
			}
			return
		}
		if m != nil {
			m.RecordInbound(msg.Type())
			if em, ok := msg.(wire.ErrorMessage); ok {
				m.RecordServerError(runner.ClassifyError(em.Code).String())
			}
		}
		_ = a.Enqueue(runner.Inbound(msg))
	})
}
