package runner

import (
	"context"
	"sync"

	framework "github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/protocol/wire"
	"github.com/bhandras/noderunner/pkg/logger"
)

// Sender writes commands to the message channel.
type Sender interface {
	Send(cmd wire.Outbound) error
}

// Debugger is the debugger view. The controller only triggers attach and
// detach; the debugger protocol lives behind this interface.
type Debugger interface {
	// RegisterManualAttach marks the next attach as user initiated.
	RegisterManualAttach()
	Attach()
	Detach()
	// ShowTabs shows the debugger tab view.
	ShowTabs()
	// LoadTabs loads the debugger's script tabs.
	LoadTabs()
}

// Console receives user-visible lines.
type Console interface {
	Warn(text string)
	Error(text string)
}

// Reporter transmits unclassified server errors out of band. It must not
// block.
type Reporter interface {
	ReportException(code *int, message string)
}

// Publisher delivers local events to observers. It must not block.
type Publisher interface {
	Publish(ev Event)
}

// RuntimeConfig wires the collaborators. Nil collaborators are skipped.
type RuntimeConfig struct {
	Sender    Sender
	Debugger  Debugger
	Console   Console
	Reporter  Reporter
	Publisher Publisher

	// OnSend, if set, observes every send attempt.
	OnSend func(command string, err error)
}

// Runtime interprets session effects.
//
// Runtime never mutates session state; everything it does is driven by the
// effects the reducer returns.
type Runtime struct {
	mu      sync.Mutex
	cfg     RuntimeConfig
	stopped bool
}

// NewRuntime returns a Runtime using the given collaborators.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	return &Runtime{cfg: cfg}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []framework.Effect, _ func(framework.Input)) {
	r.mu.Lock()
	cfg := r.cfg
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return
	}

	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effSend:
			r.send(cfg, e.Command)
		case effManualAttach:
			if cfg.Debugger != nil {
				cfg.Debugger.RegisterManualAttach()
			}
		case effAttachDebugger:
			logger.Debugf("noderunner: attaching debugger")
			if cfg.Debugger != nil {
				cfg.Debugger.Attach()
			}
		case effDetachDebugger:
			logger.Debugf("noderunner: detaching debugger")
			if cfg.Debugger != nil {
				cfg.Debugger.Detach()
			}
		case effShowDebugger:
			if cfg.Debugger != nil {
				cfg.Debugger.ShowTabs()
				cfg.Debugger.LoadTabs()
			}
		case effReport:
			r.report(cfg, e)
		case effDiagnostic:
			if cfg.Reporter != nil {
				cfg.Reporter.ReportException(e.Code, e.Message)
			}
		case effPublish:
			if cfg.Publisher != nil {
				cfg.Publisher.Publish(e.Event)
			}
		default:
			logger.Warnf("noderunner: unknown effect %T", eff)
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *Runtime) send(cfg RuntimeConfig, cmd wire.Outbound) {
	var err error
	if cfg.Sender == nil {
		err = ErrDisconnected
	} else {
		err = cfg.Sender.Send(cmd)
	}
	if err != nil {
		// Local flags are advisory; the next state message corrects them.
		logger.Warnf("noderunner: send %s failed: %v", cmd.Name(), err)
	} else {
		logger.Tracef("noderunner: sent %s", cmd.Name())
	}
	if cfg.OnSend != nil {
		cfg.OnSend(cmd.Name(), err)
	}
}

func (r *Runtime) report(cfg RuntimeConfig, eff effReport) {
	if cfg.Console == nil {
		logger.Infof("noderunner: %s", eff.Text)
		return
	}
	switch eff.Level {
	case ReportWarning:
		cfg.Console.Warn(eff.Text)
	default:
		cfg.Console.Error(eff.Text)
	}
}
