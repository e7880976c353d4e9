package home

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
)

// Remote control paths under the mirror root.
const (
	ControlCommandPath = "control/command"
	ControlStatePath   = "control/state"
)

// SourceRemote is the default source of MQTT-triggered commands.
const SourceRemote = "mqtt"

// remoteTimeout bounds a remotely triggered command.
const remoteTimeout = time.Minute

type commandRequest struct {
	Command  string `json:"command"`
	Modifier string `json:"modifier"`
	Source   string `json:"source"`
}

type stateRequest struct {
	State string `json:"state"`
}

// WatchControl subscribes to the remote trigger paths and the notification
// flag on w.
func (o *Orchestrator) WatchControl(w mirror.Watcher) error {
	if err := w.Watch(ControlCommandPath, o.onRemoteCommand); err != nil {
		return fmt.Errorf("watching %s: %w", ControlCommandPath, err)
	}
	if err := w.Watch(ControlStatePath, o.onRemoteState); err != nil {
		return fmt.Errorf("watching %s: %w", ControlStatePath, err)
	}
	if err := w.Watch(mirror.PathHasNotification, o.onNotificationFlag); err != nil {
		return fmt.Errorf("watching %s: %w", mirror.PathHasNotification, err)
	}
	return nil
}

// onRemoteCommand runs on the MQTT callback goroutine. It queues the
// request and returns; queued requests reach the dispatcher in arrival order.
func (o *Orchestrator) onRemoteCommand(_ string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	var req commandRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Command == "" {
		o.logger.Warn("invalid remote command", "payload", string(payload), "error", err)
		return
	}
	if req.Source == "" {
		req.Source = SourceRemote
	}

	o.queueRemote("command", func(ctx context.Context) error {
		return o.do(ctx, func(loopCtx context.Context) {
			x, _, err := o.execute(loopCtx, req.Command, req.Modifier, req.Source)
			if err != nil {
				o.logger.Warn("remote command rejected", "command", req.Command, "error", err)
				return
			}
			o.await(x)
		})
	})
}

func (o *Orchestrator) onRemoteState(_ string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	var req stateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		// Accept a bare state name as well.
		req.State = strings.Trim(string(payload), "\" \n")
	}
	s, err := automation.ParseSystemState(req.State)
	if err != nil {
		o.logger.Warn("invalid remote state", "payload", string(payload), "error", err)
		return
	}

	o.queueRemote("state", func(ctx context.Context) error {
		return o.SetState(ctx, s)
	})
}

// queueRemote never blocks the MQTT callback. A full queue drops the request.
func (o *Orchestrator) queueRemote(what string, fn func(ctx context.Context) error) {
	task := func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			o.logger.Warn("remote request failed", "request", what, "error", err)
		}
	}
	select {
	case o.remote <- task:
	default:
		o.logger.Warn("remote queue full, request dropped", "request", what)
	}
}

// drainRemote hands queued remote requests to the dispatcher one at a time.
// Each is enqueued only after the previous one has run on the loop, so an
// ARMED followed by HOME always ends HOME.
func (o *Orchestrator) drainRemote(ctx context.Context) {
	defer o.workers.Done()
	for {
		select {
		case task := <-o.remote:
			taskCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
			task(taskCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) onNotificationFlag(_ string, payload []byte) {
	pending := strings.TrimSpace(string(payload)) == "true"
	o.post(func(ctx context.Context) {
		o.notification(ctx, pending)
	})
}
