package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"espcam-worker-go/internal/models"
)

// ControlBus is the request/reply side of the messaging service
type ControlBus interface {
	Reply(subject string, handler func([]byte) interface{}) (*nats.Subscription, error)
}

// ControlCommand is a start/stop/status/config request received over NATS
type ControlCommand struct {
	Action string                      `json:"action"` // start | stop | status | config
	Target string                      `json:"target,omitempty"`
	Mirror *bool                       `json:"mirror,omitempty"`
	Config *models.PipelineConfigPatch `json:"config,omitempty"`
}

type ControlReply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status Status `json:"status"`
}

// ListenControl answers ControlCommands on subject until the subscription is drained.
func (w *Worker) ListenControl(bus ControlBus, subject string, startTimeout time.Duration) (*nats.Subscription, error) {
	sub, err := bus.Reply(subject, func(data []byte) interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		return w.HandleControl(ctx, data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	w.logger.Info().Str("subject", subject).Msg("Listening for control commands")
	return sub, nil
}

// HandleControl executes one encoded ControlCommand
func (w *Worker) HandleControl(ctx context.Context, data []byte) ControlReply {
	var cmd ControlCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ControlReply{Error: fmt.Sprintf("invalid command: %v", err), Status: w.Status()}
	}
	w.logger.Info().Str("action", cmd.Action).Str("target", cmd.Target).Msg("Control command received")

	var err error
	switch cmd.Action {
	case "start":
		_, err = w.Start(ctx, StartRequest{Target: cmd.Target, Mirror: cmd.Mirror})
	case "stop":
		err = w.Stop()
	case "status":
	case "config":
		if cmd.Config == nil {
			err = fmt.Errorf("config action requires a config patch")
			break
		}
		_, err = w.UpdateConfig(*cmd.Config)
	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}

	reply := ControlReply{OK: err == nil, Status: w.Status()}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}
