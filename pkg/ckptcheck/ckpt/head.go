package ckpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/group"
)

// Kinds of messages a head receives.
const (
	kindPost = "post"
	kindStop = "stop"
)

// ErrHeadFailed is returned to an application process whose posted
// checkpoint the head could not finish.
var ErrHeadFailed = errors.New("head failed to finish checkpoint")

type headMessage struct {
	Kind      string     `json:"kind"`
	Promotion *promotion `json:"promotion,omitempty"`
}

// StopMessage returns the payload an application process sends its head,
// on Tag, once it will post no more checkpoints.
func StopMessage() []byte {
	payload, _ := json.Marshal(headMessage{Kind: kindStop})
	return payload
}

// DecodeAck interprets a head's acknowledgement.
func DecodeAck(payload []byte) error {
	v, err := group.DecodeInt(payload)
	if err != nil {
		return fmt.Errorf("decode head acknowledgement: %w", err)
	}
	if v != 0 {
		return ErrHeadFailed
	}
	return nil
}

func encodeAck(err error) []byte {
	if err != nil {
		return group.EncodeInt(1)
	}
	return group.EncodeInt(0)
}

// AwaitHead blocks until the head has finished the last checkpoint this
// process posted. It returns at once when nothing is outstanding.
func (s *Session) AwaitHead(ctx context.Context) error {
	if s.isHead {
		return ErrHeadProcess
	}
	if !s.pendingAck {
		return nil
	}
	return s.awaitAck(ctx)
}

// ServeHead runs the head loop: it finishes checkpoints posted by the
// application processes of its node and acknowledges each one to its
// sender. It returns once every one of them has sent StopMessage.
//
// A failed promotion is logged and reported to the sender; the loop keeps
// serving the other processes.
func (s *Session) ServeHead(ctx context.Context) error {
	if !s.isHead {
		return errors.New("serve head: not a head process")
	}

	remaining := s.nodeSize - 1
	for remaining > 0 {
		msg, err := s.world.Recv(ctx, group.AnySource, s.tag)
		if err != nil {
			return fmt.Errorf("head receive: %w", err)
		}

		var hm headMessage
		if err := json.Unmarshal(msg.Payload, &hm); err != nil {
			return fmt.Errorf("decode message from rank %d: %w", msg.Source, err)
		}

		switch hm.Kind {
		case kindStop:
			remaining--
		case kindPost:
			if hm.Promotion == nil {
				return fmt.Errorf("post from rank %d carries no checkpoint", msg.Source)
			}
			perr := s.promote(*hm.Promotion)
			if perr != nil && s.logger != nil {
				s.logger.Error("head promotion failed",
					slog.Int("from", msg.Source),
					slog.Int("checkpoint_id", hm.Promotion.Record.Sequence),
					slog.String("error", perr.Error()),
				)
			}
			if err := s.world.Send(ctx, msg.Source, s.tag, encodeAck(perr)); err != nil {
				return fmt.Errorf("acknowledge rank %d: %w", msg.Source, err)
			}
		default:
			return fmt.Errorf("unknown message kind %q from rank %d", hm.Kind, msg.Source)
		}
	}

	if s.logger != nil {
		s.logger.Debug("head stopped")
	}
	return nil
}
