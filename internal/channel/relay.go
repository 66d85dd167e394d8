package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

// pendingRequest is the completion handle for one in-flight relayed command.
type pendingRequest struct {
	done  chan schemas.Result
	timer *time.Timer
}

// Relay posts command envelopes across an embedding boundary and resolves them
// from response envelopes fed through Deliver. Each command gets a fresh
// correlation ID and a timer; the first matching response or the timer,
// whichever comes first, settles it.
type Relay struct {
	poster         Poster
	logger         *zap.Logger
	defaultTimeout time.Duration
	newID          func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

var _ Channel = (*Relay)(nil)

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithIDGenerator overrides correlation ID generation.
func WithIDGenerator(fn func() string) RelayOption {
	return func(r *Relay) { r.newID = fn }
}

// NewRelay creates a relay channel that posts through poster.
func NewRelay(poster Poster, defaultTimeout time.Duration, logger *zap.Logger, opts ...RelayOption) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		poster:         poster,
		logger:         logger.Named("relay"),
		defaultTimeout: defaultTimeout,
		newID:          func() string { return uuid.New().String() },
		pending:        make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPoster attaches the transport once the host is up.
func (r *Relay) SetPoster(p Poster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poster = p
}

func (r *Relay) currentPoster() Poster {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poster
}

// Send posts cmd and waits for its response. It returns within the command's
// timeout; the pending entry and its timer are released on every exit path.
func (r *Relay) Send(ctx context.Context, cmd schemas.Command) (json.RawMessage, error) {
	poster := r.currentPoster()
	if err := precheck(cmd, poster != nil); err != nil {
		return nil, err
	}

	timeout := effectiveTimeout(cmd, r.defaultTimeout)
	id := r.newID()
	log := r.logger.With(zap.String("command", string(cmd.Name)), zap.String("correlation_id", id))

	req := r.register(id, timeout)
	defer r.release(id)

	postCtx, cancel := context.WithTimeout(ctx, timeout)
	err := poster.Post(postCtx, schemas.NewCommandEnvelope(id, cmd))
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, abandoned(cmd, ctx.Err())
		}
		return nil, &schemas.CommandError{Command: cmd.Name, Kind: schemas.KindTransportNotReady, Message: "could not post envelope", Err: err}
	}
	log.Debug("Posted command envelope.", zap.Duration("timeout", timeout))

	select {
	case res := <-req.done:
		if err := res.Err(cmd.Name); err != nil {
			log.Debug("Relayed command failed.", zap.Error(err))
			return nil, err
		}
		log.Debug("Relayed command resolved.")
		return res.Payload, nil
	case <-ctx.Done():
		return nil, abandoned(cmd, ctx.Err())
	}
}

// Deliver feeds one raw message from the inner context into the channel. It
// reports whether the message settled an in-flight command. Malformed
// messages, non-response envelopes and unknown IDs are ignored.
func (r *Relay) Deliver(raw []byte) bool {
	var env schemas.ResponseEnvelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		r.logger.Debug("Ignoring undecodable relay message.", zap.Error(err))
		return false
	}
	if !env.IsResponse() {
		r.logger.Debug("Ignoring foreign relay message.", zap.String("type", env.Type))
		return false
	}
	if !r.resolve(env.ID, env.Payload.AsResult()) {
		r.logger.Debug("Ignoring response with no pending command.", zap.String("correlation_id", env.ID))
		return false
	}
	return true
}

// Pending returns the number of commands awaiting a response.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Relay) register(id string, timeout time.Duration) *pendingRequest {
	req := &pendingRequest{done: make(chan schemas.Result, 1)}
	r.mu.Lock()
	r.pending[id] = req
	req.timer = time.AfterFunc(timeout, func() {
		r.resolve(id, schemas.FailureResult(schemas.FailureTimedOut, schemas.CodeTimedOut, "no response after "+timeout.String()))
	})
	r.mu.Unlock()
	return req
}

// resolve settles the pending entry for id exactly once.
func (r *Relay) resolve(id string, res schemas.Result) bool {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	req.timer.Stop()
	req.done <- res
	return true
}

func (r *Relay) release(id string) {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if ok {
		req.timer.Stop()
	}
}
