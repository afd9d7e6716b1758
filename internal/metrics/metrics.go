// Package metrics implements the metrics actor from spec.md §4.6: an
// append-only, request-id-indexed table of latency checkpoints, collected
// serially off a single channel and queryable for averages. Grounded on
// _examples/original_source/server/src/metrics.rs, generalized from its
// fire-and-forget print-only design to add the Query aggregate spec.md
// adds.
package metrics

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/wire"
)

// Checkpoint tags what a Message records.
type Checkpoint int

const (
	CheckpointStart Checkpoint = iota
	CheckpointArrive
	CheckpointLeave
	CheckpointStreamClose
)

// Message is the metrics actor's single inbound type. Source identifies
// the actor reporting Arrive/Leave; RequestID indexes the per-request
// metric row.
type Message struct {
	Source     string
	RequestID  uint64
	Checkpoint Checkpoint
}

// interval is a single open/close timing pair.
type interval struct {
	start time.Time
	done  bool
	dur   time.Duration
}

func (iv *interval) close() {
	iv.dur = time.Since(iv.start)
	iv.done = true
}

type requestMetric struct {
	requestID    uint64
	start        time.Time
	response     interval
	responseDone bool
	actors       map[string]*interval
}

func (m *requestMetric) complete() bool {
	if !m.responseDone {
		return false
	}
	for _, iv := range m.actors {
		if !iv.done {
			return false
		}
	}
	return true
}

// Aggregate is the JSON shape returned by a Query.
type Aggregate struct {
	SampleCount       int                `json:"sample_count"`
	AvgResponseMS     float64            `json:"avg_response_ms"`
	AvgActorLatencyMS map[string]float64 `json:"avg_actor_latency_ms"`
}

// QueryReply carries the computed Aggregate out of the actor loop to the
// caller that issued the Query.
type QueryReply struct {
	JSON string
	Err  error
}

type queryRequest struct {
	reply    chan QueryReply
	envelope *wire.Envelope
}

// Actor is the metrics actor: a single goroutine owning a slice of
// requestMetric, mutated only by its own message loop.
type Actor struct {
	inbox  chan Message
	query  chan queryRequest
	logger *zap.Logger
}

// New starts the metrics actor goroutine with a bounded inbox of the
// given capacity (spec.md §5: "never blocks a sender on back-pressure...
// message loss is acceptable degradation").
func New(capacity int, logger *zap.Logger) *Actor {
	a := &Actor{
		inbox:  make(chan Message, capacity),
		query:  make(chan queryRequest),
		logger: logger.Named("metrics"),
	}
	go a.run()
	return a
}

// Record submits a checkpoint without blocking; a full inbox silently
// drops the message, per spec.md §4.6.
func (a *Actor) Record(source string, requestID uint64, cp Checkpoint) {
	select {
	case a.inbox <- Message{Source: source, RequestID: requestID, Checkpoint: cp}:
	default:
		a.logger.Debug("dropped metrics message, inbox full",
			zap.String("source", source), zap.Uint64("request_id", requestID))
	}
}

// Query computes the latency aggregate across all completed requests and
// returns it as JSON, synchronously from the caller's point of view (the
// request is serviced by the actor's own single loop like any other
// message, preserving spec.md's single-threaded-per-actor model).
func (a *Actor) Query() (string, error) {
	reply := make(chan QueryReply, 1)
	a.query <- queryRequest{reply: reply}
	result := <-reply
	return result.JSON, result.Err
}

// QueryToConnection implements the Query(stream) checkpoint from
// spec.md §4.6: the actor itself computes the aggregate and writes the
// JSON response on env's connection, taking ownership of env the same
// way every other actor does.
func (a *Actor) QueryToConnection(env *wire.Envelope) {
	a.query <- queryRequest{envelope: env}
}

func (a *Actor) run() {
	a.logger.Info("metrics actor started")
	table := make(map[uint64]*requestMetric)

	for {
		select {
		case msg := <-a.inbox:
			a.handle(table, msg)
		case q := <-a.query:
			result := a.computeAggregate(table)
			if q.envelope != nil {
				a.replyToConnection(q.envelope, result)
				continue
			}
			q.reply <- result
		}
	}
}

func (a *Actor) handle(table map[uint64]*requestMetric, msg Message) {
	switch msg.Checkpoint {
	case CheckpointStart:
		now := time.Now()
		table[msg.RequestID] = &requestMetric{
			requestID: msg.RequestID,
			start:     now,
			response:  interval{start: now},
			actors:    make(map[string]*interval),
		}
	case CheckpointArrive:
		rm, ok := table[msg.RequestID]
		if !ok {
			a.logger.Warn("arrive for unknown request", zap.Uint64("request_id", msg.RequestID))
			return
		}
		rm.actors[msg.Source] = &interval{start: time.Now()}
	case CheckpointLeave:
		rm, ok := table[msg.RequestID]
		if !ok {
			a.logger.Warn("leave for unknown request", zap.Uint64("request_id", msg.RequestID))
			return
		}
		iv, ok := rm.actors[msg.Source]
		if !ok {
			a.logger.Warn("leave without arrive", zap.String("source", msg.Source), zap.Uint64("request_id", msg.RequestID))
			return
		}
		iv.close()
		a.logIfComplete(rm)
	case CheckpointStreamClose:
		rm, ok := table[msg.RequestID]
		if !ok {
			a.logger.Warn("stream close for unknown request", zap.Uint64("request_id", msg.RequestID))
			return
		}
		rm.response.close()
		rm.responseDone = true
		a.logIfComplete(rm)
	}
}

func (a *Actor) logIfComplete(rm *requestMetric) {
	if rm.complete() {
		a.logger.Debug("request complete",
			zap.Uint64("request_id", rm.requestID),
			zap.Duration("response", rm.response.dur))
	}
}

func (a *Actor) replyToConnection(env *wire.Envelope, result QueryReply) {
	defer env.Close()
	if result.Err != nil {
		_ = wire.WriteJSONError(env.Conn, 500, "marshal_failed")
		return
	}
	_ = wire.WriteJSON(env.Conn, 200, result.JSON)
}

func (a *Actor) computeAggregate(table map[uint64]*requestMetric) QueryReply {
	var (
		count       int
		totalResp   time.Duration
		actorTotals = make(map[string]time.Duration)
		actorCounts = make(map[string]int)
	)

	for _, rm := range table {
		if !rm.complete() {
			continue
		}
		count++
		totalResp += rm.response.dur
		for name, iv := range rm.actors {
			actorTotals[name] += iv.dur
			actorCounts[name]++
		}
	}

	agg := Aggregate{SampleCount: count, AvgActorLatencyMS: make(map[string]float64)}
	if count > 0 {
		agg.AvgResponseMS = float64(totalResp.Microseconds()) / 1000.0 / float64(count)
	}
	for name, total := range actorTotals {
		agg.AvgActorLatencyMS[name] = float64(total.Microseconds()) / 1000.0 / float64(actorCounts[name])
	}

	data, err := json.Marshal(agg)
	return QueryReply{JSON: string(data), Err: err}
}
