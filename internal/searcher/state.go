package searcher

import (
	"fmt"

	"go.uber.org/zap"
)

// State is a step of one search call
type State string

const (
	StateIdle        State = "idle"
	StateDispatching State = "dispatching"
	StateMerging     State = "merging"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateIdle:        {StateDispatching, StateFailed},
	StateDispatching: {StateMerging, StateFailed},
	StateMerging:     {StateDone, StateFailed},
}

// call tracks the state of a single Execute invocation. Calls share nothing
// but the read-only configuration.
type call struct {
	id     string
	state  State
	logger *zap.Logger
}

func newCall(id string, logger *zap.Logger) *call {
	return &call{
		id:     id,
		state:  StateIdle,
		logger: logger.With(zap.String("search_id", id)),
	}
}

// advance moves to the next state. Leaving a terminal state or skipping a
// step is a programming error.
func (c *call) advance(to State) {
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.logger.Debug("search state", zap.String("from", string(c.state)), zap.String("to", string(to)))
			c.state = to
			return
		}
	}
	panic(fmt.Sprintf("searcher: invalid transition %s -> %s", c.state, to))
}

func (c *call) fail(err error) error {
	c.advance(StateFailed)
	c.logger.Debug("search failed", zap.Error(err))
	return err
}
