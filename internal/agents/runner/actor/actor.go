package actor

import (
	"context"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go-scriptloop/internal/loop"
	"go-scriptloop/pkg/logger"
	"go-scriptloop/pkg/messages"
	"go-scriptloop/pkg/models"
)

type Controller interface {
	Run(ctx context.Context, req loop.RunRequest) (models.Outcome, error)
	PrepareResume(session models.Session) (loop.RunRequest, error)
}

type ExampleSource interface {
	Load() []models.Example
}

// Tracker is told about every run the actor finishes.
type Tracker interface {
	Finish(id uuid.UUID, outcome models.Outcome, err error)
}

// Runner owns the controller and runs one request at a time in arrival order.
// The loop runs off the actor goroutine so status requests are answered while
// a run is in flight.
type Runner struct {
	ctx        context.Context
	controller Controller
	examples   ExampleSource
	tracker    Tracker
	queue      []any
	current    uuid.UUID
	state      models.State
}

func New(ctx context.Context, controller Controller, examples ExampleSource, tracker Tracker) actor.Producer {
	return func() actor.Actor {
		return &Runner{
			ctx:        ctx,
			controller: controller,
			examples:   examples,
			tracker:    tracker,
			state:      models.Init,
		}
	}
}

func (agent *Runner) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{logger.ActorIDField: ac.Self().GetId(), logger.AgentNameField: "runner"}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
		agent.state = models.Idle
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
	case *actor.Stopped:
		l.Debug().Msg("stopped actor")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case messages.NewRun:
		l.Debug().Str(logger.RunIDField, msg.RunID.String()).Msg("NewRun received")
		agent.queue = append(agent.queue, msg)
		agent.next(ac)
	case messages.ResumeRun:
		l.Debug().Str(logger.RunIDField, msg.RunID.String()).Msg("ResumeRun received")
		agent.queue = append(agent.queue, msg)
		agent.next(ac)
	case messages.RunResult:
		if msg.Err != nil {
			l.Error().Err(msg.Err).Str(logger.RunIDField, msg.RunID.String()).Msg("run ended with an error")
		} else {
			l.Info().Str(logger.RunIDField, msg.RunID.String()).Str("status", string(msg.Outcome.Status)).
				Int(logger.IterationField, msg.Outcome.Iterations).Msg("run finished")
		}
		if agent.tracker != nil {
			agent.tracker.Finish(msg.RunID, msg.Outcome, msg.Err)
		}
		agent.current = uuid.Nil
		agent.state = models.Idle
		agent.next(ac)
	case messages.GetStatus:
		ac.Respond(messages.Status{State: agent.state, Current: agent.current, Queued: len(agent.queue)})
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}

func (agent *Runner) next(ac actor.Context) {
	if agent.current != uuid.Nil || len(agent.queue) == 0 {
		return
	}
	msg := agent.queue[0]
	agent.queue = agent.queue[1:]

	var id uuid.UUID
	var run func() (models.Outcome, error)
	switch m := msg.(type) {
	case messages.NewRun:
		id = m.RunID
		req := loop.RunRequest{
			Task:          m.Task,
			MaxIterations: m.MaxIterations,
			SeedCode:      m.SeedCode,
		}
		run = func() (models.Outcome, error) {
			req.RunID = id
			if agent.examples != nil {
				req.Examples = agent.examples.Load()
			}
			return agent.controller.Run(agent.ctx, req)
		}
	case messages.ResumeRun:
		id = m.RunID
		session := m.Session
		run = func() (models.Outcome, error) {
			req, err := agent.controller.PrepareResume(session)
			if err != nil {
				return models.Outcome{}, err
			}
			req.RunID = id
			return agent.controller.Run(agent.ctx, req)
		}
	default:
		return
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	agent.current = id
	agent.state = models.Thinking
	root, self := ac.ActorSystem().Root, ac.Self()
	go func() {
		outcome, err := run()
		root.Send(self, messages.RunResult{RunID: id, Outcome: outcome, Err: err})
	}()
}
