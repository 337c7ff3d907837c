// Package navigation tracks which phase the client is in and which screens
// the user may be on.
package navigation

import (
	"context"
	"sync"

	sessionpkg "feedback-sync/internal/session"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/notify"
)

// State is the session phase.
type State string

const (
	StateUnauthenticated   State = "unauthenticated"
	StateAuthenticating    State = "authenticating"
	StateAuthenticatedIdle State = "authenticated-idle"
	StateSubmitting        State = "submitting"
)

// Event drives transitions.
type Event string

const (
	EventAuthAttempt         Event = "auth-attempt"
	EventProfileSet          Event = "profile-set"
	EventAuthFailed          Event = "auth-failed"
	EventRegisterCompleted   Event = "register-completed"
	EventSubmissionStarted   Event = "submission-started"
	EventSubmissionSucceeded Event = "submission-succeeded"
	EventSubmissionFailed    Event = "submission-failed"
	EventSignOut             Event = "sign-out"
)

// Screen is a top level view of the client.
type Screen string

const (
	ScreenLogin    Screen = "Login"
	ScreenRegister Screen = "Register"
	ScreenList     Screen = "List"
	ScreenForm     Screen = "Form"
)

type transitionKey struct {
	from  State
	event Event
}

type target struct {
	to     State
	screen Screen // landing screen; empty keeps the current one
}

var transitions = map[transitionKey]target{
	{StateUnauthenticated, EventAuthAttempt}:         {to: StateAuthenticating},
	{StateAuthenticating, EventProfileSet}:           {to: StateAuthenticatedIdle, screen: ScreenList},
	{StateAuthenticating, EventAuthFailed}:           {to: StateUnauthenticated},
	{StateAuthenticating, EventRegisterCompleted}:    {to: StateUnauthenticated, screen: ScreenLogin},
	{StateAuthenticatedIdle, EventSubmissionStarted}: {to: StateSubmitting, screen: ScreenForm},
	{StateSubmitting, EventSubmissionSucceeded}:      {to: StateAuthenticatedIdle, screen: ScreenList},
	{StateSubmitting, EventSubmissionFailed}:         {to: StateAuthenticatedIdle, screen: ScreenForm},
	{StateAuthenticatedIdle, EventSignOut}:           {to: StateUnauthenticated, screen: ScreenLogin},
	{StateSubmitting, EventSignOut}:                  {to: StateUnauthenticated, screen: ScreenLogin},
}

var reachable = map[State][]Screen{
	StateUnauthenticated:   {ScreenLogin, ScreenRegister},
	StateAuthenticating:    {ScreenLogin, ScreenRegister},
	StateAuthenticatedIdle: {ScreenList, ScreenForm},
	StateSubmitting:        {ScreenForm},
}

// Transition describes one accepted event.
type Transition struct {
	From       State
	To         State
	Event      Event
	FromScreen Screen
	Screen     Screen
}

// TransitionListener is notified of every transition, in order. A listener
// may call Fire; that transition is delivered after the current one.
type TransitionListener func(Transition)

// Controller is the session/screen state machine. It has no terminal state.
type Controller struct {
	outbox notify.Queue

	mu        sync.RWMutex
	state     State
	screen    Screen
	listeners []TransitionListener

	logger logger.Logger
}

// NewController starts unauthenticated on the login screen.
func NewController(log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Controller{
		state:  StateUnauthenticated,
		screen: ScreenLogin,
		logger: log.WithComponent("navigation"),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Screen returns the current screen.
func (c *Controller) Screen() Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screen
}

// Reachable lists the screens allowed in the current state.
func (c *Controller) Reachable() []Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Screen(nil), reachable[c.state]...)
}

// OnTransition registers l for every future transition.
func (c *Controller) OnTransition(l TransitionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Fire applies event and notifies listeners before returning, unless it is
// called from a listener. An event with no transition from the current
// state returns an invalid-transition error and changes nothing.
func (c *Controller) Fire(ctx context.Context, event Event) error {
	c.mu.Lock()
	tgt, ok := transitions[transitionKey{c.state, event}]
	if !ok {
		state := c.state
		c.mu.Unlock()
		return apperrors.ErrInvalidTransition.New().
			WithDetail("state", string(state)).
			WithDetail("event", string(event))
	}
	tr := Transition{From: c.state, To: tgt.to, Event: event, FromScreen: c.screen, Screen: c.screen}
	if tgt.screen != "" {
		tr.Screen = tgt.screen
	}
	c.state = tr.To
	c.screen = tr.Screen
	listeners := append([]TransitionListener(nil), c.listeners...)
	c.outbox.Enqueue(func() {
		for _, l := range listeners {
			l(tr)
		}
	})
	c.mu.Unlock()

	c.logger.WithContext(ctx).Debugf("%s --%s--> %s (screen %s)", tr.From, event, tr.To, tr.Screen)
	c.outbox.Drain()
	return nil
}

// Navigate moves to screen if it is reachable in the current state.
func (c *Controller) Navigate(screen Screen) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range reachable[c.state] {
		if s == screen {
			c.screen = screen
			return nil
		}
	}
	return apperrors.ErrInvalidTransition.New().
		WithDetail("state", string(c.state)).
		WithDetail("screen", string(screen))
}

// Bind drives the controller from the session store and the event bus. The
// returned function detaches it.
func (c *Controller) Bind(bus eventbus.Bus, sessions *sessionpkg.Store) func() {
	fire := func(ctx context.Context, event Event) {
		if err := c.Fire(ctx, event); err != nil {
			c.logger.Debugf("ignored %s in state %s", event, c.State())
		}
	}

	unsubs := []func(){
		sessions.Subscribe(func(prev, next *sessionmodel.Profile) {
			switch {
			case next != nil && (prev == nil || prev.Identity != next.Identity):
				fire(context.Background(), EventProfileSet)
			case next == nil && prev != nil:
				fire(context.Background(), EventSignOut)
			}
		}),
	}

	busEvents := map[string]Event{
		eventbus.EventTypeAuthStarted:         EventAuthAttempt,
		eventbus.EventTypeAuthFailed:          EventAuthFailed,
		eventbus.EventTypeAuthRegistered:      EventRegisterCompleted,
		eventbus.EventTypeSubmissionStarted:   EventSubmissionStarted,
		eventbus.EventTypeSubmissionSucceeded: EventSubmissionSucceeded,
		eventbus.EventTypeSubmissionFailed:    EventSubmissionFailed,
	}
	for eventType, ev := range busEvents {
		ev := ev
		unsubs = append(unsubs, bus.Subscribe(eventType, func(ctx context.Context, _ eventbus.Event) error {
			fire(ctx, ev)
			return nil
		}))
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
