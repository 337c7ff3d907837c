package navigation

import (
	"context"
	"errors"
	"testing"

	"feedback-sync/internal/session"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Initial(t *testing.T) {
	c := NewController(nil)
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, ScreenLogin, c.Screen())
	assert.ElementsMatch(t, []Screen{ScreenLogin, ScreenRegister}, c.Reachable())
}

func TestController_TransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		path       []Event
		wantState  State
		wantScreen Screen
	}{
		{"login attempt", []Event{EventAuthAttempt}, StateAuthenticating, ScreenLogin},
		{"login success lands on list", []Event{EventAuthAttempt, EventProfileSet}, StateAuthenticatedIdle, ScreenList},
		{"login failure", []Event{EventAuthAttempt, EventAuthFailed}, StateUnauthenticated, ScreenLogin},
		{"register completes without session", []Event{EventAuthAttempt, EventRegisterCompleted}, StateUnauthenticated, ScreenLogin},
		{"submission started", []Event{EventAuthAttempt, EventProfileSet, EventSubmissionStarted}, StateSubmitting, ScreenForm},
		{"submission succeeded", []Event{EventAuthAttempt, EventProfileSet, EventSubmissionStarted, EventSubmissionSucceeded}, StateAuthenticatedIdle, ScreenList},
		{"submission failed stays on form", []Event{EventAuthAttempt, EventProfileSet, EventSubmissionStarted, EventSubmissionFailed}, StateAuthenticatedIdle, ScreenForm},
		{"sign out from idle", []Event{EventAuthAttempt, EventProfileSet, EventSignOut}, StateUnauthenticated, ScreenLogin},
		{"sign out while submitting", []Event{EventAuthAttempt, EventProfileSet, EventSubmissionStarted, EventSignOut}, StateUnauthenticated, ScreenLogin},
		{"no terminal state", []Event{EventAuthAttempt, EventProfileSet, EventSignOut, EventAuthAttempt, EventProfileSet}, StateAuthenticatedIdle, ScreenList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(nil)
			for _, ev := range tt.path {
				require.NoError(t, c.Fire(context.Background(), ev), "event %s", ev)
			}
			assert.Equal(t, tt.wantState, c.State())
			assert.Equal(t, tt.wantScreen, c.Screen())
		})
	}
}

func TestController_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	c := NewController(nil)

	for _, ev := range []Event{EventProfileSet, EventSubmissionStarted, EventSubmissionSucceeded, EventSignOut, EventAuthFailed} {
		err := c.Fire(context.Background(), ev)
		require.Error(t, err, "event %s", ev)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
		assert.Equal(t, StateUnauthenticated, c.State())
	}

	require.NoError(t, c.Fire(context.Background(), EventAuthAttempt))
	assert.Error(t, c.Fire(context.Background(), EventAuthAttempt))
	assert.Equal(t, StateAuthenticating, c.State())
}

func TestController_Navigate(t *testing.T) {
	c := NewController(nil)
	require.NoError(t, c.Navigate(ScreenRegister))
	assert.Equal(t, ScreenRegister, c.Screen())

	err := c.Navigate(ScreenList)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, ScreenRegister, c.Screen())

	require.NoError(t, c.Fire(context.Background(), EventAuthAttempt))
	require.NoError(t, c.Fire(context.Background(), EventProfileSet))
	require.NoError(t, c.Navigate(ScreenForm))
	require.NoError(t, c.Fire(context.Background(), EventSubmissionStarted))

	assert.Error(t, c.Navigate(ScreenList), "only the form is reachable while submitting")
	assert.NoError(t, c.Navigate(ScreenForm))
}

func TestController_ListenersNotifiedSynchronously(t *testing.T) {
	c := NewController(nil)
	var got []Transition
	c.OnTransition(func(tr Transition) { got = append(got, tr) })

	require.NoError(t, c.Fire(context.Background(), EventAuthAttempt))
	require.Len(t, got, 1)
	assert.Equal(t, Transition{
		From: StateUnauthenticated, To: StateAuthenticating, Event: EventAuthAttempt,
		FromScreen: ScreenLogin, Screen: ScreenLogin,
	}, got[0])

	_ = c.Fire(context.Background(), EventSubmissionSucceeded)
	assert.Len(t, got, 1, "rejected events do not notify")
}

func TestController_Bind(t *testing.T) {
	bus := eventbus.NewEventBus(nil)
	sessions := session.NewStore(nil)
	c := NewController(nil)
	detach := c.Bind(bus, sessions)

	publish := func(eventType string) {
		require.NoError(t, bus.Publish(context.Background(), eventbus.NewBasicEvent(eventType, nil)))
	}

	publish(eventbus.EventTypeAuthStarted)
	assert.Equal(t, StateAuthenticating, c.State())

	sessions.Set(&sessionmodel.Profile{Identity: "u1", AccessLevel: sessionmodel.AccessLevelUser})
	assert.Equal(t, StateAuthenticatedIdle, c.State())
	assert.Equal(t, ScreenList, c.Screen())

	publish(eventbus.EventTypeSubmissionStarted)
	assert.Equal(t, StateSubmitting, c.State())
	publish(eventbus.EventTypeSubmissionFailed)
	assert.Equal(t, StateAuthenticatedIdle, c.State())
	assert.Equal(t, ScreenForm, c.Screen())

	publish(eventbus.EventTypeSubmissionSucceeded)
	assert.Equal(t, StateAuthenticatedIdle, c.State(), "out-of-order event ignored")

	sessions.Clear()
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, ScreenLogin, c.Screen())

	publish(eventbus.EventTypeAuthStarted)
	publish(eventbus.EventTypeAuthRegistered)
	assert.Equal(t, StateUnauthenticated, c.State())

	detach()
	publish(eventbus.EventTypeAuthStarted)
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestController_ListenerMayFire(t *testing.T) {
	c := NewController(nil)
	var got []Transition
	c.OnTransition(func(tr Transition) {
		if tr.To == StateSubmitting {
			require.NoError(t, c.Fire(context.Background(), EventSubmissionFailed))
		}
	})
	c.OnTransition(func(tr Transition) { got = append(got, tr) })

	require.NoError(t, c.Fire(context.Background(), EventAuthAttempt))
	require.NoError(t, c.Fire(context.Background(), EventProfileSet))
	require.NoError(t, c.Fire(context.Background(), EventSubmissionStarted))

	assert.Equal(t, StateAuthenticatedIdle, c.State())
	assert.Equal(t, ScreenForm, c.Screen())
	require.Len(t, got, 4)
	assert.Equal(t, EventSubmissionStarted, got[2].Event)
	assert.Equal(t, EventSubmissionFailed, got[3].Event, "the nested transition follows the current one")
}
