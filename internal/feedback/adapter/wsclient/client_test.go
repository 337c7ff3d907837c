package wsclient_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"feedback-sync/internal/auth"
	"feedback-sync/internal/auth/adapter/persistence/memory"
	"feedback-sync/internal/auth/testutil"
	authusecase "feedback-sync/internal/auth/usecase"
	storehttp "feedback-sync/internal/feedback/adapter/http"
	"feedback-sync/internal/feedback/adapter/memstore"
	"feedback-sync/internal/feedback/adapter/wsclient"
	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/feedback/usecase"
	"feedback-sync/internal/session"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDevStore(t *testing.T) (*memstore.Store, string) {
	t.Helper()
	repo := memory.NewRepository()
	module, err := auth.NewAuthModule(repo, repo, testutil.Config(), nil)
	require.NoError(t, err)

	store := memstore.New(nil,
		memstore.WithRules(memstore.DefaultRules()),
		memstore.WithLatencyCompensation(true),
	)
	app := storehttp.NewServer(store, module, nil, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return store, "http://" + ln.Addr().String()
}

func newClient(t *testing.T, baseURL string) *wsclient.Client {
	t.Helper()
	c, err := wsclient.New(baseURL, nil, wsclient.WithTimeout(2*time.Second))
	require.NoError(t, err)
	return c
}

type recorder struct {
	batches chan model.DeltaBatch
	errs    chan error
}

func newRecorder() *recorder {
	return &recorder{batches: make(chan model.DeltaBatch, 16), errs: make(chan error, 1)}
}

func (r *recorder) observer() repository.BatchObserver {
	return repository.ObserverFuncs{
		Batch: func(b model.DeltaBatch) { r.batches <- b },
		Error: func(err error) { r.errs <- err },
	}
}

func (r *recorder) next(t *testing.T) model.DeltaBatch {
	t.Helper()
	select {
	case b := <-r.batches:
		return b
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
	return model.DeltaBatch{}
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := wsclient.New("ftp://example.com", nil)
	assert.Error(t, err)
	_, err = wsclient.New("://nope", nil)
	assert.Error(t, err)
}

func TestClient_AuthAndProfiles(t *testing.T) {
	_, baseURL := startDevStore(t)
	c := newClient(t, baseURL)
	ctx := context.Background()

	identity, err := c.SignUp(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, identity.Token, c.Token())

	_, err = c.GetProfile(ctx, identity.UID)
	assert.True(t, errors.Is(err, apperrors.ErrProfileNotFound), "got %v", err)

	profile := &sessionmodel.Profile{Identity: identity.UID, DisplayName: "Ana", Email: identity.Email, AccessLevel: sessionmodel.AccessLevelUser}
	require.NoError(t, c.SaveProfile(ctx, profile))
	got, err := c.GetProfile(ctx, identity.UID)
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	_, err = c.GetProfile(ctx, "someone-else")
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Token())

	_, err = c.SignIn(ctx, "ana@example.com", "wrong-password")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))

	_, err = c.SignIn(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token())
}

func TestClient_ListenAndWrite(t *testing.T) {
	store, baseURL := startDevStore(t)
	c := newClient(t, baseURL)
	ctx := context.Background()

	identity, err := c.SignUp(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	rec := newRecorder()
	reg, err := c.Listen(ctx, model.OwnerQuery(model.CollectionFeedbacks, identity.UID), rec.observer())
	require.NoError(t, err)
	assert.Empty(t, rec.next(t).Changes, "initial batch is delivered even when empty")

	id, err := c.Write(ctx, model.CollectionFeedbacks, map[string]interface{}{
		model.FieldUserID:    identity.UID,
		model.FieldName:      "Ana",
		model.FieldRating:    5,
		model.FieldComment:   "written through the dev store",
		model.FieldCreatedAt: model.ServerTimestamp,
	})
	require.NoError(t, err)

	pending := rec.next(t)
	require.Len(t, pending.Changes, 1)
	assert.Equal(t, id, pending.Changes[0].Document.ID)
	assert.True(t, model.IsServerTimestamp(pending.Changes[0].Document.Data[model.FieldCreatedAt]))

	resolved := rec.next(t)
	require.Len(t, resolved.Changes, 1)
	assert.Equal(t, model.ChangeModified, resolved.Changes[0].Type)
	normalized, err := model.Normalize(resolved.Changes[0].Document)
	require.NoError(t, err)
	assert.False(t, normalized.Pending())

	reg.Remove()
	reg.Remove()
	require.Eventually(t, func() bool { return store.ListenerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_ListenRejectedByRules(t *testing.T) {
	_, baseURL := startDevStore(t)
	c := newClient(t, baseURL)
	ctx := context.Background()

	_, err := c.SignUp(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	_, err = c.Listen(ctx, model.OwnerQuery(model.CollectionFeedbacks, "someone-else"), newRecorder().observer())
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "got %v", err)

	_, err = c.Write(ctx, model.CollectionFeedbacks, map[string]interface{}{model.FieldUserID: "someone-else"})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "got %v", err)
}

func TestClient_ServerInterruptReportsError(t *testing.T) {
	store, baseURL := startDevStore(t)
	c := newClient(t, baseURL)
	ctx := context.Background()

	identity, err := c.SignUp(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)
	rec := newRecorder()
	reg, err := c.Listen(ctx, model.OwnerQuery(model.CollectionFeedbacks, identity.UID), rec.observer())
	require.NoError(t, err)
	defer reg.Remove()
	rec.next(t)

	store.Interrupt(errors.New("backend restarted"))
	select {
	case err := <-rec.errs:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("error not delivered")
	}
}

func TestClient_UnreachableStore(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	_, err := c.SignIn(context.Background(), "ana@example.com", "secret123")
	assert.True(t, apperrors.IsTransport(err))

	_, err = c.Listen(context.Background(), model.OwnerQuery(model.CollectionFeedbacks, "u1"), newRecorder().observer())
	assert.True(t, apperrors.IsTransport(err))
}

// The remote backend drives the same client core as the in-process stores.
func TestClient_DrivesClientCore(t *testing.T) {
	_, baseURL := startDevStore(t)
	c := newClient(t, baseURL)
	ctx := context.Background()

	bus := eventbus.NewEventBus(nil)
	sessions := session.NewStore(nil)
	authUC := authusecase.NewAuthUsecase(c, c, sessions, bus, nil)
	live := usecase.NewLiveQuery(c, sessions, bus, nil, model.CollectionFeedbacks)
	submission := usecase.NewSubmissionPipeline(c, sessions, bus, nil, model.CollectionFeedbacks)
	require.NoError(t, live.Start(ctx))
	defer live.Stop()

	_, err := authUC.Register(ctx, authusecase.RegisterRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret1", Confirm: "secret1",
	})
	require.NoError(t, err)
	profile, err := authUC.Login(ctx, authusecase.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	id, err := submission.Submit(ctx, usecase.SubmitRequest{Rating: 4, Comment: "feedback over the wire"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok := live.Snapshot().Find(id)
		return ok && !r.Pending()
	}, 3*time.Second, 10*time.Millisecond)
	snap := live.Snapshot()
	assert.Equal(t, profile.Identity, snap.Owner())
	r, _ := snap.Find(id)
	assert.Equal(t, "Ana", r.DisplayName)

	require.NoError(t, authUC.SignOut(ctx))
	assert.Equal(t, 0, live.Snapshot().Len())
}
