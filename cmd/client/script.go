package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	authusecase "feedback-sync/internal/auth/usecase"
	"feedback-sync/internal/di"
	"feedback-sync/internal/feedback/usecase"
	"feedback-sync/internal/shared/logger"

	"github.com/google/uuid"
)

const scriptPassword = "demo-password"

// runScript registers a throwaway account, signs in, submits one record,
// waits for it to be committed and prints the resulting snapshot.
func runScript(ctx context.Context, c *di.Container, log logger.Logger) error {
	email := fmt.Sprintf("demo+%s@example.com", uuid.NewString()[:8])

	if _, err := c.Auth.Register(ctx, authusecase.RegisterRequest{
		Name:     "Demo User",
		Email:    email,
		Password: scriptPassword,
		Confirm:  scriptPassword,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	profile, err := c.Auth.Login(ctx, authusecase.LoginRequest{Email: email, Password: scriptPassword})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Infof("signed in as %s (%s), screen %s", profile.DisplayName, profile.Identity, c.Navigation.Screen())

	var id atomic.Value
	id.Store("")
	committed := make(chan struct{}, 1)
	isCommitted := func() bool {
		r, ok := c.LiveQuery.Snapshot().Find(id.Load().(string))
		return ok && !r.Pending()
	}
	unsubscribe := c.LiveQuery.Subscribe(func(u usecase.Update) {
		if r, ok := u.Snapshot.Find(id.Load().(string)); ok && !r.Pending() {
			select {
			case committed <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	recordID, err := c.Submissions.Submit(ctx, usecase.SubmitRequest{
		Rating:  5,
		Comment: "submitted by the scripted client session",
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	id.Store(recordID)

	if !isCommitted() {
		select {
		case <-committed:
		case <-time.After(10 * time.Second):
			return fmt.Errorf("record %s was not committed in time", recordID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, r := range c.LiveQuery.Snapshot().Records() {
		created := "pending"
		if r.CreatedAt != nil {
			created = r.CreatedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %d/5  %-20s %s  %q\n", r.ID, r.Rating, r.DisplayName, created, r.Comment)
	}

	if err := c.Auth.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	log.Infof("signed out, screen %s", c.Navigation.Screen())
	return nil
}
