package usecase

import (
	"context"
	"errors"
	"strings"

	"feedback-sync/internal/auth/domain/repository"
	"feedback-sync/internal/session"
	sessionmodel "feedback-sync/internal/session/model"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the registration request
type RegisterRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	Confirm     string `json:"confirm" validate:"required,eqfield=Password"`
	AccessLevel string `json:"accessLevel" validate:"omitempty,oneof=user admin"`
}

// AuthUsecaseInterface defines the contract for authentication use cases.
type AuthUsecaseInterface interface {
	Login(ctx context.Context, req LoginRequest) (*sessionmodel.Profile, error)
	Register(ctx context.Context, req RegisterRequest) (*sessionmodel.Profile, error)
	SignOut(ctx context.Context) error
}

// AuthUsecase drives sign-in, registration and sign-out, and is the only
// code that sets or clears the session store.
type AuthUsecase struct {
	provider repository.IdentityProvider
	profiles repository.ProfileRepository
	sessions *session.Store
	bus      eventbus.Bus
	logger   logger.Logger
}

// NewAuthUsecase creates a new instance of AuthUsecase.
func NewAuthUsecase(
	provider repository.IdentityProvider,
	profiles repository.ProfileRepository,
	sessions *session.Store,
	bus eventbus.Bus,
	log logger.Logger,
) *AuthUsecase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthUsecase{
		provider: provider,
		profiles: profiles,
		sessions: sessions,
		bus:      bus,
		logger:   log.WithComponent("auth"),
	}
}

// Login signs in, loads users/{uid} and sets the session. Invalid input is
// rejected before anything is published; a missing profile document fails
// the attempt with profile-not-found.
func (uc *AuthUsecase) Login(ctx context.Context, req LoginRequest) (*sessionmodel.Profile, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, contextkeys.OperationKey, "login")
	uc.emit(ctx, eventbus.EventTypeAuthStarted, eventbus.AuthPayload{Email: req.Email})

	identity, err := uc.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, uc.fail(ctx, req.Email, err, "sign in failed")
	}

	ctx = contextkeys.WithUserID(ctx, identity.UID)
	profile, err := uc.profiles.GetProfile(ctx, identity.UID)
	if err != nil {
		return nil, uc.fail(ctx, req.Email, err, "failed to load profile")
	}

	uc.logger.WithContext(ctx).Info("signed in")
	uc.sessions.Set(profile)
	current, _ := uc.sessions.Current()
	return &current, nil
}

// Register signs up and writes the profile document. It does not start a
// session; the user signs in afterwards.
func (uc *AuthUsecase) Register(ctx context.Context, req RegisterRequest) (*sessionmodel.Profile, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	level, err := sessionmodel.ParseAccessLevel(req.AccessLevel)
	if err != nil {
		return nil, apperrors.ErrInvalidRequest.New().WithDetail("accessLevel", req.AccessLevel)
	}
	ctx = context.WithValue(ctx, contextkeys.OperationKey, "register")
	uc.emit(ctx, eventbus.EventTypeAuthStarted, eventbus.AuthPayload{Email: req.Email})

	identity, err := uc.provider.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, uc.fail(ctx, req.Email, err, "sign up failed")
	}

	ctx = contextkeys.WithUserID(ctx, identity.UID)
	profile := &sessionmodel.Profile{
		Identity:    identity.UID,
		DisplayName: req.Name,
		Email:       identity.Email,
		AccessLevel: level,
	}
	if err := uc.profiles.SaveProfile(ctx, profile); err != nil {
		return nil, uc.fail(ctx, req.Email, err, "failed to save profile")
	}

	uc.logger.WithContext(ctx).Info("registered")
	uc.emit(ctx, eventbus.EventTypeAuthRegistered, eventbus.AuthPayload{Email: req.Email, Identity: identity.UID})
	return profile, nil
}

// SignOut signs out of the provider and clears the session. The session is
// cleared even when the provider fails; that error is still returned.
func (uc *AuthUsecase) SignOut(ctx context.Context) error {
	ctx = context.WithValue(ctx, contextkeys.OperationKey, "sign_out")
	var identity string
	if p, ok := uc.sessions.Current(); ok {
		identity = p.Identity
		ctx = contextkeys.WithUserID(ctx, identity)
	}

	providerErr := uc.provider.SignOut(ctx)
	if providerErr != nil {
		uc.logger.WithContext(ctx).Warnf("provider sign out failed: %v", providerErr)
	}

	uc.sessions.Clear()
	uc.emit(ctx, eventbus.EventTypeSessionSignedOut, eventbus.AuthPayload{Identity: identity, Err: providerErr})

	if providerErr != nil {
		return apperrors.WrapError(providerErr, "sign out failed")
	}
	return nil
}

func (uc *AuthUsecase) fail(ctx context.Context, email string, err error, message string) error {
	appErr := apperrors.WrapError(err, message)
	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"code": appErr.Code,
	}).Warnf("%s: %v", message, err)
	uc.emit(ctx, eventbus.EventTypeAuthFailed, eventbus.AuthPayload{Email: email, Err: appErr})
	return appErr
}

func (uc *AuthUsecase) emit(ctx context.Context, eventType string, payload eventbus.AuthPayload) {
	if uc.bus == nil {
		return
	}
	if err := uc.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventType, payload, "auth")); err != nil {
		uc.logger.WithContext(ctx).Warnf("publish %s: %v", eventType, err)
	}
}

// validateRequest runs the struct tags and folds every field failure into
// one invalid-request error. Passwords are never echoed back.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.ErrInvalidRequest.New().WithCause(err)
	}
	ve := apperrors.NewValidationErrors()
	for _, fe := range fieldErrs {
		var value interface{} = fe.Value()
		if fe.Field() == "Password" || fe.Field() == "Confirm" {
			value = nil
		}
		name := fieldName(fe.Field())
		ve.Add(name, name+" "+fieldMessage(fe), value)
	}
	return ve.ToAppError()
}

func fieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must have at least " + fe.Param() + " characters"
	case "eqfield":
		return "must match " + fieldName(fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
