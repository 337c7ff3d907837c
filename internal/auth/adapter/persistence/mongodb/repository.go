package mongodb

import (
	"context"
	"errors"
	"time"

	"feedback-sync/internal/auth/domain/model"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the repository.
const (
	AccountsCollection = "accounts"
	ProfilesCollection = "users"
)

// profileDocument is the stored shape of users/{uid}.
type profileDocument struct {
	UID         string    `bson:"uid"`
	Name        string    `bson:"name"`
	Email       string    `bson:"email"`
	AccessLevel string    `bson:"accessLevel"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// MongoAuthRepository implements AccountRepository and ProfileRepository
// using MongoDB.
type MongoAuthRepository struct {
	accounts *mongo.Collection
	profiles *mongo.Collection
}

// NewMongoAuthRepository creates the repository and its indexes.
func NewMongoAuthRepository(ctx context.Context, db *mongo.Database) (*MongoAuthRepository, error) {
	repo := &MongoAuthRepository{
		accounts: db.Collection(AccountsCollection),
		profiles: db.Collection(ProfilesCollection),
	}

	emailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.accounts.Indexes().CreateOne(ctx, emailIndex); err != nil {
		return nil, err
	}

	uidIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "uid", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.profiles.Indexes().CreateOne(ctx, uidIndex); err != nil {
		return nil, err
	}

	return repo, nil
}

// CreateAccount inserts a credential record. The unique email index turns a
// second registration into email-taken.
func (r *MongoAuthRepository) CreateAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return apperrors.NewValidationError("account cannot be nil")
	}
	stored := *account
	stored.Email = model.NormalizeEmail(account.Email)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	if _, err := r.accounts.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrEmailTaken.New().WithDetail("email", stored.Email)
		}
		return err
	}
	return nil
}

// GetAccountByEmail retrieves an account by email
func (r *MongoAuthRepository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	if email == "" {
		return nil, apperrors.NewValidationError("email cannot be empty")
	}
	var account model.Account
	err := r.accounts.FindOne(ctx, bson.M{"email": model.NormalizeEmail(email)}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NewNotFoundError("account")
		}
		return nil, err
	}
	return &account, nil
}

// GetProfile loads users/{uid}.
func (r *MongoAuthRepository) GetProfile(ctx context.Context, uid string) (*sessionmodel.Profile, error) {
	if uid == "" {
		return nil, apperrors.NewValidationError("user ID cannot be empty")
	}
	var doc profileDocument
	err := r.profiles.FindOne(ctx, bson.M{"uid": uid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrProfileNotFound.New().WithDetail("uid", uid)
		}
		return nil, err
	}
	level, err := sessionmodel.ParseAccessLevel(doc.AccessLevel)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	return &sessionmodel.Profile{
		Identity:    doc.UID,
		DisplayName: doc.Name,
		Email:       doc.Email,
		AccessLevel: level,
	}, nil
}

// SaveProfile upserts users/{uid}, keeping the original createdAt.
func (r *MongoAuthRepository) SaveProfile(ctx context.Context, profile *sessionmodel.Profile) error {
	if profile == nil {
		return apperrors.NewValidationError("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	update := bson.M{
		"$set": bson.M{
			"uid":         profile.Identity,
			"name":        profile.DisplayName,
			"email":       profile.Email,
			"accessLevel": string(profile.AccessLevel),
		},
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}
	_, err := r.profiles.UpdateOne(ctx, bson.M{"uid": profile.Identity}, update, options.Update().SetUpsert(true))
	return err
}
