package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// userDocument is the BSON shape of a user in the users collection.
type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserName     string             `bson:"userName"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash"`
	IsVerified   bool               `bson:"isVerified"`
	IsAdmin      bool               `bson:"isAdmin"`

	VerifyToken       string     `bson:"verifyToken,omitempty"`
	VerifyTokenExpiry *time.Time `bson:"verifyTokenExpiry,omitempty"`

	ForgotPasswordToken  string     `bson:"forgotPasswordToken,omitempty"`
	ForgotPasswordExpiry *time.Time `bson:"forgotPasswordExpiry,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d *userDocument) toUser() *User {
	return &User{
		ID:                      d.ID.Hex(),
		UserName:                d.UserName,
		Email:                   d.Email,
		PasswordHash:            d.PasswordHash,
		IsVerified:              d.IsVerified,
		IsAdmin:                 d.IsAdmin,
		VerifyTokenHash:         d.VerifyToken,
		VerifyTokenExpiry:       d.VerifyTokenExpiry,
		ForgotPasswordTokenHash: d.ForgotPasswordToken,
		ForgotPasswordExpiry:    d.ForgotPasswordExpiry,
		CreatedAt:               d.CreatedAt,
		UpdatedAt:               d.UpdatedAt,
	}
}

type mongoRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoRepository stores users in coll. Every operation is bounded by
// timeout.
func NewMongoRepository(coll *mongo.Collection, timeout time.Duration) Repository {
	return &mongoRepository{coll: coll, timeout: timeout}
}

// EnsureMongoIndexes creates the unique indexes that back the uniqueness
// guarantees of CreateUser.
func EnsureMongoIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userName", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_userName"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "verifyToken", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("verifyToken"),
		},
		{
			Keys:    bson.D{{Key: "forgotPasswordToken", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("forgotPasswordToken"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating user indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) CreateUser(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	doc := userDocument{
		UserName:     user.UserName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		IsVerified:   user.IsVerified,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("error inserting user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	user.ID = oid.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *mongoRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *mongoRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, bson.M{"userName": username})
}

func (r *mongoRepository) GetUserByVerifyToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.findOne(ctx, bson.M{
		"verifyToken":       tokenHash,
		"verifyTokenExpiry": bson.M{"$gt": now},
	})
}

func (r *mongoRepository) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.findOne(ctx, bson.M{
		"forgotPasswordToken":  tokenHash,
		"forgotPasswordExpiry": bson.M{"$gt": now},
	})
}

func (r *mongoRepository) SetVerifyToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.updateByID(ctx, userID, bson.M{
		"$set": bson.M{
			"verifyToken":       tokenHash,
			"verifyTokenExpiry": expiry,
		},
	})
}

func (r *mongoRepository) SetResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	return r.updateByID(ctx, userID, bson.M{
		"$set": bson.M{
			"forgotPasswordToken":  tokenHash,
			"forgotPasswordExpiry": expiry,
		},
	})
}

func (r *mongoRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.updateByID(ctx, userID, bson.M{
		"$set": bson.M{"isVerified": true},
		"$unset": bson.M{
			"verifyToken":       "",
			"verifyTokenExpiry": "",
		},
	})
}

func (r *mongoRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateByID(ctx, userID, bson.M{
		"$set": bson.M{"passwordHash": passwordHash},
		"$unset": bson.M{
			"forgotPasswordToken":  "",
			"forgotPasswordExpiry": "",
		},
	})
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}
	return doc.toUser(), nil
}

func (r *mongoRepository) updateByID(ctx context.Context, userID string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updatedAt"] = time.Now().UTC()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
