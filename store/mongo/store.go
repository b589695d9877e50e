package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/accounts"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// DefaultCollection is used when NewUserStore gets an empty name.
	DefaultCollection = "users"

	emailIndex    = "email_unique"
	usernameIndex = "username_unique"
)

type userDocument struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Status       string    `bson:"status"`
	Roles        []string  `bson:"roles"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// UserStore implements accounts.UserStore on a Mongo collection. Emails and
// usernames are stored normalized and kept unique by the indexes
// [UserStore.EnsureIndexes] creates. The underlying *mongo.Collection is
// goroutine-safe, and so is UserStore.
type UserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewUserStore returns a store on the named collection of db, or on
// DefaultCollection when collection is empty. It performs no I/O; call
// EnsureIndexes once before serving signups.
func NewUserStore(db *mongo.Database, collection string) *UserStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &UserStore{
		coll: db.Collection(collection),
		now:  time.Now,
	}
}

// Connect dials uri and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique identifier indexes. It is idempotent.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// FindByID loads the user with the given ID. It returns
// accounts.ErrUserNotFound when none exists and an error wrapping
// accounts.ErrUserStoreUnavailable for driver failures.
func (s *UserStore) FindByID(ctx context.Context, id string) (*accounts.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail looks up a normalized email. Errors are as for FindByID.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.findOne(ctx, bson.M{"email": accounts.NormalizeIdentifier(email)})
}

// FindByUsername looks up a normalized username. Errors are as for FindByID.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*accounts.User, error) {
	return s.findOne(ctx, bson.M{"username": accounts.NormalizeIdentifier(username)})
}

// Create inserts u with its identifiers normalized. A unique-index
// violation becomes accounts.ErrDuplicateUsername or
// accounts.ErrDuplicateEmail, so of two concurrent signups for the same
// email exactly one succeeds.
func (s *UserStore) Create(ctx context.Context, u *accounts.User) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(u)); err != nil {
		return mapInsertError(err)
	}
	return nil
}

// UpdateStatus sets the account status and bumps updatedAt. It returns
// accounts.ErrUserNotFound when no document has the ID.
func (s *UserStore) UpdateStatus(ctx context.Context, id string, status accounts.UserStatus) error {
	return s.updateOne(ctx, id, bson.M{"status": status.String()})
}

// UpdatePasswordHash replaces the stored hash and bumps updatedAt. Errors
// are as for UpdateStatus; concurrent updates are last-writer-wins.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, id, bson.M{"passwordHash": hash})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*accounts.User, error) {
	var doc userDocument
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return fromDocument(&doc)
}

func (s *UserStore) updateOne(ctx context.Context, id string, set bson.M) error {
	set["updatedAt"] = s.now().UTC()
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		return accounts.ErrUserNotFound
	}
	return nil
}

func toDocument(u *accounts.User) *userDocument {
	return &userDocument{
		ID:           u.ID,
		Username:     accounts.NormalizeIdentifier(u.Username),
		Email:        accounts.NormalizeIdentifier(u.Email),
		PasswordHash: u.PasswordHash,
		Status:       u.Status.String(),
		Roles:        append([]string(nil), u.Roles...),
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func fromDocument(doc *userDocument) (*accounts.User, error) {
	status, err := accounts.ParseUserStatus(doc.Status)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", doc.ID, err)
	}
	return &accounts.User{
		ID:           doc.ID,
		Username:     doc.Username,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Status:       status,
		Roles:        doc.Roles,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// mapInsertError turns a unique-index violation into the matching duplicate
// error. The index name is only available in the server's message.
func mapInsertError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return unavailable(err)
	}
	msg := err.Error()
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			msg += " " + e.Message
		}
	}
	switch {
	case strings.Contains(msg, usernameIndex):
		return accounts.ErrDuplicateUsername
	default:
		return accounts.ErrDuplicateEmail
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", accounts.ErrUserStoreUnavailable, err)
}
