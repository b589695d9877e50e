package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/accounts"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestDocumentRoundTripFoldsIdentifiers(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &accounts.User{
		ID:           "u1",
		Username:     "Alice",
		Email:        "Alice@Example.com",
		PasswordHash: "$argon2id$...",
		Status:       accounts.UserStatusActive,
		Roles:        []string{accounts.RoleUser},
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	doc := toDocument(u)
	if doc.Email != "alice@example.com" || doc.Username != "alice" || doc.Status != "active" {
		t.Fatalf("unexpected document %+v", doc)
	}

	back, err := fromDocument(doc)
	if err != nil {
		t.Fatalf("fromDocument: %v", err)
	}
	if back.Status != accounts.UserStatusActive || back.PasswordHash != u.PasswordHash || !back.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user %+v", back)
	}
}

func TestFromDocumentRejectsUnknownStatus(t *testing.T) {
	if _, err := fromDocument(&userDocument{ID: "u1", Status: "banned"}); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestMapInsertError(t *testing.T) {
	dup := func(index string) error {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: accounts.users index: " + index + " dup key",
		}}}
	}

	if err := mapInsertError(dup(emailIndex)); !errors.Is(err, accounts.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if err := mapInsertError(dup(usernameIndex)); !errors.Is(err, accounts.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err := mapInsertError(errors.New("socket closed")); !errors.Is(err, accounts.ErrUserStoreUnavailable) {
		t.Fatalf("expected ErrUserStoreUnavailable, got %v", err)
	}
}
