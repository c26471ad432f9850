package directory

import (
	"context"

	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// UserCollection is the document store collection backing the directory.
const UserCollection = "user"

// UserFields are the queryable fields of the user collection.
var UserFields = []string{"email", "display_name", "claims"}

var roleClaims = map[string]bool{"admin": true, "editor": true, "requester": true}

// StoreDirectory is a directory backed by the document store. User records
// live in their own collection, keyed by the identity provider subject id.
type StoreDirectory struct {
	store docstore.Store
}

// NewStoreDirectory creates a directory on top of the given store.
func NewStoreDirectory(store docstore.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// User returns the user with the given id, or ErrUserNotFound.
func (d *StoreDirectory) User(ctx context.Context, id string) (*User, error) {
	fields, err := d.store.Get(ctx, UserCollection, id)
	if err == docstore.ErrNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return userFromFields(id, fields), nil
}

// Users lists all user records.
func (d *StoreDirectory) Users(ctx context.Context) ([]User, error) {
	documents, err := d.store.List(ctx, UserCollection)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(documents))
	for _, document := range documents {
		users = append(users, *userFromFields(document.ID, document.Fields))
	}
	return users, nil
}

// SetClaim sets one boolean role claim on the user.
func (d *StoreDirectory) SetClaim(ctx context.Context, id, claim string, value bool) error {
	if !roleClaims[claim] {
		return ErrInvalidClaim
	}
	user, err := d.User(ctx, id)
	if err != nil {
		return err
	}
	claims := user.Claims
	if claims == nil {
		claims = map[string]bool{}
	}
	claims[claim] = value
	err = d.store.Update(ctx, UserCollection, id, map[string]interface{}{"claims": claims})
	if err == docstore.ErrNotFound {
		return ErrUserNotFound
	}
	if err == nil {
		logger.FromContext(ctx).Infof("set claim '%s'=%t for user '%s'", claim, value, id)
	}
	return err
}

// UpdateUser applies a partial update to the user record.
func (d *StoreDirectory) UpdateUser(ctx context.Context, id string, update UserUpdate) error {
	fields := map[string]interface{}{}
	if update.DisplayName != nil {
		fields["display_name"] = *update.DisplayName
	}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if len(fields) == 0 {
		return nil
	}
	err := d.store.Update(ctx, UserCollection, id, fields)
	if err == docstore.ErrNotFound {
		return ErrUserNotFound
	}
	return err
}

func userFromFields(id string, fields map[string]interface{}) *User {
	user := User{ID: id, Claims: map[string]bool{}}
	if email, ok := fields["email"].(string); ok {
		user.Email = email
	}
	if displayName, ok := fields["display_name"].(string); ok {
		user.DisplayName = displayName
	}
	if claims, ok := fields["claims"].(map[string]interface{}); ok {
		for claim, value := range claims {
			if b, ok := value.(bool); ok {
				user.Claims[claim] = b
			}
		}
	}
	return &user
}
