/*Package directory abstracts the identity provider's user records.

The backend consumes it in two places: the /api endpoints administrate
users (roles, display names), and the operator resolves subject ids into
display names when shaping read responses.
*/
package directory

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when no user exists for the requested id.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidClaim is returned when a claim outside the known role claims
// should be set.
var ErrInvalidClaim = errors.New("custom claim invalid")

// User is one identity provider user record.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	Claims      map[string]bool `json:"claims"`
}

// UserUpdate describes a partial user update. Nil fields are left untouched.
type UserUpdate struct {
	DisplayName *string
	Email       *string
}

// Directory is the user record interface.
type Directory interface {
	// User returns the user with the given id, or ErrUserNotFound.
	User(ctx context.Context, id string) (*User, error)

	// Users lists all user records.
	Users(ctx context.Context) ([]User, error)

	// SetClaim sets one boolean role claim on the user. Claims outside
	// admin/editor/requester are rejected with ErrInvalidClaim.
	SetClaim(ctx context.Context, id, claim string, value bool) error

	// UpdateUser applies a partial update to the user record.
	UpdateUser(ctx context.Context, id string, update UserUpdate) error
}

// DisplayName resolves a subject id into a display name. Lookups never fail
// the caller: any error or empty name yields "Unknown".
func DisplayName(ctx context.Context, d Directory, id string) string {
	if d == nil || id == "" {
		return "Unknown"
	}
	user, err := d.User(ctx, id)
	if err != nil || user.DisplayName == "" {
		return "Unknown"
	}
	return user.DisplayName
}
