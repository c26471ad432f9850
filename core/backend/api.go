package backend

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/projekt-software-engineering/ticket-backend/core/access"
	"github.com/projekt-software-engineering/ticket-backend/core/directory"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

func (b *Backend) handleAPIRoutes() {
	nillog := logger.Default()
	nillog.Debugln("handle route: /api/setRole POST")
	nillog.Debugln("handle route: /api/setDisplayName POST")
	nillog.Debugln("handle route: /api/user GET")
	nillog.Debugln("handle route: /api/user/{id} GET,PUT")

	b.router.HandleFunc("/api/setRole", b.apiSetRole).Methods(http.MethodPost)
	b.router.HandleFunc("/api/setDisplayName", b.apiSetDisplayName).Methods(http.MethodPost)
	b.router.HandleFunc("/api/user", b.apiListUsers).Methods(http.MethodGet)
	b.router.HandleFunc("/api/user/{id}", b.apiReadUser).Methods(http.MethodGet)
	b.router.HandleFunc("/api/user/{id}", b.apiUpdateUser).Methods(http.MethodPut)
}

// apiIdentity authenticates the caller of an api endpoint. It returns nil
// if a response was already written.
func (b *Backend) apiIdentity(w http.ResponseWriter, r *http.Request) *access.Identity {
	identity := access.IdentityFromContext(r.Context())
	if identity == nil {
		errorMessage := "No Authorization header provided!"
		logger.FromContext(r.Context()).Errorln("not able to authenticate user:", errorMessage)
		b.respondText(w, http.StatusUnauthorized, errorMessage)
		return nil
	}
	return identity
}

func (b *Backend) apiForbidden(w http.ResponseWriter, r *http.Request) {
	errorMessage := "User does not have required rights to perform request!"
	logger.FromContext(r.Context()).Errorln(errorMessage)
	b.respondText(w, http.StatusForbidden, errorMessage)
}

// apiBody parses the body and enforces the required fields. It returns
// false if a response was already written.
func (b *Backend) apiBody(w http.ResponseWriter, r *http.Request, required []string) (map[string]interface{}, bool) {
	body := requestBody(r)
	if missingFields(body, required) {
		errorMessage := "Not all required fields are provided! Required fields are: " +
			strings.Join(required, ", ")
		logger.FromContext(r.Context()).Errorln(errorMessage)
		b.respondText(w, http.StatusBadRequest, errorMessage)
		return nil, false
	}
	return body, true
}

// apiSetRole handles POST /api/setRole. Only administrators assign roles.
func (b *Backend) apiSetRole(w http.ResponseWriter, r *http.Request) {
	identity := b.apiIdentity(w, r)
	if identity == nil {
		return
	}
	if !identity.HasRole(access.RoleAdmin) {
		b.apiForbidden(w, r)
		return
	}
	body, ok := b.apiBody(w, r, []string{"target_user_id", "role", "value"})
	if !ok {
		return
	}
	rlog := logger.FromContext(r.Context())

	targetUserID, _ := body["target_user_id"].(string)
	role, _ := body["role"].(string)
	value, _ := body["value"].(bool)
	err := b.users.SetClaim(r.Context(), targetUserID, role, value)
	if errors.Is(err, directory.ErrInvalidClaim) || errors.Is(err, directory.ErrUserNotFound) {
		rlog.WithError(err).Errorln("error while setting custom claims")
		b.respondText(w, http.StatusBadRequest, "User ID or custom claim invalid!")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("error while setting custom claims")
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.respondText(w, http.StatusOK, "")
}

// apiSetDisplayName handles POST /api/setDisplayName. Users rename
// themselves, administrators rename anyone.
func (b *Backend) apiSetDisplayName(w http.ResponseWriter, r *http.Request) {
	identity := b.apiIdentity(w, r)
	if identity == nil {
		return
	}
	body, ok := b.apiBody(w, r, []string{"target_user_id", "display_name"})
	if !ok {
		return
	}
	rlog := logger.FromContext(r.Context())

	targetUserID, _ := body["target_user_id"].(string)
	if !identity.HasRole(access.RoleAdmin) && targetUserID != identity.UserID {
		b.apiForbidden(w, r)
		return
	}
	displayName, _ := body["display_name"].(string)
	err := b.users.UpdateUser(r.Context(), targetUserID, directory.UserUpdate{DisplayName: &displayName})
	if errors.Is(err, directory.ErrUserNotFound) {
		rlog.WithError(err).Errorln("error while setting display name")
		b.respondText(w, http.StatusBadRequest, "User ID or invalid!")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("error while setting display name")
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.respondText(w, http.StatusOK, "")
}

// apiListUsers handles GET /api/user. Administrators only.
func (b *Backend) apiListUsers(w http.ResponseWriter, r *http.Request) {
	identity := b.apiIdentity(w, r)
	if identity == nil {
		return
	}
	if !identity.HasRole(access.RoleAdmin) {
		b.apiForbidden(w, r)
		return
	}
	users, err := b.users.Users(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot list users")
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	records := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		records = append(records, userRecord(&users[i]))
	}
	b.respondJSON(w, http.StatusOK, records)
}

// apiReadUser handles GET /api/user/{id}. Users read themselves,
// administrators read anyone.
func (b *Backend) apiReadUser(w http.ResponseWriter, r *http.Request) {
	identity := b.apiIdentity(w, r)
	if identity == nil {
		return
	}
	id := mux.Vars(r)["id"]
	if !identity.HasRole(access.RoleAdmin) && id != identity.UserID {
		b.apiForbidden(w, r)
		return
	}
	user, err := b.users.User(r.Context(), id)
	if errors.Is(err, directory.ErrUserNotFound) {
		b.respondText(w, http.StatusNotFound, "Element not found!")
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot load user")
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.respondJSON(w, http.StatusOK, userRecord(user))
}

// apiUpdateUser handles PUT /api/user/{id}, the general profile update.
// Users update themselves, administrators update anyone.
func (b *Backend) apiUpdateUser(w http.ResponseWriter, r *http.Request) {
	identity := b.apiIdentity(w, r)
	if identity == nil {
		return
	}
	body, ok := b.apiBody(w, r, []string{"display_name", "email"})
	if !ok {
		return
	}
	rlog := logger.FromContext(r.Context())

	id := mux.Vars(r)["id"]
	if !identity.HasRole(access.RoleAdmin) && id != identity.UserID {
		b.apiForbidden(w, r)
		return
	}
	displayName, _ := body["display_name"].(string)
	email, _ := body["email"].(string)
	err := b.users.UpdateUser(r.Context(), id, directory.UserUpdate{
		DisplayName: &displayName,
		Email:       &email,
	})
	if errors.Is(err, directory.ErrUserNotFound) {
		rlog.WithError(err).Errorln("error while updating user")
		b.respondText(w, http.StatusBadRequest, "User ID invalid!")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("error while updating user")
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}

// userRecord shapes a directory user into the api response form.
func userRecord(user *directory.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"admin":        user.Claims["admin"],
		"editor":       user.Claims["editor"],
		"requester":    user.Claims["requester"],
	}
}
