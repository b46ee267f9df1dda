// Package store persists identity records and SOS incidents in the plugin KV store.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mattermost/mattermost/server/public/plugin"
)

// ErrInvalidRegistration wraps every registration validation failure.
var ErrInvalidRegistration = errors.New("invalid registration")

// maskedIDLength is the displayed length of a masked national ID.
const maskedIDLength = 13

// Identity is the registered user's record. It is immutable until logout.
type Identity struct {
	FullName   string `json:"fullName" validate:"required,max=128"`
	IDNumber   string `json:"idNumber" validate:"required,alphanum,max=32"`
	Phone      string `json:"phone" validate:"required,e164"`
	Email      string `json:"email" validate:"required,email"`
	IsVerified bool   `json:"isVerified"`
}

// MaskedID returns the national ID with all but the last four characters
// replaced by '*', padded to 13 characters.
func (i Identity) MaskedID() string {
	id := []rune(i.IDNumber)
	tail := id
	if len(id) > 4 {
		tail = id[len(id)-4:]
	}

	stars := maskedIDLength - len(tail)
	if stars < 0 {
		stars = 0
	}
	return strings.Repeat("*", stars) + string(tail)
}

// Masked returns a copy safe for display to other users.
func (i Identity) Masked() Identity {
	masked := i
	masked.IDNumber = i.MaskedID()
	return masked
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func identityValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Normalize trims whitespace from every field.
func (i Identity) Normalize() Identity {
	return Identity{
		FullName:   strings.TrimSpace(i.FullName),
		IDNumber:   strings.TrimSpace(i.IDNumber),
		Phone:      strings.ReplaceAll(strings.TrimSpace(i.Phone), " ", ""),
		Email:      strings.TrimSpace(i.Email),
		IsVerified: i.IsVerified,
	}
}

// Validate checks the record. All failures wrap ErrInvalidRegistration.
func (i Identity) Validate() error {
	err := identityValidator().Struct(i)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRegistration, strings.Join(fields, ", "))
	}

	return fmt.Errorf("%w: %s", ErrInvalidRegistration, err.Error())
}

// IdentityStore persists one identity record per Mattermost user.
type IdentityStore struct {
	api plugin.API
}

// NewIdentityStore creates a new identity store
func NewIdentityStore(api plugin.API) *IdentityStore {
	return &IdentityStore{api: api}
}

func identityKey(userID string) string {
	return fmt.Sprintf("guardian_user_%s", userID)
}

// Save stores the identity record for userID
func (s *IdentityStore) Save(userID string, identity Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if appErr := s.api.KVSet(identityKey(userID), data); appErr != nil {
		return fmt.Errorf("failed to save identity: %w", appErr)
	}

	return nil
}

// Load retrieves the identity record for userID
// Returns nil if no identity is stored
func (s *IdentityStore) Load(userID string) (*Identity, error) {
	data, appErr := s.api.KVGet(identityKey(userID))
	if appErr != nil {
		return nil, fmt.Errorf("failed to get identity: %w", appErr)
	}

	if data == nil {
		return nil, nil
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}

	return &identity, nil
}

// Delete removes the identity record for userID
func (s *IdentityStore) Delete(userID string) error {
	if appErr := s.api.KVDelete(identityKey(userID)); appErr != nil {
		return fmt.Errorf("failed to delete identity: %w", appErr)
	}
	return nil
}
