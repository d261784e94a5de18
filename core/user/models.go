package user

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"

	// DefaultRole is given to every account created from the dashboard.
	DefaultRole = RoleTeacher
)

var Roles = []Role{
	{Name: "Admin", Value: RoleAdmin},
	{Name: "Teacher", Value: RoleTeacher},
	{Name: "Student", Value: RoleStudent},
	{Name: "Parent", Value: RoleParent},
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RoleName returns the display name of a role value; unknown values are returned as is.
func RoleName(value string) string {
	for _, r := range Roles {
		if r.Value == value {
			return r.Name
		}
	}
	return value
}

// User is the authenticated principal of a dashboard session.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`      // UTC
	UpdatedAt    time.Time `json:"updated_at"`      // UTC
	LastSignInAt time.Time `json:"last_sign_in_at"` // UTC
}

// DisplayName falls back to the email when no name was given at sign-up.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// NewUser contains information needed to sign up a new User.
type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Role     string `json:"role" validate:"omitempty,oneof=admin teacher student parent"`
}

// Clean trims all string inputs and tags the account with the DefaultRole.
// The password is trimmed too: the dashboard never submits leading or trailing blanks.
func (nu *NewUser) Clean() {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Password = core.CleanString(nu.Password)
	nu.Name = core.CleanString(nu.Name)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Role = DefaultRole
}

// Validate applies the field rules and the password policy; it is run by the hosted backend.
func (nu *NewUser) Validate(validate *validator.Validate) error {
	return validate.Struct(nu)
}

// Attributes are the user fields the backend accepts on update. Nil fields are left untouched.
type Attributes struct {
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Password  *string `json:"password,omitempty"`
	Name      *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,phone"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

func (a Attributes) IsEmpty() bool {
	return a.Email == nil && a.Password == nil && a.Name == nil && a.Phone == nil && a.AvatarURL == nil
}

// Apply merges the set attributes into usr.
func (a Attributes) Apply(usr User) User {
	if a.Email != nil {
		usr.Email = *a.Email
	}
	if a.Name != nil {
		usr.Name = *a.Name
	}
	if a.Phone != nil {
		usr.Phone = *a.Phone
	}
	if a.AvatarURL != nil {
		usr.AvatarURL = *a.AvatarURL
	}
	return usr
}

// Avatar is a picture uploaded along with a profile update.
type Avatar struct {
	Filename string
	Content  io.Reader
}

// ProfileUpdate is what the settings page may change on the current principal.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Phone  *string
	Avatar *Avatar
}

// Attributes returns the cleaned remote payload, without the avatar.
func (pu ProfileUpdate) Attributes() Attributes {
	return Attributes{
		Name:  core.CleanStringPtr(pu.Name),
		Email: core.CleanStringPtr(pu.Email, true /* lower */),
		Phone: core.CleanStringPtr(pu.Phone),
	}
}
