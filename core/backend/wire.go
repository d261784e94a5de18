package backend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/smis/core/user"
)

// Wire formats of the auth API.
type (
	UserMetadata struct {
		Name      string `json:"name,omitempty"`
		Phone     string `json:"phone,omitempty"`
		Role      string `json:"role,omitempty"`
		AvatarURL string `json:"avatar_url,omitempty"`
	}

	UserJSON struct {
		ID           string       `json:"id"`
		Aud          string       `json:"aud"`
		Role         string       `json:"role"`
		Email        string       `json:"email"`
		UserMetadata UserMetadata `json:"user_metadata"`
		CreatedAt    time.Time    `json:"created_at"`
		UpdatedAt    time.Time    `json:"updated_at"`
		LastSignInAt *time.Time   `json:"last_sign_in_at,omitempty"`
	}

	SessionJSON struct {
		Session
		User UserJSON `json:"user"`
	}

	SignUpJSON struct {
		Email    string       `json:"email"`
		Password string       `json:"password"`
		Data     UserMetadata `json:"data"`
	}

	UserAttributesJSON struct {
		Email    *string                `json:"email,omitempty"`
		Password *string                `json:"password,omitempty"`
		Data     map[string]interface{} `json:"data,omitempty"`
	}
)

func NewUserJSON(usr user.User) UserJSON {
	uj := UserJSON{
		ID:    usr.ID,
		Aud:   "authenticated",
		Role:  "authenticated",
		Email: usr.Email,
		UserMetadata: UserMetadata{
			Name:      usr.Name,
			Phone:     usr.Phone,
			Role:      usr.Role,
			AvatarURL: usr.AvatarURL,
		},
		CreatedAt: usr.CreatedAt,
		UpdatedAt: usr.UpdatedAt,
	}
	if !usr.LastSignInAt.IsZero() {
		t := usr.LastSignInAt
		uj.LastSignInAt = &t
	}
	return uj
}

func (uj UserJSON) User() user.User {
	usr := user.User{
		ID:        uj.ID,
		Email:     uj.Email,
		Name:      uj.UserMetadata.Name,
		Phone:     uj.UserMetadata.Phone,
		Role:      uj.UserMetadata.Role,
		AvatarURL: uj.UserMetadata.AvatarURL,
		CreatedAt: uj.CreatedAt,
		UpdatedAt: uj.UpdatedAt,
	}
	if usr.Role == "" {
		usr.Role = user.DefaultRole
	}
	if uj.LastSignInAt != nil {
		usr.LastSignInAt = *uj.LastSignInAt
	}
	return usr
}

func NewSessionJSON(sess Session) SessionJSON {
	return SessionJSON{Session: sess, User: NewUserJSON(sess.User)}
}

// Decode returns the session with its principal.
func (sj SessionJSON) Decode() *Session {
	sess := sj.Session
	sess.User = sj.User.User()
	return &sess
}

func NewSignUpJSON(nu user.NewUser) SignUpJSON {
	return SignUpJSON{
		Email:    nu.Email,
		Password: nu.Password,
		Data:     UserMetadata{Name: nu.Name, Phone: nu.Phone, Role: nu.Role},
	}
}

func (sj SignUpJSON) NewUser() user.NewUser {
	return user.NewUser{
		Email:    sj.Email,
		Password: sj.Password,
		Name:     sj.Data.Name,
		Phone:    sj.Data.Phone,
		Role:     sj.Data.Role,
	}
}

func NewUserAttributesJSON(attrs user.Attributes) UserAttributesJSON {
	aj := UserAttributesJSON{Email: attrs.Email, Password: attrs.Password}
	data := make(map[string]interface{})
	if attrs.Name != nil {
		data["name"] = *attrs.Name
	}
	if attrs.Phone != nil {
		data["phone"] = *attrs.Phone
	}
	if attrs.AvatarURL != nil {
		data["avatar_url"] = *attrs.AvatarURL
	}
	if len(data) > 0 {
		aj.Data = data
	}
	return aj
}

// Attributes ignores metadata keys the dashboard does not manage.
func (aj UserAttributesJSON) Attributes() user.Attributes {
	attrs := user.Attributes{Email: aj.Email, Password: aj.Password}
	str := func(key string) *string {
		if v, ok := aj.Data[key].(string); ok {
			return &v
		}
		return nil
	}
	attrs.Name = str("name")
	attrs.Phone = str("phone")
	attrs.AvatarURL = str("avatar_url")
	return attrs
}

// Error bodies of the auth, rest and storage APIs.
type (
	AuthErrorJSON struct {
		Code      int    `json:"code"`
		ErrorCode string `json:"error_code,omitempty"`
		Msg       string `json:"msg"`
	}

	RestErrorJSON struct {
		Code    string  `json:"code"`
		Message string  `json:"message"`
		Details *string `json:"details"`
		Hint    *string `json:"hint"`
	}

	StorageErrorJSON struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}
)

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func NewAuthErrorJSON(e *Error) AuthErrorJSON {
	return AuthErrorJSON{Code: e.Status, ErrorCode: e.Code, Msg: e.Error()}
}

func NewRestErrorJSON(e *Error) RestErrorJSON {
	return RestErrorJSON{Code: e.Code, Message: e.Error(), Details: optional(e.Details), Hint: optional(e.Hint)}
}

func NewStorageErrorJSON(e *Error) StorageErrorJSON {
	return StorageErrorJSON{StatusCode: strconv.Itoa(e.Status), Error: e.Code, Message: e.Error()}
}

// DecodeError reads any of the error bodies. A body that is not JSON becomes the message.
func DecodeError(status int, body []byte) *Error {
	e := &Error{Status: status}
	var raw struct {
		Code             json.RawMessage `json:"code"` // a number in auth errors
		ErrorCode        string          `json:"error_code"`
		Msg              string          `json:"msg"`
		Message          string          `json:"message"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Details          *string         `json:"details"`
		Hint             *string         `json:"hint"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	var code string
	if len(raw.Code) > 0 && raw.Code[0] == '"' {
		_ = json.Unmarshal(raw.Code, &code)
	}
	switch {
	case raw.ErrorCode != "":
		e.Code = raw.ErrorCode
	case code != "":
		e.Code = code
	case raw.Error != "" && raw.Message != "":
		e.Code = raw.Error
	}
	for _, msg := range []string{raw.Msg, raw.Message, raw.ErrorDescription, raw.Error} {
		if msg != "" {
			e.Message = msg
			break
		}
	}
	if raw.Details != nil {
		e.Details = *raw.Details
	}
	if raw.Hint != nil {
		e.Hint = *raw.Hint
	}
	return e
}
