package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
)

func newTestValidator(strict bool) func(interface{}) error {
	validate, translator := core.NewValidator()
	RegisterValidators(validate, translator, PasswordPolicy{Strict: strict})
	return func(s interface{}) error {
		return core.TranslateErrors(validate.Struct(s), translator)
	}
}

func TestNewUserValidation(t *testing.T) {
	validate := newTestValidator(true)
	base := NewUser{Email: "ada@school.test", Password: "Xk9#mQ2!vL", Name: "Ada Lovelace"}

	tests := []struct {
		name      string
		mutate    func(nu *NewUser)
		wantField string
		wantMsg   string
	}{
		{name: "valid", mutate: func(nu *NewUser) {}},
		{name: "missing email", mutate: func(nu *NewUser) { nu.Email = "" }, wantField: "email", wantMsg: "this field is required"},
		{name: "invalid email", mutate: func(nu *NewUser) { nu.Email = "ada" }, wantField: "email"},
		{name: "short name", mutate: func(nu *NewUser) { nu.Name = "A" }, wantField: "name"},
		{name: "invalid phone", mutate: func(nu *NewUser) { nu.Phone = "call me" }, wantField: "phone", wantMsg: "phone must be a valid phone number"},
		{name: "short password", mutate: func(nu *NewUser) { nu.Password = "Xk9#m" }, wantField: "password", wantMsg: pwdMinLenText},
		{name: "password with space", mutate: func(nu *NewUser) { nu.Password = "Xk9#m Q2!vL" }, wantField: "password", wantMsg: pwdNoSpaceText},
		{name: "numeric password", mutate: func(nu *NewUser) { nu.Password = "8675309123" }, wantField: "password", wantMsg: pwdNotAllNumText},
		{name: "simple password", mutate: func(nu *NewUser) { nu.Password = "xkcdmq2vlz" }, wantField: "password", wantMsg: pwdComplexityText},
		{name: "password like email", mutate: func(nu *NewUser) { nu.Password = "Ada@school.test1" }, wantField: "password", wantMsg: pwdAttrSimText},
		{name: "common password", mutate: func(nu *NewUser) { nu.Password = "P@ssw0rd" }, wantField: "password", wantMsg: pwdNoCommonText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := base
			tt.mutate(&nu)
			err := validate(nu)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, vErr.Fields[0].Error)
			}
		})
	}
}

func TestPasswordPolicyNotStrict(t *testing.T) {
	validate := newTestValidator(false)
	err := validate(NewUser{Email: "ada@school.test", Password: "xkcdmq2vlz"})
	assert.NoError(t, err)
}

func TestAttributesValidation(t *testing.T) {
	validate := newTestValidator(true)
	weak := "short"
	strong := "Xk9#mQ2!vL"
	name := "Ada Lovelace"

	assert.NoError(t, validate(Attributes{Name: &name}))
	assert.NoError(t, validate(Attributes{Password: &strong}))

	var vErr *core.ValidationError
	require.ErrorAs(t, validate(Attributes{Password: &weak}), &vErr)
	assert.Equal(t, "password", vErr.Fields[0].Field)
}

func TestNewUserClean(t *testing.T) {
	nu := NewUser{Email: "  Ada@School.TEST ", Password: " Xk9#mQ2!vL ", Name: " Ada ", Phone: " +254 700 000000 ", Role: RoleAdmin}
	nu.Clean()
	assert.Equal(t, NewUser{
		Email:    "ada@school.test",
		Password: "Xk9#mQ2!vL",
		Name:     "Ada",
		Phone:    "+254 700 000000",
		Role:     RoleTeacher,
	}, nu)
}

func TestAttributesApply(t *testing.T) {
	name := "Grace"
	usr := User{ID: "1", Email: "g@school.test", Name: "G"}
	got := Attributes{Name: &name}.Apply(usr)
	assert.Equal(t, "Grace", got.Name)
	assert.Equal(t, "g@school.test", got.Email)
	assert.True(t, Attributes{}.IsEmpty())
	assert.False(t, Attributes{Name: &name}.IsEmpty())
}

func TestRoleName(t *testing.T) {
	assert.Equal(t, "Teacher", RoleName(RoleTeacher))
	assert.Equal(t, "Parent", RoleName(RoleParent))
	assert.Equal(t, "janitor", RoleName("janitor"))
}
