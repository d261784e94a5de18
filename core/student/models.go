package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core"
)

// Table is the remote table holding students.
const Table = "students"

// Student is enrolled in exactly one class.
type Student struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Identifier null.String `json:"identifier"` // roll number, admission number...
	ClassID    string      `json:"class_id"`
	TeacherID  string      `json:"teacher_id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  null.Time   `json:"updated_at"`
}

// NewStudent contains information needed to enroll a Student in the selected class.
type NewStudent struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Identifier string `json:"identifier" validate:"omitempty,min=2,max=50"`
}

func (ns *NewStudent) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Identifier = core.CleanString(ns.Identifier)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

func (ns NewStudent) Record(classID, teacherID string, now time.Time) core.Record {
	rec := core.Record{
		"name":       ns.Name,
		"identifier": nil,
		"class_id":   classID,
		"teacher_id": teacherID,
		"created_at": now.UTC(),
	}
	if ns.Identifier != "" {
		rec["identifier"] = ns.Identifier
	}
	return rec
}

// Changes is a partial update of a Student. Nil fields are left untouched.
type Changes struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Identifier *string `json:"identifier,omitempty" validate:"omitempty,max=50"` // "" clears it
}

func (c *Changes) Clean() {
	c.Name = core.CleanStringPtr(c.Name)
	c.Identifier = core.CleanStringPtr(c.Identifier)
}

func (c *Changes) Validate(validate *validator.Validate) error {
	return validate.Struct(c)
}

func (c Changes) Record(now time.Time) core.Record {
	rec := core.Record{"updated_at": now.UTC()}
	if c.Name != nil {
		rec["name"] = *c.Name
	}
	if c.Identifier != nil {
		if *c.Identifier == "" {
			rec["identifier"] = nil
		} else {
			rec["identifier"] = *c.Identifier
		}
	}
	return rec
}
