package class

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core"
)

// Table is the remote table holding classes.
const Table = "classes"

var (
	Levels = []string{"Nursery", "LKG", "UKG", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

	Subjects = []string{
		"English", "Mathematics", "Science", "Social Studies", "Hindi", "Bengali", "Computer Science",
		"Physical Education", "Art", "Music", "Dance", "Drama", "Sanskrit", "French", "Environmental Studies",
	}
)

// Class is a teaching group owned by one teacher.
type Class struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	Grade       null.String `json:"grade"`
	Subject     null.String `json:"subject"`
	Schedule    null.String `json:"schedule"`
	Room        null.String `json:"room"`
	TeacherID   string      `json:"teacher_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   null.Time   `json:"updated_at"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Grade       string `json:"grade" validate:"max=20"`
	Subject     string `json:"subject" validate:"max=100"`
	Schedule    string `json:"schedule" validate:"max=200"`
	Room        string `json:"room" validate:"max=50"`
}

func (nc *NewClass) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.Grade = core.CleanString(nc.Grade)
	nc.Subject = core.CleanString(nc.Subject)
	nc.Schedule = core.CleanString(nc.Schedule)
	nc.Room = core.CleanString(nc.Room)
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

// Record builds the insert payload; blank optional fields are sent as null.
func (nc NewClass) Record(teacherID string) core.Record {
	return core.Record{
		"name":        nc.Name,
		"description": nullable(nc.Description),
		"grade":       nullable(nc.Grade),
		"subject":     nullable(nc.Subject),
		"schedule":    nullable(nc.Schedule),
		"room":        nullable(nc.Room),
		"teacher_id":  teacherID,
	}
}

// Changes is a partial update of a Class. Nil fields are left untouched.
type Changes struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Grade       *string `json:"grade,omitempty" validate:"omitempty,max=20"`
	Subject     *string `json:"subject,omitempty" validate:"omitempty,max=100"`
	Schedule    *string `json:"schedule,omitempty" validate:"omitempty,max=200"`
	Room        *string `json:"room,omitempty" validate:"omitempty,max=50"`
}

func (c *Changes) Clean() {
	c.Name = core.CleanStringPtr(c.Name)
	c.Description = core.CleanStringPtr(c.Description)
	c.Grade = core.CleanStringPtr(c.Grade)
	c.Subject = core.CleanStringPtr(c.Subject)
	c.Schedule = core.CleanStringPtr(c.Schedule)
	c.Room = core.CleanStringPtr(c.Room)
}

func (c *Changes) Validate(validate *validator.Validate) error {
	return validate.Struct(c)
}

// Record builds the update payload with a refreshed updated_at.
func (c Changes) Record(now time.Time) core.Record {
	rec := core.Record{"updated_at": now.UTC()}
	if c.Name != nil {
		rec["name"] = *c.Name
	}
	for col, val := range map[string]*string{
		"description": c.Description,
		"grade":       c.Grade,
		"subject":     c.Subject,
		"schedule":    c.Schedule,
		"room":        c.Room,
	} {
		if val != nil {
			rec[col] = nullable(*val)
		}
	}
	return rec
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
