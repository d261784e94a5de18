package update

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core"
)

// Table is the remote table holding updates.
const Table = "updates"

// Categories
const (
	CategoryAcademic   = "Academic"
	CategoryBehavioral = "Behavioral"
	CategoryAttendance = "Attendance"
	CategoryEvent      = "Event"
	CategoryHoliday    = "Holiday"
	CategoryExam       = "Exam"
	CategoryAssignment = "Assignment"
	CategoryGeneral    = "General"
	CategoryOther      = "Other"

	DefaultCategory = CategoryAcademic
)

var Categories = []string{
	CategoryAcademic, CategoryBehavioral, CategoryAttendance, CategoryEvent, CategoryHoliday,
	CategoryExam, CategoryAssignment, CategoryGeneral, CategoryOther,
}

// Update is a note posted by a teacher to one class.
type Update struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt null.Time `json:"updated_at"`
}

// NewUpdate contains information needed to post an Update to the selected class.
type NewUpdate struct {
	Text     string `json:"text" validate:"required,min=10,max=1000"`
	Category string `json:"category" validate:"omitempty,oneof=Academic Behavioral Attendance Event Holiday Exam Assignment General Other"`
}

// Clean trims the inputs and falls back to the DefaultCategory.
func (nu *NewUpdate) Clean() {
	nu.Text = core.CleanString(nu.Text)
	nu.Category = core.CleanString(nu.Category)
	if nu.Category == "" {
		nu.Category = DefaultCategory
	}
}

func (nu *NewUpdate) Validate(validate *validator.Validate) error {
	return validate.Struct(nu)
}

func (nu NewUpdate) Record(classID, teacherID string, now time.Time) core.Record {
	category := nu.Category
	if category == "" {
		category = DefaultCategory
	}
	return core.Record{
		"text":       nu.Text,
		"category":   category,
		"class_id":   classID,
		"teacher_id": teacherID,
		"created_at": now.UTC(),
	}
}

// Changes is a partial update of an Update. Nil fields are left untouched.
type Changes struct {
	Text     *string `json:"text,omitempty" validate:"omitempty,min=10,max=1000"`
	Category *string `json:"category,omitempty" validate:"omitempty,oneof=Academic Behavioral Attendance Event Holiday Exam Assignment General Other"`
}

func (c *Changes) Clean() {
	c.Text = core.CleanStringPtr(c.Text)
	c.Category = core.CleanStringPtr(c.Category)
}

func (c *Changes) Validate(validate *validator.Validate) error {
	return validate.Struct(c)
}

func (c Changes) Record(now time.Time) core.Record {
	rec := core.Record{"updated_at": now.UTC()}
	if c.Text != nil {
		rec["text"] = *c.Text
	}
	if c.Category != nil {
		rec["category"] = *c.Category
	}
	return rec
}
