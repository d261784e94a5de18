package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/store"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
)

const timeLayout = "2006-01-02 15:04"

// renderer writes styled output. Colors are dropped when out is not a terminal.
type renderer struct {
	out io.Writer

	title   lipgloss.Style
	header  lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	accent  lipgloss.Style
	box     lipgloss.Style
}

func newRenderer(out io.Writer) *renderer {
	r := lipgloss.NewRenderer(out)
	return &renderer{
		out:     out,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header:  r.NewStyle().Bold(true).Underline(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")),
		accent:  r.NewStyle().Foreground(lipgloss.Color("13")),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (r *renderer) println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

func (r *renderer) muted(s string)      { r.println(r.dim.Render(s)) }
func (r *renderer) error(err error)     { r.println(r.failure.Render("✗ " + err.Error())) }
func (r *renderer) successMsg(s string) { r.println(r.success.Render("✓ " + s)) }

// prompt shows who is logged in and the selected class.
func (r *renderer) prompt(st store.State) {
	var parts []string
	if st.CurrentUser != nil {
		parts = append(parts, r.accent.Render(st.CurrentUser.DisplayName()))
	}
	if st.SelectedClass != nil {
		parts = append(parts, r.title.Render(st.SelectedClass.Name))
	}
	parts = append(parts, "smis> ")
	_, _ = fmt.Fprint(r.out, strings.Join(parts, " "))
}

func (r *renderer) usage(commands map[string]command) {
	names := make([]string, 0, len(commands))
	width := 0
	for name, cmd := range commands {
		names = append(names, name)
		if len(cmd.usage) > width {
			width = len(cmd.usage)
		}
	}
	sort.Strings(names)

	r.println(r.title.Render("Commands:"))
	for _, name := range names {
		cmd := commands[name]
		r.println("  " + lipgloss.NewStyle().Width(width+2).Render(cmd.usage) + r.dim.Render(cmd.help))
	}
	r.println(r.dim.Render("CLASS, STUDENT and UPDATE are a number from the last listing or an id."))
}

// table renders rows under headers, with a leading 1-based position column.
func (r *renderer) table(headers []string, rows [][]string) {
	headers = append([]string{"#"}, headers...)
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for n, row := range rows {
		rows[n] = append([]string{strconv.Itoa(n + 1)}, row...)
		for i, cell := range rows[n] {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		rendered := make([]string, len(cells))
		for i, cell := range cells {
			rendered[i] = style.Copy().Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	}
	r.println(line(headers, r.header))
	for _, row := range rows {
		r.println(line(row, lipgloss.NewStyle()))
	}
}

func orDash(s null.String) string {
	if !s.Valid || s.String == "" {
		return "-"
	}
	return s.String
}

func (r *renderer) user(usr user.User) {
	lines := []string{
		r.title.Render(usr.DisplayName()),
		"Email: " + usr.Email,
		"Role:  " + user.RoleName(usr.Role),
	}
	if usr.Phone != "" {
		lines = append(lines, "Phone: "+usr.Phone)
	}
	if usr.AvatarURL != "" {
		lines = append(lines, "Avatar: "+usr.AvatarURL)
	}
	r.println(r.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func (r *renderer) classes(classes []class.Class, selected *class.Class) {
	if len(classes) == 0 {
		r.muted("No classes yet. Create one with `addclass -name NAME`.")
		return
	}
	rows := make([][]string, 0, len(classes))
	for _, c := range classes {
		name := c.Name
		if selected != nil && selected.ID == c.ID {
			name = "* " + name
		}
		rows = append(rows, []string{name, orDash(c.Grade), orDash(c.Subject), orDash(c.Room), orDash(c.Schedule)})
	}
	r.table([]string{"Name", "Grade", "Subject", "Room", "Schedule"}, rows)
}

func (r *renderer) class(c class.Class) {
	lines := []string{r.title.Render(c.Name)}
	for _, f := range []struct {
		label string
		value null.String
	}{
		{"Grade", c.Grade},
		{"Subject", c.Subject},
		{"Room", c.Room},
		{"Schedule", c.Schedule},
		{"Description", c.Description},
	} {
		if f.value.Valid && f.value.String != "" {
			lines = append(lines, f.label+": "+f.value.String)
		}
	}
	r.println(r.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func (r *renderer) students(students []student.Student, p store.Pagination) {
	if len(students) == 0 {
		r.muted("No students on this page.")
	} else {
		rows := make([][]string, 0, len(students))
		for _, s := range students {
			rows = append(rows, []string{s.Name, orDash(s.Identifier), s.CreatedAt.Local().Format(timeLayout)})
		}
		r.table([]string{"Name", "Identifier", "Added"}, rows)
	}

	from, to := p.Bounds()
	if to > from {
		from++
	}
	r.muted(fmt.Sprintf("Showing %d-%d of %d students, page %d/%d", from, to, p.TotalItems, p.Page, p.TotalPages()))
}

func (r *renderer) updates(updates []update.Update) {
	if len(updates) == 0 {
		r.muted("No updates yet. Post one with `post TEXT`.")
		return
	}
	rows := make([][]string, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, []string{u.Category, u.Text, u.CreatedAt.Local().Format(timeLayout)})
	}
	r.table([]string{"Category", "Text", "Posted"}, rows)
}

func (r *renderer) summary(sum store.Summary, selected *class.Class) {
	students := "Students"
	if selected != nil {
		students += " (" + selected.Name + ")"
	}
	width := 18
	if w := lipgloss.Width(students) + 4; w > width {
		width = w
	}
	cell := r.box.Copy().Width(width).Align(lipgloss.Center)
	r.println(lipgloss.JoinHorizontal(lipgloss.Top,
		cell.Render(fmt.Sprintf("%d\nClasses", sum.Classes)),
		cell.Render(fmt.Sprintf("%d\n%s", sum.Students, students)),
		cell.Render(fmt.Sprintf("%d\nUpdates", sum.Updates)),
	))
}

// notifier shows the store toasts.
type notifier struct {
	r *renderer
}

var _ store.Notifier = notifier{}

func (n notifier) Success(msg string) { n.r.successMsg(msg) }
func (n notifier) Error(err error)    { n.r.error(err) }
