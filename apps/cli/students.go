package main

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core/store"
	"github.com/trezcool/smis/core/student"
)

func (cli *commandLine) selectedClassID() (string, error) {
	st := cli.store.State()
	if st.SelectedClass == nil {
		return "", errors.New("no class selected, run `select CLASS` first")
	}
	return st.SelectedClass.ID, nil
}

func (cli *commandLine) students(ctx context.Context, _ []string) error {
	classID, err := cli.selectedClassID()
	if err != nil {
		return err
	}
	p := cli.store.State().Pagination
	students, err := cli.store.FetchStudents(ctx, classID, p.Page, p.PageSize)
	if err != nil {
		return err
	}
	cli.r.students(students, cli.store.State().Pagination)
	return nil
}

func (cli *commandLine) page(ctx context.Context, args []string) error {
	fs := cli.flagSet("page")
	size := fs.Int("size", 0, "students per page: 5, 10, 20 or 50")
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	classID, err := cli.selectedClassID()
	if err != nil {
		return err
	}

	p := cli.store.State().Pagination
	page := p.Page
	if len(pos) > 0 {
		switch pos[0] {
		case "next":
			if !p.HasNext() {
				return errors.New("already on the last page")
			}
			page++
		case "prev":
			if !p.HasPrev() {
				return errors.New("already on the first page")
			}
			page--
		default:
			if page, err = strconv.Atoi(pos[0]); err != nil || page < 1 {
				fs.Usage()
				return errHelp
			}
		}
	}
	pageSize := p.PageSize
	if *size != 0 {
		if !validPageSize(*size) {
			fs.Usage()
			return errHelp
		}
		pageSize = *size
		page = store.DefaultPage
	}

	students, err := cli.store.FetchStudents(ctx, classID, page, pageSize)
	if err != nil {
		return err
	}
	cli.r.students(students, cli.store.State().Pagination)
	return nil
}

func validPageSize(size int) bool {
	for _, opt := range store.PageSizeOptions {
		if opt == size {
			return true
		}
	}
	return false
}

func (cli *commandLine) addStudent(ctx context.Context, args []string) error {
	fs := cli.flagSet("addstudent")
	name := fs.String("name", "", "full name")
	identifier := fs.String("id", "", "roll or admission number")
	if _, err := cli.parse(fs, args); err != nil {
		return err
	}
	if *name == "" {
		fs.Usage()
		return errHelp
	}
	if _, err := cli.store.AddStudent(ctx, student.NewStudent{Name: *name, Identifier: *identifier}); err != nil {
		return err
	}
	return cli.students(ctx, nil)
}

func (cli *commandLine) editStudent(ctx context.Context, args []string) error {
	fs := cli.flagSet("editstudent")
	fs.String("name", "", "full name")
	fs.String("id", "", "roll or admission number, empty to clear it")
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fs.Usage()
		return errHelp
	}
	stu, err := cli.studentRef(ctx, pos[0])
	if err != nil {
		return err
	}
	_, err = cli.store.UpdateStudent(ctx, stu.ID, student.Changes{Name: fs.ptr("name"), Identifier: fs.ptr("id")})
	return err
}

func (cli *commandLine) rmStudent(ctx context.Context, args []string) error {
	fs := cli.flagSet("rmstudent")
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fs.Usage()
		return errHelp
	}
	stu, err := cli.studentRef(ctx, pos[0])
	if err != nil {
		return err
	}
	return cli.store.DeleteStudent(ctx, stu.ID)
}

// studentRef resolves the 1-based position of a student on the current page, or a student id.
func (cli *commandLine) studentRef(ctx context.Context, ref string) (student.Student, error) {
	students := cli.store.State().Students
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(students) {
			return student.Student{}, errors.Errorf("no student #%d on this page", n)
		}
		return students[n-1], nil
	}
	return cli.store.GetStudentByID(ctx, ref)
}
