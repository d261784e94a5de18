package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core/class"
)

func (cli *commandLine) classFlags(name string) flags {
	fs := cli.flagSet(name)
	fs.String("name", "", "class name")
	fs.String("description", "", "class description")
	fs.String("grade", "", "grade level: "+strings.Join(class.Levels, ", "))
	fs.String("subject", "", "subject, e.g. "+strings.Join(class.Subjects[:4], ", "))
	fs.String("schedule", "", "schedule, e.g. \"Mon/Wed 9:00\"")
	fs.String("room", "", "room")
	return fs
}

func (cli *commandLine) classes(ctx context.Context, _ []string) error {
	classes, err := cli.store.FetchClasses(ctx)
	if err != nil {
		return err
	}
	cli.r.classes(classes, cli.store.State().SelectedClass)
	return nil
}

func (cli *commandLine) addClass(ctx context.Context, args []string) error {
	f := cli.classFlags("addclass")
	if _, err := cli.parse(f, args); err != nil {
		return err
	}
	nc := class.NewClass{
		Name:        f.value("name"),
		Description: f.value("description"),
		Grade:       f.value("grade"),
		Subject:     f.value("subject"),
		Schedule:    f.value("schedule"),
		Room:        f.value("room"),
	}
	if nc.Name == "" {
		f.Usage()
		return errHelp
	}
	_, err := cli.store.AddClass(ctx, nc)
	return err
}

func (cli *commandLine) editClass(ctx context.Context, args []string) error {
	f := cli.classFlags("editclass")
	pos, err := cli.parse(f, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		f.Usage()
		return errHelp
	}
	c, err := cli.classRef(ctx, pos[0])
	if err != nil {
		return err
	}
	_, err = cli.store.UpdateClass(ctx, c.ID, class.Changes{
		Name:        f.ptr("name"),
		Description: f.ptr("description"),
		Grade:       f.ptr("grade"),
		Subject:     f.ptr("subject"),
		Schedule:    f.ptr("schedule"),
		Room:        f.ptr("room"),
	})
	return err
}

func (cli *commandLine) rmClass(ctx context.Context, args []string) error {
	c, err := cli.oneClass(ctx, "rmclass", args)
	if err != nil {
		return err
	}
	return cli.store.DeleteClass(ctx, c.ID)
}

func (cli *commandLine) selectClass(ctx context.Context, args []string) error {
	c, err := cli.oneClass(ctx, "select", args)
	if err != nil {
		return err
	}
	students, err := cli.store.SelectClass(ctx, c)
	if err != nil {
		return err
	}
	if _, err = cli.store.FetchUpdates(ctx, c.ID); err != nil {
		return err
	}
	st := cli.store.State()
	cli.r.class(c)
	cli.r.students(students, st.Pagination)
	return nil
}

func (cli *commandLine) oneClass(ctx context.Context, name string, args []string) (class.Class, error) {
	fs := cli.flagSet(name)
	pos, err := cli.parse(fs, args)
	if err != nil {
		return class.Class{}, err
	}
	if len(pos) != 1 {
		fs.Usage()
		return class.Class{}, errHelp
	}
	return cli.classRef(ctx, pos[0])
}

// classRef resolves the 1-based position of a class in the last listing, or a class id.
func (cli *commandLine) classRef(ctx context.Context, ref string) (class.Class, error) {
	classes := cli.store.State().Classes
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(classes) {
			return class.Class{}, errors.Errorf("no class #%d, run `classes` to list them", n)
		}
		return classes[n-1], nil
	}
	return cli.store.GetClassByID(ctx, ref)
}
