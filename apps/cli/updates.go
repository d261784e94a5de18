package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core/update"
)

func (cli *commandLine) updates(ctx context.Context, _ []string) error {
	classID, err := cli.selectedClassID()
	if err != nil {
		return err
	}
	updates, err := cli.store.FetchUpdates(ctx, classID)
	if err != nil {
		return err
	}
	cli.r.updates(updates)
	return nil
}

func (cli *commandLine) post(ctx context.Context, args []string) error {
	fs := cli.flagSet("post")
	category := fs.String("category", "", "one of "+strings.Join(update.Categories, ", "))
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	text := strings.Join(pos, " ")
	if text == "" {
		fs.Usage()
		return errHelp
	}
	_, err = cli.store.AddUpdate(ctx, update.NewUpdate{Text: text, Category: *category})
	return err
}

func (cli *commandLine) editUpdate(ctx context.Context, args []string) error {
	fs := cli.flagSet("editupdate")
	fs.String("category", "", "one of "+strings.Join(update.Categories, ", "))
	fs.String("text", "", "the new text")
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fs.Usage()
		return errHelp
	}
	upd, err := cli.updateRef(ctx, pos[0])
	if err != nil {
		return err
	}
	_, err = cli.store.EditUpdate(ctx, upd.ID, update.Changes{Text: fs.ptr("text"), Category: fs.ptr("category")})
	return err
}

func (cli *commandLine) rmUpdate(ctx context.Context, args []string) error {
	fs := cli.flagSet("rmupdate")
	pos, err := cli.parse(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fs.Usage()
		return errHelp
	}
	upd, err := cli.updateRef(ctx, pos[0])
	if err != nil {
		return err
	}
	return cli.store.DeleteUpdate(ctx, upd.ID)
}

// updateRef resolves the 1-based position of an update in the last listing, or an update id.
func (cli *commandLine) updateRef(ctx context.Context, ref string) (update.Update, error) {
	updates := cli.store.State().Updates
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(updates) {
			return update.Update{}, errors.Errorf("no update #%d, run `updates` to list them", n)
		}
		return updates[n-1], nil
	}
	return cli.store.GetUpdateByID(ctx, ref)
}

func (cli *commandLine) summary(context.Context, []string) error {
	st := cli.store.State()
	cli.r.summary(st.Summary(), st.SelectedClass)
	return nil
}
