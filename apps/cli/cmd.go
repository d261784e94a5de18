package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/smis/core/store"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
	errQuit = errors.New("bye")
)

type commandLine struct {
	store *store.Store
	out   io.Writer
	r     *renderer
}

func newCommandLine(s *store.Store, r *renderer) *commandLine {
	return &commandLine{store: s, out: r.out, r: r}
}

// command is a shell command; usage lists its flags and arguments.
type command struct {
	usage string
	help  string
	run   func(cli *commandLine, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":         {"login -email EMAIL", "sign in, the password is prompted", (*commandLine).login},
		"signup":        {"signup -email EMAIL [-name NAME] [-phone PHONE]", "create a teacher account", (*commandLine).signup},
		"logout":        {"logout", "sign out", (*commandLine).logout},
		"whoami":        {"whoami", "show the current user", (*commandLine).whoami},
		"profile":       {"profile [-name NAME] [-email EMAIL] [-phone PHONE] [-avatar FILE]", "update your profile", (*commandLine).profile},
		"passwd":        {"passwd", "change your password, the new one is prompted", (*commandLine).passwd},
		"resetpassword": {"resetpassword -email EMAIL", "email password reset instructions", (*commandLine).resetPassword},
		"classes":       {"classes", "list your classes", (*commandLine).classes},
		"addclass":      {"addclass -name NAME [-grade G] [-subject S] [-room R] [-schedule S] [-description D]", "create a class", (*commandLine).addClass},
		"editclass":     {"editclass CLASS [-name NAME] [-grade G] [-subject S] [-room R] [-schedule S] [-description D]", "edit a class", (*commandLine).editClass},
		"rmclass":       {"rmclass CLASS", "delete a class", (*commandLine).rmClass},
		"select":        {"select CLASS", "select a class and list its students", (*commandLine).selectClass},
		"students":      {"students", "list the students of the selected class", (*commandLine).students},
		"page":          {"page [next|prev|N] [-size N]", "move through the students", (*commandLine).page},
		"addstudent":    {"addstudent -name NAME [-id IDENTIFIER]", "add a student to the selected class", (*commandLine).addStudent},
		"editstudent":   {"editstudent STUDENT [-name NAME] [-id IDENTIFIER]", "edit a student", (*commandLine).editStudent},
		"rmstudent":     {"rmstudent STUDENT", "remove a student", (*commandLine).rmStudent},
		"updates":       {"updates", "list the updates of the selected class", (*commandLine).updates},
		"post":          {"post [-category C] TEXT", "post an update to the selected class", (*commandLine).post},
		"editupdate":    {"editupdate UPDATE [-category C] [-text TEXT]", "edit an update", (*commandLine).editUpdate},
		"rmupdate":      {"rmupdate UPDATE", "delete an update", (*commandLine).rmUpdate},
		"summary":       {"summary", "show the dashboard counters", (*commandLine).summary},
		"help":          {"help", "show this help", (*commandLine).help},
		"quit":          {"quit", "leave the shell", func(*commandLine, context.Context, []string) error { return errQuit }},
	}
}

func (cli *commandLine) help(context.Context, []string) error {
	cli.printUsage()
	return nil
}

func (cli *commandLine) printUsage() {
	cli.r.usage(commands)
}

// exec runs one command line, args[0] being the command name.
func (cli *commandLine) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		cli.printUsage()
		return errHelp
	}
	return cmd.run(cli, ctx, args[1:])
}

// shell runs the commands read from in until EOF or quit.
func (cli *commandLine) shell(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		cli.r.prompt(cli.store.State())
		if !scanner.Scan() {
			break
		}
		args, err := splitArgs(scanner.Text())
		if err == nil {
			err = cli.exec(ctx, args)
		}
		switch {
		case err == nil, errors.Is(err, errHelp):
		case errors.Is(err, errQuit):
			return nil
		case store.KindOf(err) != store.KindUnknown:
			// already notified
		default:
			cli.r.error(err)
		}
	}
	fmt.Fprintln(cli.out)
	return scanner.Err()
}

type flags struct {
	*flag.FlagSet
}

func (cli *commandLine) flagSet(name string) flags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	fs.Usage = func() {
		fmt.Fprintf(cli.out, "Usage: %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return flags{fs}
}

func (fs flags) value(name string) string {
	if f := fs.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// ptr returns the value of a flag that was explicitly set, or nil.
func (fs flags) ptr(name string) *string {
	var res *string
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			v := f.Value.String()
			res = &v
		}
	})
	return res
}

// parse parses args, allowing the positional arguments before the flags.
func (cli *commandLine) parse(fs flags, args []string) ([]string, error) {
	var positional []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	return append(positional, fs.Args()...), nil
}

func (cli *commandLine) readPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

// splitArgs splits a command line on blanks; single or double quotes group words.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inWord  bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inWord = r, true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
