// Command smis is a terminal dashboard for teachers: classes, students and class updates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/store"
	emailsvc "github.com/trezcool/smis/services/email"
	localsvc "github.com/trezcool/smis/services/local"
	logsvc "github.com/trezcool/smis/services/logger"
	restsvc "github.com/trezcool/smis/services/rest"
)

func main() {
	local := flag.Bool("local", false, "run against an embedded in-memory backend")
	flag.Parse()

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "CLI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	b, err := newBackend(conf, logger, *local)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up backend: %v", err), err)
	}

	r := newRenderer(os.Stdout)
	s := store.New(b,
		store.WithLogger(logger),
		store.WithNotifier(notifier{r}),
		store.WithPageSize(conf.Dashboard.DefaultPageSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli := newCommandLine(s, r)
	r.println(r.title.Render(conf.AppName) + r.dim.Render(" (type `help` for the commands)"))

	if flag.NArg() > 0 {
		if err = cli.exec(ctx, flag.Args()); err != nil && !errors.Is(err, errHelp) {
			r.error(err)
			os.Exit(1)
		}
		return
	}
	if err = cli.shell(ctx, os.Stdin); err != nil {
		r.error(err)
		os.Exit(1)
	}
}

func newBackend(conf *core.Config, logger core.Logger, local bool) (backend.Backend, error) {
	if local {
		return localsvc.NewInMemory(conf, emailsvc.NewConsoleService(conf, logger), logger)
	}
	return restsvc.New(conf.Backend, logger)
}
