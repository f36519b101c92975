package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/notification"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

var errHelp = errors.New("help provided")

type authzInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type commandLine struct {
	db         *sqlx.DB
	usrSvc     *user.Service
	authz      authzInvalidator // optional
	courseSvc  *course.Service
	contentSvc *content.Service
	outbox     *notification.Outbox
	in         io.Reader
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                       - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL -roles R,R   - create a user or update its roles")
	fmt.Fprintln(cli.out, "  addcourse -title TITLE                       - create a course")
	fmt.Fprintln(cli.out, "  addlesson -course ID -title TITLE            - create a lesson")
	fmt.Fprintln(cli.out, "  assignreviewer -course ID -user EMAIL|ID     - add a user to a course's reviewer pool")
	fmt.Fprintln(cli.out, "  recount -article ID | -all [-yes]            - recompute article and comment counters")
	fmt.Fprintln(cli.out, "  relay                                        - deliver the due notifications once")
}

// parse maps -h to errHelp so callers exit without logging an error.
func parse(cmd *flag.FlagSet, args []string) error {
	if err := cmd.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	return cmd
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		cmd := cli.newFlagSet("adduser")
		name := cmd.String("name", "", "The user's full name. Required for new users.")
		email := cmd.String("email", "", "The user's email.")
		roles := cmd.String("roles", "", "Comma-separated roles (admin:, reviewer:, student:, ...).")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *name, *email, splitList(*roles))

	case "addcourse":
		cmd := cli.newFlagSet("addcourse")
		title := cmd.String("title", "", "The course title.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *title == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addCourse(ctx, *title)

	case "addlesson":
		cmd := cli.newFlagSet("addlesson")
		courseID := cmd.String("course", "", "The course ID.")
		title := cmd.String("title", "", "The lesson title.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *courseID == "" || *title == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addLesson(ctx, *courseID, *title)

	case "assignreviewer":
		cmd := cli.newFlagSet("assignreviewer")
		courseID := cmd.String("course", "", "The course ID.")
		usr := cmd.String("user", "", "The reviewer's email or ID.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *courseID == "" || *usr == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.assignReviewer(ctx, *courseID, *usr)

	case "recount":
		cmd := cli.newFlagSet("recount")
		articleID := cmd.String("article", "", "The article ID.")
		all := cmd.Bool("all", false, "Recount every article.")
		yes := cmd.Bool("yes", false, "Do not ask for confirmation.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if (*articleID == "") == !*all {
			cmd.Usage()
			return errHelp
		}
		if *all {
			return cli.recountAll(ctx, *yes)
		}
		return cli.recount(ctx, *articleID)

	case "relay":
		return cli.relay(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
