package main

import (
	"log"
	"os"

	"github.com/ps965xx7vn-lgtm/backend-sub002/apps/di"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

func main() {
	conf := core.NewConfig()
	c, err := di.New(conf, di.Options{Name: "admin"})
	if err != nil {
		log.Fatalf("admin: %v", err)
	}

	// start CLI
	cli := commandLine{
		db:         c.DB,
		usrSvc:     c.Users,
		courseSvc:  c.Courses,
		contentSvc: c.Content,
		outbox:     c.Outbox,
		in:         os.Stdin,
		out:        os.Stdout,
	}
	if c.AuthzCache != nil {
		cli.authz = c.AuthzCache
	}

	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		c.Logger.Error("admin command failed", err, map[string]interface{}{"args": os.Args[1:]})
	}
	c.Close()
	if err != nil {
		os.Exit(1)
	}
}
