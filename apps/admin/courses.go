package main

import (
	"context"
	"fmt"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
)

func (cli *commandLine) addCourse(ctx context.Context, title string) error {
	c, err := cli.courseSvc.CreateCourse(ctx, course.NewCourse{Title: title})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created course %q (%s)\n", c.Title, c.ID)
	return nil
}

func (cli *commandLine) addLesson(ctx context.Context, courseID, title string) error {
	l, err := cli.courseSvc.CreateLesson(ctx, course.NewLesson{CourseID: courseID, Title: title})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created lesson %q (%s) in course %s\n", l.Title, l.ID, l.CourseID)
	return nil
}

func (cli *commandLine) assignReviewer(ctx context.Context, courseID, ref string) error {
	if _, err := cli.courseSvc.GetCourse(ctx, courseID); err != nil {
		return err
	}
	usr, err := cli.lookupUser(ctx, ref)
	if err != nil {
		return err
	}
	if err = cli.usrSvc.AssignReviewer(ctx, courseID, usr.ID); err != nil {
		return err
	}
	if err = cli.invalidate(ctx, usr.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s now reviews course %s\n", usr.Email, courseID)
	return nil
}
