package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
)

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{baseRepository{exec: exec}}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)
	c.ID = core.NewID()
	c.CreatedAt = c.CreatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind("INSERT INTO courses (id, title, created_at) VALUES (?, ?, ?)"), c.ID, c.Title, c.CreatedAt)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !core.IsValidID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var c course.Course
	if err := get(ctx, repo.getExec(exec), &c, "SELECT id, title, created_at FROM courses WHERE id = ?", id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return c, nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	exe := repo.getExec(exec)
	l.ID = core.NewID()
	l.CreatedAt = l.CreatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO lessons (id, course_id, title, created_at) VALUES (?, ?, ?, ?)"), l.ID, l.CourseID, l.Title, l.CreatedAt)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if !core.IsValidID(id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var l course.Lesson
	if err := get(ctx, repo.getExec(exec), &l, "SELECT id, course_id, title, created_at FROM lessons WHERE id = ?", id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return l, nil
}
