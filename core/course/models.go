package course

import (
	"time"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

type Course struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Lesson struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NewCourse struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
}

type NewLesson struct {
	CourseID string `json:"course_id" validate:"required,id"`
	Title    string `json:"title" validate:"required,notblank,max=200"`
}

func (nc *NewCourse) Clean() { nc.Title = core.CleanString(nc.Title) }
func (nl *NewLesson) Clean() { nl.Title = core.CleanString(nl.Title) }
