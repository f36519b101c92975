package submission

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusNeedsWork Status = "needs_work"
	StatusApproved  Status = "approved"
)

type Verdict string

const (
	VerdictApproved  Verdict = "approved"
	VerdictNeedsWork Verdict = "needs_work"
)

type Category string

const (
	CategoryStyle         Category = "style"
	CategoryLogic         Category = "logic"
	CategoryNaming        Category = "naming"
	CategoryPerformance   Category = "performance"
	CategorySecurity      Category = "security"
	CategoryTesting       Category = "testing"
	CategoryDocumentation Category = "documentation"
	CategoryOther         Category = "other"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Events emitted to the outbox.
const (
	EventSubmitted   = "submission.submitted"
	EventReviewed    = "submission.reviewed"
	EventResubmitted = "submission.resubmitted"
)

// Submission is a student's attempt at a lesson.
// RevisionCount starts at 0 and grows by one on every resubmission.
type Submission struct {
	ID            string    `json:"id" db:"id"`
	StudentID     string    `json:"student_id" db:"student_id"`
	LessonID      string    `json:"lesson_id" db:"lesson_id"`
	Content       string    `json:"content" db:"content"`
	Status        Status    `json:"status" db:"status"`
	RevisionCount int       `json:"revision_count" db:"revision_count"`
	SubmittedAt   time.Time `json:"submitted_at" db:"submitted_at"`
	ApprovedAt    null.Time `json:"approved_at" db:"approved_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type Review struct {
	ID           string        `json:"id" db:"id"`
	SubmissionID string        `json:"submission_id" db:"submission_id"`
	ReviewerID   string        `json:"reviewer_id" db:"reviewer_id"`
	Revision     int           `json:"revision" db:"revision"`
	Verdict      Verdict       `json:"verdict" db:"verdict"`
	Comment      string        `json:"comment" db:"comment"`
	TimeSpent    int           `json:"time_spent" db:"time_spent"` // minutes
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	Improvements []Improvement `json:"improvements" db:"-"`
}

type Improvement struct {
	ID           string    `json:"id" db:"id"`
	ReviewID     string    `json:"review_id" db:"review_id"`
	SubmissionID string    `json:"submission_id" db:"submission_id"`
	Category     Category  `json:"category" db:"category"`
	Description  string    `json:"description" db:"description"`
	Priority     Priority  `json:"priority" db:"priority"`
	IsNew        bool      `json:"is_new" db:"is_new"`
	IsResolved   bool      `json:"is_resolved" db:"is_resolved"`
	ResolvedAt   null.Time `json:"resolved_at" db:"resolved_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type NewSubmission struct {
	LessonID string `json:"lesson_id" validate:"required,id"`
	Content  string `json:"content" validate:"required,notblank,max=50000"`
}

func (ns *NewSubmission) Clean() {
	ns.LessonID = core.CleanString(ns.LessonID)
	ns.Content = core.CleanString(ns.Content)
}

type NewImprovement struct {
	Category    Category `json:"category" validate:"required,oneof=style logic naming performance security testing documentation other"`
	Description string   `json:"description" validate:"required,notblank,max=2000"`
	Priority    Priority `json:"priority" validate:"required,oneof=high medium low"`
}

type NewReview struct {
	Verdict      Verdict          `json:"verdict" validate:"required,oneof=approved needs_work"`
	Comment      string           `json:"comment" validate:"max=5000"`
	TimeSpent    int              `json:"time_spent" validate:"gt=0"`
	Improvements []NewImprovement `json:"improvements" validate:"omitempty,dive"`

	commentMinLen int
}

func (nr *NewReview) Clean() {
	nr.Comment = core.CleanString(nr.Comment)
	for i := range nr.Improvements {
		nr.Improvements[i].Description = core.CleanString(nr.Improvements[i].Description)
	}
}

type QueryFilter struct {
	StudentID string
	LessonID  string
	CourseID  string
	Statuses  []Status
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.LessonID == "" && qf.CourseID == "" && qf.Statuses == nil
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.LessonID = core.CleanString(qf.LessonID)
	qf.CourseID = core.CleanString(qf.CourseID)
}
