package submission

import (
	"context"
	"errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

var (
	// errors
	ErrNotFound               = errors.New("submission not found")
	ErrReviewNotFound         = errors.New("review not found")
	ErrImprovementNotFound    = errors.New("improvement not found")
	ErrActiveSubmissionExists = errors.New("an active submission already exists for this lesson")
	ErrReviewExists           = errors.New("this revision has already been reviewed")
	ErrStaleSubmission        = errors.New("submission was modified concurrently")
)

type (
	Repository interface {
		// CreateSubmission returns a *core.ConflictError when an active submission exists for the same student and lesson.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Submission, error)
		// UpdateSubmission saves sub only if the stored row still has the expected status and revision,
		// returning ErrStaleSubmission otherwise.
		UpdateSubmission(ctx context.Context, sub Submission, expStatus Status, expRevision int, exec ...core.DBExecutor) (Submission, error)

		// CreateReview inserts the review and its improvements. A second review of the same revision is a *core.ConflictError.
		CreateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) (Review, error)
		GetReview(ctx context.Context, id string, exec ...core.DBExecutor) (Review, error)
		// ListReviews returns the reviews of a submission with their improvements, oldest first.
		ListReviews(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]Review, error)

		GetImprovement(ctx context.Context, id string, exec ...core.DBExecutor) (Improvement, error)
		ResolveImprovement(ctx context.Context, id string, exec ...core.DBExecutor) (Improvement, error)
		// ClearNewImprovements drops the "new" flag of every unresolved improvement of a submission.
		ClearNewImprovements(ctx context.Context, submissionID string, exec ...core.DBExecutor) error
	}

	LessonGetter interface {
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error)
	}

	ReviewerPool interface {
		ReviewerIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error)
	}

	Deps struct {
		DB        core.DB
		Repo      Repository
		Lessons   LessonGetter
		Authz     user.Authorizer
		Reviewers ReviewerPool
		Outbox    core.Outbox
		Logger    core.Logger
		Validator *core.Validator
		Conf      core.WorkflowConfig
	}

	Service struct {
		db        core.DB
		repo      Repository
		lessons   LessonGetter
		authz     user.Authorizer
		reviewers ReviewerPool
		outbox    core.Outbox
		logger    core.Logger
		validate  *core.Validator
		conf      core.WorkflowConfig
	}
)

func NewService(deps Deps) *Service {
	InitValidators(deps.Validator.Validate, deps.Validator.Translator)
	return &Service{
		db:        deps.DB,
		repo:      deps.Repo,
		lessons:   deps.Lessons,
		authz:     deps.Authz,
		reviewers: deps.Reviewers,
		outbox:    deps.Outbox,
		logger:    deps.Logger,
		validate:  deps.Validator,
		conf:      deps.Conf,
	}
}

// checkRole treats an unresolvable role as a missing one.
func (svc *Service) checkRole(ctx context.Context, userID, role, action string) error {
	ok, err := svc.authz.HasRole(ctx, userID, role)
	if err != nil {
		svc.logger.Warn("resolving role", err, map[string]interface{}{"user_id": userID, "role": role})
		return core.NewPermissionError(action)
	}
	if !ok {
		return core.NewPermissionError(action)
	}
	return nil
}

func (svc *Service) checkCanReview(ctx context.Context, reviewerID string, sub Submission) (course.Lesson, error) {
	if reviewerID == sub.StudentID {
		return course.Lesson{}, core.NewPermissionError("review own submission")
	}
	lesson, err := svc.lessons.GetLesson(ctx, sub.LessonID)
	if err != nil {
		return course.Lesson{}, err
	}
	ok, err := svc.authz.CanReview(ctx, reviewerID, lesson.CourseID)
	if err != nil {
		svc.logger.Warn("resolving reviewer permission", err, map[string]interface{}{"user_id": reviewerID, "course_id": lesson.CourseID})
		return course.Lesson{}, core.NewPermissionError("review")
	}
	if !ok {
		return course.Lesson{}, core.NewPermissionError("review")
	}
	return lesson, nil
}

func payload(sub Submission) map[string]interface{} {
	return map[string]interface{}{
		"submission_id": sub.ID,
		"student_id":    sub.StudentID,
		"lesson_id":     sub.LessonID,
		"status":        string(sub.Status),
		"revision":      sub.RevisionCount,
	}
}

// Submit creates a pending submission and notifies the reviewers of the lesson's course.
func (svc *Service) Submit(ctx context.Context, studentID string, ns NewSubmission) (Submission, error) {
	if err := svc.checkRole(ctx, studentID, user.RoleStudent, "submit"); err != nil {
		return Submission{}, err
	}
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Submission{}, err
	}
	lesson, err := svc.lessons.GetLesson(ctx, ns.LessonID)
	if err != nil {
		if err == course.ErrLessonNotFound {
			return Submission{}, core.NewValidationError(err, core.FieldError{Field: "lesson_id", Error: err.Error()})
		}
		return Submission{}, err
	}

	now := core.NowFunc()
	sub := Submission{
		StudentID:   studentID,
		LessonID:    lesson.ID,
		Content:     ns.Content,
		Status:      StatusPending,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var notes []core.Notification
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if sub, err = svc.repo.CreateSubmission(ctx, sub, tx); err != nil {
			return err
		}
		reviewerIDs, err := svc.reviewers.ReviewerIDs(ctx, lesson.CourseID, tx)
		if err != nil {
			return err
		}
		notes = core.Recipients(studentID, EventSubmitted, payload(sub), reviewerIDs...)
		return svc.outbox.Add(ctx, tx, notes...)
	})
	if err != nil {
		return Submission{}, err
	}

	svc.outbox.Deliver(ctx, notes...)
	return sub, nil
}

// Review records a verdict on a pending submission.
// The review, its improvements and the status change are committed together.
func (svc *Service) Review(ctx context.Context, reviewerID, submissionID string, nr NewReview) (Review, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Review{}, err
	}
	nr.Clean()
	if err = checkTransition(sub, nr.Verdict.Status(), "review"); err != nil {
		return Review{}, err
	}
	if _, err = svc.checkCanReview(ctx, reviewerID, sub); err != nil {
		return Review{}, err
	}
	nr.commentMinLen = svc.conf.ReviewCommentMinLen
	if err = svc.validate.Struct(nr); err != nil {
		return Review{}, err
	}

	now := core.NowFunc()
	rev := Review{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerID,
		Revision:     sub.RevisionCount,
		Verdict:      nr.Verdict,
		Comment:      nr.Comment,
		TimeSpent:    nr.TimeSpent,
		CreatedAt:    now,
		Improvements: make([]Improvement, 0, len(nr.Improvements)),
	}
	for _, ni := range nr.Improvements {
		rev.Improvements = append(rev.Improvements, Improvement{
			SubmissionID: sub.ID,
			Category:     ni.Category,
			Description:  ni.Description,
			Priority:     ni.Priority,
			IsNew:        true,
			CreatedAt:    now,
		})
	}

	var notes []core.Notification
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if rev, err = svc.repo.CreateReview(ctx, rev, tx); err != nil {
			return err
		}
		updated, err := svc.repo.UpdateSubmission(ctx, applyReview(sub, rev), StatusPending, sub.RevisionCount, tx)
		if err != nil {
			return err
		}
		p := payload(updated)
		p["review_id"] = rev.ID
		p["verdict"] = string(rev.Verdict)
		notes = core.Recipients(reviewerID, EventReviewed, p, sub.StudentID)
		return svc.outbox.Add(ctx, tx, notes...)
	})
	if err != nil {
		if err == ErrStaleSubmission {
			return Review{}, core.NewConflictError(ErrReviewExists)
		}
		return Review{}, err
	}

	svc.outbox.Deliver(ctx, notes...)
	return rev, nil
}

// Approve is a Review with an approved verdict.
func (svc *Service) Approve(ctx context.Context, reviewerID, submissionID, comment string, timeSpent int) (Review, error) {
	return svc.Review(ctx, reviewerID, submissionID, NewReview{Verdict: VerdictApproved, Comment: comment, TimeSpent: timeSpent})
}

// Resubmit sends new content for a submission that needs work, moving it back to pending.
func (svc *Service) Resubmit(ctx context.Context, studentID, submissionID, content string) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if err = checkOwner(sub, studentID, "resubmit"); err != nil {
		return Submission{}, err
	}
	if err = checkTransition(sub, StatusPending, "resubmit"); err != nil {
		return Submission{}, err
	}
	ns := NewSubmission{LessonID: sub.LessonID, Content: content}
	ns.Clean()
	if err = svc.validate.Struct(ns); err != nil {
		return Submission{}, err
	}
	lesson, err := svc.lessons.GetLesson(ctx, sub.LessonID)
	if err != nil {
		return Submission{}, err
	}

	var notes []core.Notification
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if sub, err = svc.repo.UpdateSubmission(ctx, applyResubmit(sub, ns.Content), StatusNeedsWork, sub.RevisionCount, tx); err != nil {
			return err
		}
		if err = svc.repo.ClearNewImprovements(ctx, sub.ID, tx); err != nil {
			return err
		}

		recipients, err := svc.reviewers.ReviewerIDs(ctx, lesson.CourseID, tx)
		if err != nil {
			return err
		}
		reviews, err := svc.repo.ListReviews(ctx, sub.ID, tx)
		if err != nil {
			return err
		}
		if len(reviews) > 0 {
			// the last reviewer first so they keep the thread
			recipients = append([]string{reviews[len(reviews)-1].ReviewerID}, recipients...)
		}
		notes = core.Recipients(studentID, EventResubmitted, payload(sub), recipients...)
		return svc.outbox.Add(ctx, tx, notes...)
	})
	if err != nil {
		if err == ErrStaleSubmission {
			return Submission{}, core.NewConflictError(err)
		}
		return Submission{}, err
	}

	svc.outbox.Deliver(ctx, notes...)
	return sub, nil
}

// ResolveImprovement marks an improvement as resolved. Resolving twice is a no-op.
func (svc *Service) ResolveImprovement(ctx context.Context, studentID, improvementID string) (Improvement, error) {
	imp, err := svc.repo.GetImprovement(ctx, improvementID)
	if err != nil {
		return Improvement{}, err
	}
	sub, err := svc.repo.GetSubmission(ctx, imp.SubmissionID)
	if err != nil {
		return Improvement{}, err
	}
	if err = checkOwner(sub, studentID, "resolve improvement"); err != nil {
		return Improvement{}, err
	}
	rev, err := svc.repo.GetReview(ctx, imp.ReviewID)
	if err != nil {
		return Improvement{}, err
	}
	if err = checkResolvable(sub, rev); err != nil {
		return Improvement{}, err
	}
	if imp.IsResolved {
		return imp, nil
	}
	return svc.repo.ResolveImprovement(ctx, imp.ID)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Submission, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QuerySubmissions(ctx, filter, ordering)
}

func (svc *Service) Reviews(ctx context.Context, submissionID string) ([]Review, error) {
	if _, err := svc.repo.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	return svc.repo.ListReviews(ctx, submissionID)
}
