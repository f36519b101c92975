package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/submission"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
)

const (
	submissionColumns  = "id, student_id, lesson_id, content, status, revision_count, submitted_at, approved_at, created_at, updated_at"
	reviewColumns      = "id, submission_id, reviewer_id, revision, verdict, comment, time_spent, created_at"
	improvementColumns = "id, review_id, submission_id, category, description, priority, is_new, is_resolved, resolved_at, created_at"
)

var submissionOrderFields = map[string]bool{
	"created_at": true, "updated_at": true, "submitted_at": true, "status": true, "revision_count": true,
}

type submissionRepository struct {
	baseRepository
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) *submissionRepository {
	return &submissionRepository{baseRepository{exec: exec}}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	exe := repo.getExec(exec)
	sub.ID = core.NewID()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO submissions ("+submissionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		sub.ID, sub.StudentID, sub.LessonID, sub.Content, sub.Status, sub.RevisionCount,
		sub.SubmittedAt.UTC(), sub.ApprovedAt, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		return submission.Submission{}, database.TrapUniqueErr(err, submission.ErrActiveSubmissionExists, "inserting submission")
	}
	return sub, nil
}

func (repo submissionRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Submission, error) {
	if !core.IsValidID(id) {
		return submission.Submission{}, submission.ErrNotFound
	}
	var sub submission.Submission
	if err := get(ctx, repo.getExec(exec), &sub, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "finding submission")
	}
	return sub, nil
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter *submission.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]submission.Submission, error) {
	var w where
	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.LessonID != "" {
			w.add("lesson_id = ?", filter.LessonID)
		}
		if filter.CourseID != "" {
			w.add("lesson_id IN (SELECT id FROM lessons WHERE course_id = ?)", filter.CourseID)
		}
		if len(filter.Statuses) > 0 {
			w.add("status IN (?)", filter.Statuses)
		}
	}

	q := "SELECT " + submissionColumns + " FROM submissions" + w.String() + orderBy(ordering, submissionOrderFields, "submitted_at ASC")
	subs := make([]submission.Submission, 0)
	if err := selectIn(ctx, repo.getExec(exec), &subs, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (repo submissionRepository) UpdateSubmission(ctx context.Context, sub submission.Submission, expStatus submission.Status, expRevision int, exec ...core.DBExecutor) (submission.Submission, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE submissions SET content = ?, status = ?, revision_count = ?, submitted_at = ?, approved_at = ?, updated_at = ? "+
			"WHERE id = ? AND status = ? AND revision_count = ?",
		sub.Content, sub.Status, sub.RevisionCount, sub.SubmittedAt.UTC(), sub.ApprovedAt, sub.UpdatedAt.UTC(),
		sub.ID, expStatus, expRevision)
	if err != nil {
		return submission.Submission{}, database.TrapUniqueErr(err, submission.ErrActiveSubmissionExists, "updating submission")
	}
	if n == 0 {
		return submission.Submission{}, submission.ErrStaleSubmission
	}
	return sub, nil
}

func (repo submissionRepository) CreateReview(ctx context.Context, rev submission.Review, exec ...core.DBExecutor) (submission.Review, error) {
	exe := repo.getExec(exec)
	rev.ID = core.NewID()
	rev.CreatedAt = rev.CreatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO reviews ("+reviewColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		rev.ID, rev.SubmissionID, rev.ReviewerID, rev.Revision, rev.Verdict, rev.Comment, rev.TimeSpent, rev.CreatedAt)
	if err != nil {
		return submission.Review{}, database.TrapUniqueErr(err, submission.ErrReviewExists, "inserting review")
	}

	for i := range rev.Improvements {
		imp := &rev.Improvements[i]
		imp.ID = core.NewID()
		imp.ReviewID = rev.ID
		imp.SubmissionID = rev.SubmissionID
		imp.CreatedAt = imp.CreatedAt.UTC()
		_, err = exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO improvements ("+improvementColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			imp.ID, imp.ReviewID, imp.SubmissionID, imp.Category, imp.Description, imp.Priority,
			imp.IsNew, imp.IsResolved, imp.ResolvedAt, imp.CreatedAt)
		if err != nil {
			return submission.Review{}, errors.Wrap(err, "inserting improvement")
		}
	}
	if rev.Improvements == nil {
		rev.Improvements = []submission.Improvement{}
	}
	return rev, nil
}

func (repo submissionRepository) GetReview(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Review, error) {
	if !core.IsValidID(id) {
		return submission.Review{}, submission.ErrReviewNotFound
	}
	exe := repo.getExec(exec)
	var rev submission.Review
	if err := get(ctx, exe, &rev, "SELECT "+reviewColumns+" FROM reviews WHERE id = ?", id); err != nil {
		return submission.Review{}, trapNoRowsErr(err, submission.ErrReviewNotFound, "finding review")
	}
	rev.Improvements = make([]submission.Improvement, 0)
	err := selectAll(ctx, exe, &rev.Improvements,
		"SELECT "+improvementColumns+" FROM improvements WHERE review_id = ? ORDER BY created_at, id", id)
	if err != nil {
		return submission.Review{}, errors.Wrap(err, "selecting improvements")
	}
	return rev, nil
}

func (repo submissionRepository) ListReviews(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]submission.Review, error) {
	exe := repo.getExec(exec)
	reviews := make([]submission.Review, 0)
	err := selectAll(ctx, exe, &reviews,
		"SELECT "+reviewColumns+" FROM reviews WHERE submission_id = ? ORDER BY revision, created_at", submissionID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting reviews")
	}

	var imps []submission.Improvement
	err = selectAll(ctx, exe, &imps,
		"SELECT "+improvementColumns+" FROM improvements WHERE submission_id = ? ORDER BY created_at, id", submissionID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting improvements")
	}
	byReview := make(map[string][]submission.Improvement, len(reviews))
	for _, imp := range imps {
		byReview[imp.ReviewID] = append(byReview[imp.ReviewID], imp)
	}
	for i := range reviews {
		reviews[i].Improvements = byReview[reviews[i].ID]
		if reviews[i].Improvements == nil {
			reviews[i].Improvements = []submission.Improvement{}
		}
	}
	return reviews, nil
}

func (repo submissionRepository) GetImprovement(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Improvement, error) {
	if !core.IsValidID(id) {
		return submission.Improvement{}, submission.ErrImprovementNotFound
	}
	var imp submission.Improvement
	if err := get(ctx, repo.getExec(exec), &imp, "SELECT "+improvementColumns+" FROM improvements WHERE id = ?", id); err != nil {
		return submission.Improvement{}, trapNoRowsErr(err, submission.ErrImprovementNotFound, "finding improvement")
	}
	return imp, nil
}

func (repo submissionRepository) ResolveImprovement(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Improvement, error) {
	exe := repo.getExec(exec)
	_, err := execAffected(ctx, exe,
		"UPDATE improvements SET is_resolved = ?, is_new = ?, resolved_at = ? WHERE id = ? AND is_resolved = ?",
		true, false, core.NowFunc(), id, false)
	if err != nil {
		return submission.Improvement{}, errors.Wrap(err, "resolving improvement")
	}
	return repo.GetImprovement(ctx, id, exe)
}

func (repo submissionRepository) ClearNewImprovements(ctx context.Context, submissionID string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE improvements SET is_new = ? WHERE submission_id = ? AND is_resolved = ? AND is_new = ?",
		false, submissionID, false, true)
	if err != nil {
		return errors.Wrap(err, "clearing new improvements")
	}
	return nil
}
