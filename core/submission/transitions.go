package submission

import "github.com/ps965xx7vn-lgtm/backend-sub002/core"

// allowedTransitions lists every legal status change. approved is terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusNeedsWork, StatusApproved},
	StatusNeedsWork: {StatusPending},
	StatusApproved:  {},
}

func (s Status) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether a submission may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status returns the submission status a verdict leads to.
func (v Verdict) Status() Status {
	if v == VerdictApproved {
		return StatusApproved
	}
	return StatusNeedsWork
}

func checkTransition(sub Submission, to Status, action string) error {
	if !CanTransition(sub.Status, to) {
		return core.NewInvalidStateError("submission", string(sub.Status), action)
	}
	return nil
}

func checkOwner(sub Submission, studentID, action string) error {
	if sub.StudentID != studentID {
		return core.NewPermissionError(action)
	}
	return nil
}

// checkResolvable allows resolving an improvement only once the submission was resubmitted
// after the review that raised it.
func checkResolvable(sub Submission, rev Review) error {
	if sub.RevisionCount <= rev.Revision {
		return core.NewInvalidStateError("improvement", "unresubmitted", "resolve")
	}
	return nil
}

// applyReview returns sub as it is after rev was recorded.
func applyReview(sub Submission, rev Review) Submission {
	sub.Status = rev.Verdict.Status()
	sub.UpdatedAt = rev.CreatedAt
	if sub.Status == StatusApproved {
		sub.ApprovedAt.SetValid(rev.CreatedAt)
	}
	return sub
}

// applyResubmit returns sub as it is after the student sent new content.
func applyResubmit(sub Submission, content string) Submission {
	now := core.NowFunc()
	sub.Status = StatusPending
	sub.RevisionCount++
	sub.Content = content
	sub.SubmittedAt = now
	sub.UpdatedAt = now
	return sub
}
