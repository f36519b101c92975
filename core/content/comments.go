package content

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

func commentPayload(c Comment) map[string]interface{} {
	return map[string]interface{}{
		"comment_id": c.ID,
		"article_id": c.ArticleID,
		"author_id":  c.AuthorID,
		"parent_id":  c.ParentID.String,
		"depth":      c.Depth,
	}
}

// PostComment adds a root comment, or a reply when nc.ParentID is set.
// Replies notify the parent's author; every comment notifies the article's author.
func (svc *Service) PostComment(ctx context.Context, userID, articleID string, nc NewComment) (Comment, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Comment{}, err
	}
	a, err := svc.repo.GetArticle(ctx, articleID)
	if err != nil {
		return Comment{}, err
	}
	if err = checkCommentable(a); err != nil {
		return Comment{}, err
	}

	now := core.NowFunc()
	c := Comment{
		ArticleID: a.ID,
		AuthorID:  userID,
		Content:   nc.Content,
		Status:    CommentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if svc.conf.CommentAutoApprove {
		c.Status = CommentApproved
	}

	var parent Comment
	if nc.ParentID != "" {
		if parent, err = svc.repo.GetComment(ctx, nc.ParentID); err != nil {
			if err == ErrCommentNotFound {
				return Comment{}, core.NewValidationError(errParentNotFound, core.FieldError{Field: "parent_id", Error: errParentNotFound.Error()})
			}
			return Comment{}, err
		}
		if parent.ArticleID != a.ID {
			return Comment{}, core.NewValidationError(errParentMismatch, core.FieldError{Field: "parent_id", Error: errParentMismatch.Error()})
		}
		if parent.Status == CommentHidden {
			return Comment{}, core.NewInvalidStateError("comment", string(parent.Status), "reply to")
		}
		if c.Depth, err = replyDepth(parent); err != nil {
			return Comment{}, err
		}
		c.ParentID = null.StringFrom(parent.ID)
	}

	var notes []core.Notification
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if c, err = svc.repo.CreateComment(ctx, c, tx); err != nil {
			return err
		}
		if err = svc.repo.IncrementArticleCounter(ctx, a.ID, CounterComments, 1, tx); err != nil {
			return err
		}
		if c.ParentID.Valid {
			if err = svc.repo.IncrementCommentCounter(ctx, parent.ID, CounterReplies, 1, tx); err != nil {
				return err
			}
			notes = core.Recipients(userID, EventCommentReplied, commentPayload(c), parent.AuthorID)
		}
		if !c.ParentID.Valid || parent.AuthorID != a.AuthorID {
			notes = append(notes, core.Recipients(userID, EventCommentPosted, commentPayload(c), a.AuthorID)...)
		}
		return svc.outbox.Add(ctx, tx, notes...)
	})
	if err != nil {
		return Comment{}, err
	}

	svc.outbox.Deliver(ctx, notes...)
	return c, nil
}

// EditComment replaces the content of a comment. Only its author may edit it.
func (svc *Service) EditComment(ctx context.Context, userID, commentID, content string) (Comment, error) {
	c, err := svc.repo.GetComment(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}
	if c.AuthorID != userID {
		return Comment{}, core.NewPermissionError("edit comment")
	}
	if c.Status == CommentHidden {
		return Comment{}, core.NewInvalidStateError("comment", string(c.Status), "edit")
	}
	ec := CommentEdit{Content: core.CleanString(content)}
	if err = svc.validate.Struct(ec); err != nil {
		return Comment{}, err
	}
	return svc.repo.UpdateCommentContent(ctx, c.ID, ec.Content)
}

// ModerateComment approves or hides a comment. Admins and the article's author may moderate.
func (svc *Service) ModerateComment(ctx context.Context, moderatorID, commentID string, action ModerationAction) (Comment, error) {
	if !action.IsValid() {
		return Comment{}, core.NewValidationError(errInvalidAction, core.FieldError{Field: "action", Error: errInvalidAction.Error()})
	}
	c, err := svc.repo.GetComment(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}
	a, err := svc.repo.GetArticle(ctx, c.ArticleID)
	if err != nil {
		return Comment{}, err
	}
	if a.AuthorID != moderatorID && !svc.hasRole(ctx, moderatorID, user.RoleAdmin) {
		return Comment{}, core.NewPermissionError("moderate comment")
	}
	to := action.Status()
	if err = checkCommentTransition(c, to, string(action)); err != nil {
		return Comment{}, err
	}

	c, err = svc.repo.UpdateCommentStatus(ctx, c.ID, c.Status, to)
	if err == ErrStaleRow {
		return Comment{}, core.NewConflictError(err)
	}
	return c, err
}

// ReportComment flags a comment. Each user reports a comment at most once and
// a comment reaching the report threshold is hidden.
func (svc *Service) ReportComment(ctx context.Context, userID, commentID string, nr NewReport) (Comment, error) {
	nr.Reason = core.CleanString(nr.Reason)
	if err := svc.validate.Struct(nr); err != nil {
		return Comment{}, err
	}
	c, err := svc.repo.GetComment(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}
	if c.AuthorID == userID {
		return Comment{}, core.NewPermissionError("report own comment")
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		r := CommentReport{CommentID: c.ID, ReporterID: userID, Reason: nr.Reason, CreatedAt: core.NowFunc()}
		if err = svc.repo.CreateReport(ctx, r, tx); err != nil {
			return err
		}
		if err = svc.repo.IncrementCommentCounter(ctx, c.ID, CounterReports, 1, tx); err != nil {
			return err
		}
		if c, err = svc.repo.GetComment(ctx, c.ID, tx); err != nil {
			return err
		}
		threshold := svc.conf.ReportThreshold
		if threshold > 0 && c.ReportsCount >= threshold && CanTransitionComment(c.Status, CommentHidden) {
			c, err = svc.repo.UpdateCommentStatus(ctx, c.ID, c.Status, CommentHidden, tx)
			return err
		}
		return nil
	})
	if err != nil {
		if err == ErrStaleRow {
			return Comment{}, core.NewConflictError(err)
		}
		return Comment{}, err
	}
	return c, nil
}

func (svc *Service) GetComment(ctx context.Context, id string) (Comment, error) {
	return svc.repo.GetComment(ctx, id)
}

// Comments lists the visible comments of an article, oldest first.
func (svc *Service) Comments(ctx context.Context, articleID string) ([]Comment, error) {
	if _, err := svc.repo.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return svc.repo.ListComments(ctx, articleID, []CommentStatus{CommentApproved})
}
