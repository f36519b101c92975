package content

import "github.com/ps965xx7vn-lgtm/backend-sub002/core"

var (
	commentTransitions = map[CommentStatus][]CommentStatus{
		CommentPending:  {CommentApproved, CommentHidden},
		CommentApproved: {CommentHidden},
		CommentHidden:   {CommentApproved},
	}

	articleTransitions = map[ArticleStatus][]ArticleStatus{
		ArticleDraft:     {ArticlePublished},
		ArticlePublished: {ArticleArchived},
		ArticleArchived:  {ArticlePublished},
	}
)

func CanTransitionComment(from, to CommentStatus) bool {
	for _, next := range commentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionArticle(from, to ArticleStatus) bool {
	for _, next := range articleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (a ModerationAction) IsValid() bool {
	return a == ActionApprove || a == ActionHide
}

// Status returns the comment status the action leads to.
func (a ModerationAction) Status() CommentStatus {
	if a == ActionHide {
		return CommentHidden
	}
	return CommentApproved
}

func (k ReactionKind) IsValid() bool {
	return k == ReactionLike || k == ReactionDislike
}

// Counter returns the article counter tracking reactions of kind k.
func (k ReactionKind) Counter() Counter {
	if k == ReactionDislike {
		return CounterDislikes
	}
	return CounterLikes
}

func (c Counter) IsArticleCounter() bool {
	switch c {
	case CounterViews, CounterLikes, CounterDislikes, CounterComments:
		return true
	}
	return false
}

func (c Counter) IsCommentCounter() bool {
	return c == CounterReplies || c == CounterReports
}

// checkCommentable rejects comments on articles that do not accept them.
func checkCommentable(a Article) error {
	if !a.AllowComments {
		return core.NewValidationError(errCommentsDisabled, core.FieldError{Field: "article_id", Error: errCommentsDisabled.Error()})
	}
	if a.Status != ArticlePublished {
		return core.NewInvalidStateError("article", string(a.Status), "comment on")
	}
	return nil
}

// replyDepth returns the depth of a reply to parent, enforcing MaxCommentDepth.
func replyDepth(parent Comment) (int, error) {
	if parent.Depth >= MaxCommentDepth {
		return 0, &core.DepthExceededError{MaxDepth: MaxCommentDepth}
	}
	return parent.Depth + 1, nil
}

func checkCommentTransition(c Comment, to CommentStatus, action string) error {
	if !CanTransitionComment(c.Status, to) {
		return core.NewInvalidStateError("comment", string(c.Status), action)
	}
	return nil
}

func checkArticleTransition(a Article, to ArticleStatus) error {
	if !CanTransitionArticle(a.Status, to) {
		return core.NewInvalidStateError("article", string(a.Status), "move to "+string(to))
	}
	return nil
}
