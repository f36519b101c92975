package content

import (
	"context"
	"errors"

	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

var (
	// errors
	ErrArticleNotFound  = errors.New("article not found")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrReactionNotFound = errors.New("reaction not found")
	ErrProgressNotFound = errors.New("reading progress not found")
	ErrAlreadyReported  = errors.New("you already reported this comment")
	ErrStaleRow         = errors.New("row was modified concurrently")

	errCommentsDisabled = errors.New("comments are disabled for this article")
	errParentMismatch   = errors.New("parent comment belongs to another article")
	errParentNotFound   = errors.New("parent comment not found")
	errInvalidAction    = errors.New("unknown moderation action")
)

// maxRaceRetries bounds the optimistic retries of the single-row interactions.
const maxRaceRetries = 3

type (
	Repository interface {
		CreateArticle(ctx context.Context, a Article, exec ...core.DBExecutor) (Article, error)
		GetArticle(ctx context.Context, id string, exec ...core.DBExecutor) (Article, error)
		QueryArticles(ctx context.Context, filter *ArticleFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Article, error)
		// UpdateArticleStatus returns ErrStaleRow unless the article is still in status from.
		UpdateArticleStatus(ctx context.Context, id string, from, to ArticleStatus, publishedAt null.Time, exec ...core.DBExecutor) (Article, error)
		// IncrementArticleCounter adds delta to the counter in a single atomic statement.
		IncrementArticleCounter(ctx context.Context, id string, counter Counter, delta int, exec ...core.DBExecutor) error
		// RecountArticle rewrites the article counters and its comments' reply counts from the child rows.
		RecountArticle(ctx context.Context, id string, exec ...core.DBExecutor) (Article, error)

		CreateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (Comment, error)
		// ListComments returns the comments of an article in the given statuses, oldest first.
		ListComments(ctx context.Context, articleID string, statuses []CommentStatus, exec ...core.DBExecutor) ([]Comment, error)
		UpdateCommentContent(ctx context.Context, id, content string, exec ...core.DBExecutor) (Comment, error)
		// UpdateCommentStatus returns ErrStaleRow unless the comment is still in status from.
		UpdateCommentStatus(ctx context.Context, id string, from, to CommentStatus, exec ...core.DBExecutor) (Comment, error)
		IncrementCommentCounter(ctx context.Context, id string, counter Counter, delta int, exec ...core.DBExecutor) error
		// CreateReport returns a *core.ConflictError when the user already reported the comment.
		CreateReport(ctx context.Context, r CommentReport, exec ...core.DBExecutor) error

		GetReaction(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (Reaction, error)
		// InsertReaction inserts unless a reaction exists for the pair, reporting whether a row was written.
		InsertReaction(ctx context.Context, r Reaction, exec ...core.DBExecutor) (bool, error)
		// SwapReactionKind changes the kind only if it still is from, reporting whether a row was written.
		SwapReactionKind(ctx context.Context, userID, articleID string, from, to ReactionKind, exec ...core.DBExecutor) (bool, error)
		// DeleteReaction deletes the reaction only if it still is of kind, reporting whether a row was removed.
		DeleteReaction(ctx context.Context, userID, articleID string, kind ReactionKind, exec ...core.DBExecutor) (bool, error)

		InsertBookmark(ctx context.Context, b Bookmark, exec ...core.DBExecutor) (bool, error)
		DeleteBookmark(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (bool, error)
		ListBookmarks(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Bookmark, error)

		UpsertProgress(ctx context.Context, p ReadingProgress, exec ...core.DBExecutor) (ReadingProgress, error)
		GetProgress(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (ReadingProgress, error)

		// InsertView records the first view of an article by a user, reporting whether a row was written.
		InsertView(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (bool, error)
	}

	Deps struct {
		DB        core.DB
		Repo      Repository
		Authz     user.Authorizer
		Outbox    core.Outbox
		Logger    core.Logger
		Validator *core.Validator
		Conf      core.WorkflowConfig
	}

	Service struct {
		db       core.DB
		repo     Repository
		authz    user.Authorizer
		outbox   core.Outbox
		logger   core.Logger
		validate *core.Validator
		conf     core.WorkflowConfig
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		db:       deps.DB,
		repo:     deps.Repo,
		authz:    deps.Authz,
		outbox:   deps.Outbox,
		logger:   deps.Logger,
		validate: deps.Validator,
		conf:     deps.Conf,
	}
}

// hasRole treats an unresolvable role as a missing one.
func (svc *Service) hasRole(ctx context.Context, userID, role string) bool {
	ok, err := svc.authz.HasRole(ctx, userID, role)
	if err != nil {
		svc.logger.Warn("resolving role", err, map[string]interface{}{"user_id": userID, "role": role})
		return false
	}
	return ok
}

// CreateArticle creates a draft article. Only admins and reviewers write articles.
func (svc *Service) CreateArticle(ctx context.Context, authorID string, na NewArticle) (Article, error) {
	if !svc.hasRole(ctx, authorID, user.RoleAdmin) && !svc.hasRole(ctx, authorID, user.RoleReviewer) {
		return Article{}, core.NewPermissionError("create article")
	}
	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return Article{}, err
	}

	now := core.NowFunc()
	a := Article{
		AuthorID:      authorID,
		Title:         na.Title,
		Body:          na.Body,
		Status:        ArticleDraft,
		AllowComments: na.AllowComments == nil || *na.AllowComments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateArticle(ctx, a)
}

// ChangeArticleStatus publishes, archives or republishes an article. Authors and admins only.
func (svc *Service) ChangeArticleStatus(ctx context.Context, actorID, articleID string, to ArticleStatus) (Article, error) {
	a, err := svc.repo.GetArticle(ctx, articleID)
	if err != nil {
		return Article{}, err
	}
	if a.AuthorID != actorID && !svc.hasRole(ctx, actorID, user.RoleAdmin) {
		return Article{}, core.NewPermissionError("change article status")
	}
	if err = checkArticleTransition(a, to); err != nil {
		return Article{}, err
	}

	publishedAt := a.PublishedAt
	if to == ArticlePublished && !publishedAt.Valid {
		publishedAt = null.TimeFrom(core.NowFunc())
	}
	a, err = svc.repo.UpdateArticleStatus(ctx, a.ID, a.Status, to, publishedAt)
	if err == ErrStaleRow {
		return Article{}, core.NewConflictError(err)
	}
	return a, err
}

func (svc *Service) GetArticle(ctx context.Context, id string) (Article, error) {
	return svc.repo.GetArticle(ctx, id)
}

func (svc *Service) QueryArticles(ctx context.Context, filter *ArticleFilter, ordering ...core.DBOrdering) ([]Article, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryArticles(ctx, filter, ordering)
}

// RecountArticle reconciles the denormalized counters of an article with its child rows.
func (svc *Service) RecountArticle(ctx context.Context, articleID string) (Article, error) {
	var a Article
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		a, err = svc.repo.RecountArticle(ctx, articleID, tx)
		return err
	})
	return a, err
}
