package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
)

const (
	articleColumns = "id, author_id, title, body, status, allow_comments, views_count, likes_count, dislikes_count, comments_count, published_at, created_at, updated_at"
	commentColumns = "id, article_id, author_id, parent_id, depth, content, status, is_edited, replies_count, reports_count, created_at, updated_at"
)

var articleOrderFields = map[string]bool{
	"title": true, "created_at": true, "updated_at": true, "published_at": true,
	"views_count": true, "likes_count": true, "comments_count": true,
}

type contentRepository struct {
	baseRepository
}

var _ content.Repository = (*contentRepository)(nil) // interface compliance check

func NewContentRepository(exec core.DBExecutor) *contentRepository {
	return &contentRepository{baseRepository{exec: exec}}
}

func (repo contentRepository) CreateArticle(ctx context.Context, a content.Article, exec ...core.DBExecutor) (content.Article, error) {
	exe := repo.getExec(exec)
	a.ID = core.NewID()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO articles ("+articleColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		a.ID, a.AuthorID, a.Title, a.Body, a.Status, a.AllowComments,
		a.ViewsCount, a.LikesCount, a.DislikesCount, a.CommentsCount, a.PublishedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return content.Article{}, errors.Wrap(err, "inserting article")
	}
	return a, nil
}

func (repo contentRepository) GetArticle(ctx context.Context, id string, exec ...core.DBExecutor) (content.Article, error) {
	if !core.IsValidID(id) {
		return content.Article{}, content.ErrArticleNotFound
	}
	var a content.Article
	if err := get(ctx, repo.getExec(exec), &a, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id); err != nil {
		return content.Article{}, trapNoRowsErr(err, content.ErrArticleNotFound, "finding article")
	}
	return a, nil
}

func (repo contentRepository) QueryArticles(ctx context.Context, filter *content.ArticleFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]content.Article, error) {
	var w where
	if filter != nil {
		if filter.AuthorID != "" {
			w.add("author_id = ?", filter.AuthorID)
		}
		if len(filter.Statuses) > 0 {
			w.add("status IN (?)", filter.Statuses)
		}
	}

	q := "SELECT " + articleColumns + " FROM articles" + w.String() + orderBy(ordering, articleOrderFields, "created_at DESC")
	articles := make([]content.Article, 0)
	if err := selectIn(ctx, repo.getExec(exec), &articles, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying articles")
	}
	return articles, nil
}

func (repo contentRepository) UpdateArticleStatus(ctx context.Context, id string, from, to content.ArticleStatus, publishedAt null.Time, exec ...core.DBExecutor) (content.Article, error) {
	exe := repo.getExec(exec)
	n, err := execAffected(ctx, exe,
		"UPDATE articles SET status = ?, published_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, publishedAt, core.NowFunc(), id, from)
	if err != nil {
		return content.Article{}, errors.Wrap(err, "updating article status")
	}
	if n == 0 {
		return content.Article{}, content.ErrStaleRow
	}
	return repo.GetArticle(ctx, id, exe)
}

// counterExpr renders an atomic increment that never drops the column below zero.
func counterExpr(counter content.Counter, delta int) string {
	if delta >= 0 {
		return fmt.Sprintf("%[1]s = %[1]s + %[2]d", counter, delta)
	}
	return fmt.Sprintf("%[1]s = CASE WHEN %[1]s >= %[2]d THEN %[1]s - %[2]d ELSE 0 END", counter, -delta)
}

func (repo contentRepository) IncrementArticleCounter(ctx context.Context, id string, counter content.Counter, delta int, exec ...core.DBExecutor) error {
	if !counter.IsArticleCounter() {
		return errors.Errorf("unknown article counter %q", counter)
	}
	n, err := execAffected(ctx, repo.getExec(exec), "UPDATE articles SET "+counterExpr(counter, delta)+" WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "updating article counter")
	}
	if n == 0 {
		return content.ErrArticleNotFound
	}
	return nil
}

func (repo contentRepository) RecountArticle(ctx context.Context, id string, exec ...core.DBExecutor) (content.Article, error) {
	exe := repo.getExec(exec)
	n, err := execAffected(ctx, exe,
		"UPDATE articles SET "+
			"views_count = (SELECT COUNT(*) FROM article_views WHERE article_id = articles.id), "+
			"likes_count = (SELECT COUNT(*) FROM reactions WHERE article_id = articles.id AND kind = ?), "+
			"dislikes_count = (SELECT COUNT(*) FROM reactions WHERE article_id = articles.id AND kind = ?), "+
			"comments_count = (SELECT COUNT(*) FROM comments WHERE article_id = articles.id) "+
			"WHERE id = ?",
		content.ReactionLike, content.ReactionDislike, id)
	if err != nil {
		return content.Article{}, errors.Wrap(err, "recounting article")
	}
	if n == 0 {
		return content.Article{}, content.ErrArticleNotFound
	}

	_, err = execAffected(ctx, exe,
		"UPDATE comments SET "+
			"replies_count = (SELECT COUNT(*) FROM comments c WHERE c.parent_id = comments.id), "+
			"reports_count = (SELECT COUNT(*) FROM comment_reports r WHERE r.comment_id = comments.id) "+
			"WHERE article_id = ?", id)
	if err != nil {
		return content.Article{}, errors.Wrap(err, "recounting comments")
	}
	return repo.GetArticle(ctx, id, exe)
}

func (repo contentRepository) CreateComment(ctx context.Context, c content.Comment, exec ...core.DBExecutor) (content.Comment, error) {
	exe := repo.getExec(exec)
	c.ID = core.NewID()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO comments ("+commentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		c.ID, c.ArticleID, c.AuthorID, c.ParentID, c.Depth, c.Content, c.Status,
		c.IsEdited, c.RepliesCount, c.ReportsCount, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return content.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo contentRepository) GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (content.Comment, error) {
	if !core.IsValidID(id) {
		return content.Comment{}, content.ErrCommentNotFound
	}
	var c content.Comment
	if err := get(ctx, repo.getExec(exec), &c, "SELECT "+commentColumns+" FROM comments WHERE id = ?", id); err != nil {
		return content.Comment{}, trapNoRowsErr(err, content.ErrCommentNotFound, "finding comment")
	}
	return c, nil
}

func (repo contentRepository) ListComments(ctx context.Context, articleID string, statuses []content.CommentStatus, exec ...core.DBExecutor) ([]content.Comment, error) {
	var w where
	w.add("article_id = ?", articleID)
	if len(statuses) > 0 {
		w.add("status IN (?)", statuses)
	}
	comments := make([]content.Comment, 0)
	q := "SELECT " + commentColumns + " FROM comments" + w.String() + " ORDER BY created_at, id"
	if err := selectIn(ctx, repo.getExec(exec), &comments, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting comments")
	}
	return comments, nil
}

func (repo contentRepository) UpdateCommentContent(ctx context.Context, id, text string, exec ...core.DBExecutor) (content.Comment, error) {
	exe := repo.getExec(exec)
	n, err := execAffected(ctx, exe,
		"UPDATE comments SET content = ?, is_edited = ?, updated_at = ? WHERE id = ?",
		text, true, core.NowFunc(), id)
	if err != nil {
		return content.Comment{}, errors.Wrap(err, "updating comment")
	}
	if n == 0 {
		return content.Comment{}, content.ErrCommentNotFound
	}
	return repo.GetComment(ctx, id, exe)
}

func (repo contentRepository) UpdateCommentStatus(ctx context.Context, id string, from, to content.CommentStatus, exec ...core.DBExecutor) (content.Comment, error) {
	exe := repo.getExec(exec)
	n, err := execAffected(ctx, exe,
		"UPDATE comments SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, core.NowFunc(), id, from)
	if err != nil {
		return content.Comment{}, errors.Wrap(err, "updating comment status")
	}
	if n == 0 {
		return content.Comment{}, content.ErrStaleRow
	}
	return repo.GetComment(ctx, id, exe)
}

func (repo contentRepository) IncrementCommentCounter(ctx context.Context, id string, counter content.Counter, delta int, exec ...core.DBExecutor) error {
	if !counter.IsCommentCounter() {
		return errors.Errorf("unknown comment counter %q", counter)
	}
	n, err := execAffected(ctx, repo.getExec(exec), "UPDATE comments SET "+counterExpr(counter, delta)+" WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "updating comment counter")
	}
	if n == 0 {
		return content.ErrCommentNotFound
	}
	return nil
}

func (repo contentRepository) CreateReport(ctx context.Context, r content.CommentReport, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO comment_reports (comment_id, reporter_id, reason, created_at) VALUES (?, ?, ?, ?)"),
		r.CommentID, r.ReporterID, r.Reason, r.CreatedAt.UTC())
	if err != nil {
		return database.TrapUniqueErr(err, content.ErrAlreadyReported, "inserting comment report")
	}
	return nil
}

func (repo contentRepository) GetReaction(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (content.Reaction, error) {
	var r content.Reaction
	err := get(ctx, repo.getExec(exec), &r,
		"SELECT user_id, article_id, kind, created_at, updated_at FROM reactions WHERE user_id = ? AND article_id = ?",
		userID, articleID)
	if err != nil {
		return content.Reaction{}, trapNoRowsErr(err, content.ErrReactionNotFound, "finding reaction")
	}
	return r, nil
}

func (repo contentRepository) InsertReaction(ctx context.Context, r content.Reaction, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"INSERT INTO reactions (user_id, article_id, kind, created_at, updated_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING",
		r.UserID, r.ArticleID, r.Kind, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "inserting reaction")
	}
	return n > 0, nil
}

func (repo contentRepository) SwapReactionKind(ctx context.Context, userID, articleID string, from, to content.ReactionKind, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE reactions SET kind = ?, updated_at = ? WHERE user_id = ? AND article_id = ? AND kind = ?",
		to, core.NowFunc(), userID, articleID, from)
	if err != nil {
		return false, errors.Wrap(err, "updating reaction")
	}
	return n > 0, nil
}

func (repo contentRepository) DeleteReaction(ctx context.Context, userID, articleID string, kind content.ReactionKind, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM reactions WHERE user_id = ? AND article_id = ? AND kind = ?", userID, articleID, kind)
	if err != nil {
		return false, errors.Wrap(err, "deleting reaction")
	}
	return n > 0, nil
}

func (repo contentRepository) InsertBookmark(ctx context.Context, b content.Bookmark, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"INSERT INTO bookmarks (user_id, article_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		b.UserID, b.ArticleID, b.CreatedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "inserting bookmark")
	}
	return n > 0, nil
}

func (repo contentRepository) DeleteBookmark(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM bookmarks WHERE user_id = ? AND article_id = ?", userID, articleID)
	if err != nil {
		return false, errors.Wrap(err, "deleting bookmark")
	}
	return n > 0, nil
}

func (repo contentRepository) ListBookmarks(ctx context.Context, userID string, exec ...core.DBExecutor) ([]content.Bookmark, error) {
	bookmarks := make([]content.Bookmark, 0)
	err := selectAll(ctx, repo.getExec(exec), &bookmarks,
		"SELECT user_id, article_id, created_at FROM bookmarks WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting bookmarks")
	}
	return bookmarks, nil
}

func (repo contentRepository) UpsertProgress(ctx context.Context, p content.ReadingProgress, exec ...core.DBExecutor) (content.ReadingProgress, error) {
	exe := repo.getExec(exec)
	p.UpdatedAt = p.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO reading_progress (user_id, article_id, progress, updated_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (user_id, article_id) DO UPDATE SET progress = excluded.progress, updated_at = excluded.updated_at"),
		p.UserID, p.ArticleID, p.Progress, p.UpdatedAt)
	if err != nil {
		return content.ReadingProgress{}, errors.Wrap(err, "upserting reading progress")
	}
	return p, nil
}

func (repo contentRepository) GetProgress(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (content.ReadingProgress, error) {
	var p content.ReadingProgress
	err := get(ctx, repo.getExec(exec), &p,
		"SELECT user_id, article_id, progress, updated_at FROM reading_progress WHERE user_id = ? AND article_id = ?",
		userID, articleID)
	if err != nil {
		return content.ReadingProgress{}, trapNoRowsErr(err, content.ErrProgressNotFound, "finding reading progress")
	}
	return p, nil
}

func (repo contentRepository) InsertView(ctx context.Context, userID, articleID string, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"INSERT INTO article_views (user_id, article_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		userID, articleID, core.NowFunc())
	if err != nil {
		return false, errors.Wrap(err, "inserting article view")
	}
	return n > 0, nil
}
