package content_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/notification"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	logsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/logger"
	testutil "github.com/ps965xx7vn-lgtm/backend-sub002/tests"
)

type fixture struct {
	env     *testutil.Env
	author  user.User
	reader  user.User
	admin   user.User
	article content.Article
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	f := fixture{
		env:    env,
		author: env.CreateUser(t, "Author", "author@test.cd", user.RoleReviewer),
		reader: env.CreateUser(t, "Reader", "reader@test.cd", user.RoleStudent),
		admin:  env.CreateUser(t, "Admin", "admin@test.cd", user.RoleAdmin),
	}
	f.article = env.CreateArticle(t, f.author.ID, content.ArticlePublished, true)
	return f
}

// service returns a content service sharing the fixture's storage but using conf.
func (f fixture) service(conf core.WorkflowConfig) *content.Service {
	return content.NewService(content.Deps{
		DB:        f.env.DB,
		Repo:      f.env.ContentRepo,
		Authz:     f.env.Users,
		Outbox:    f.env.Outbox,
		Logger:    logsvc.Nop,
		Validator: f.env.Validator,
		Conf:      conf,
	})
}

func (f fixture) post(t *testing.T, userID, parentID string) content.Comment {
	t.Helper()
	c, err := f.env.Content.PostComment(context.Background(), userID, f.article.ID, content.NewComment{
		Content:  "Nice article",
		ParentID: parentID,
	})
	require.NoError(t, err)
	return c
}

func TestService_reactions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.Content

	a, err := svc.SetReaction(ctx, f.reader.ID, f.article.ID, content.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, a.LikesCount)
	assert.Equal(t, 0, a.DislikesCount)

	a, err = svc.SetReaction(ctx, f.reader.ID, f.article.ID, content.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, a.LikesCount, "repeating a reaction is a no-op")

	a, err = svc.SetReaction(ctx, f.reader.ID, f.article.ID, content.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, 0, a.LikesCount)
	assert.Equal(t, 1, a.DislikesCount)

	r, err := svc.GetReaction(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ReactionDislike, r.Kind)

	a, err = svc.RemoveReaction(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.LikesCount)
	assert.Equal(t, 0, a.DislikesCount)

	_, err = svc.GetReaction(ctx, f.reader.ID, f.article.ID)
	assert.Equal(t, content.ErrReactionNotFound, err)

	a, err = svc.RemoveReaction(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.DislikesCount, "removing a missing reaction is a no-op")
}

func TestService_SetReaction_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	draft := f.env.CreateArticle(t, f.author.ID, content.ArticleDraft, true)

	tests := []struct {
		name      string
		articleID string
		kind      content.ReactionKind
		wantErr   func(error) bool
	}{
		{name: "unknown kind", articleID: f.article.ID, kind: "love", wantErr: core.IsValidation},
		{name: "draft article", articleID: draft.ID, kind: content.ReactionLike, wantErr: core.IsInvalidState},
		{name: "missing article", articleID: core.NewID(), kind: content.ReactionLike, wantErr: func(err error) bool {
			return err == content.ErrArticleNotFound
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.Content.SetReaction(ctx, f.reader.ID, tt.articleID, tt.kind)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
		})
	}
}

func TestService_SetReaction_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	users := make([]user.User, 8)
	for i := range users {
		users[i] = f.env.CreateUser(t, fmt.Sprintf("User %d", i), fmt.Sprintf("user%d@test.cd", i), user.RoleStudent)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(users)*2)
	for _, usr := range users {
		usr := usr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.env.Content.SetReaction(ctx, usr.ID, f.article.ID, content.ReactionLike); err != nil {
				errs <- err
			}
			if _, err := f.env.Content.SetReaction(ctx, usr.ID, f.article.ID, content.ReactionDislike); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("SetReaction() error = %v", err)
	}

	a, err := f.env.Content.GetArticle(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.LikesCount)
	assert.Equal(t, len(users), a.DislikesCount)
}

func TestService_comments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := f.env.CreateUser(t, "Other", "other@test.cd", user.RoleStudent)

	c0 := f.post(t, f.reader.ID, "")
	assert.Equal(t, 0, c0.Depth)
	assert.Equal(t, content.CommentApproved, c0.Status)
	assert.Equal(t, []string{content.EventCommentPosted}, f.env.Notifier.Events(f.author.ID))

	c1 := f.post(t, other.ID, c0.ID)
	assert.Equal(t, 1, c1.Depth)
	assert.Equal(t, c0.ID, c1.ParentID.String)
	assert.Equal(t, []string{content.EventCommentReplied}, f.env.Notifier.Events(f.reader.ID))

	c2 := f.post(t, f.reader.ID, c1.ID)
	assert.Equal(t, 2, c2.Depth)

	_, err := f.env.Content.PostComment(ctx, other.ID, f.article.ID, content.NewComment{Content: "Too deep", ParentID: c2.ID})
	require.Error(t, err)
	assert.True(t, core.IsDepthExceeded(err))

	a, err := f.env.Content.GetArticle(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, a.CommentsCount)

	c0, err = f.env.Content.GetComment(ctx, c0.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c0.RepliesCount)

	comments, err := f.env.Content.Comments(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 3)

	// the author replying to a comment on their own article is not notified of it
	f.env.Notifier.Reset()
	f.post(t, f.author.ID, c0.ID)
	assert.Empty(t, f.env.Notifier.Events(f.author.ID))
	assert.Equal(t, []string{content.EventCommentReplied}, f.env.Notifier.Events(f.reader.ID))
}

func TestService_PostComment_notifierDown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.env.Notifier.Fail(errors.New("queue down"))

	c, err := f.env.Content.PostComment(ctx, f.reader.ID, f.article.ID, content.NewComment{Content: "Nice article"})
	require.NoError(t, err)

	c, err = f.env.Content.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.reader.ID, c.AuthorID)
	a, err := f.env.Content.GetArticle(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.CommentsCount)
	assert.Empty(t, f.env.Notifier.Notes())

	var posted []notification.Message
	for _, m := range f.env.Messages(t) {
		if m.EventType == content.EventCommentPosted {
			posted = append(posted, m)
		}
	}
	require.Len(t, posted, 1)
	assert.Equal(t, f.author.ID, posted[0].RecipientID)
	assert.Equal(t, notification.StatusPending, posted[0].Status)
	assert.Equal(t, 1, posted[0].Attempts)
	assert.Equal(t, "queue down", posted[0].LastError)
}

func TestService_PostComment_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	draft := f.env.CreateArticle(t, f.author.ID, content.ArticleDraft, true)
	closed := f.env.CreateArticle(t, f.author.ID, content.ArticlePublished, false)
	another := f.env.CreateArticle(t, f.author.ID, content.ArticlePublished, true)
	foreign, err := f.env.Content.PostComment(ctx, f.reader.ID, another.ID, content.NewComment{Content: "Elsewhere"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		articleID string
		nc        content.NewComment
		wantErr   func(error) bool
	}{
		{name: "too short", articleID: f.article.ID, nc: content.NewComment{Content: "ok"}, wantErr: core.IsValidation},
		{name: "draft article", articleID: draft.ID, nc: content.NewComment{Content: "Hello"}, wantErr: core.IsInvalidState},
		{name: "comments disabled", articleID: closed.ID, nc: content.NewComment{Content: "Hello"}, wantErr: core.IsValidation},
		{name: "parent on another article", articleID: f.article.ID, nc: content.NewComment{Content: "Hello", ParentID: foreign.ID}, wantErr: core.IsValidation},
		{name: "missing parent", articleID: f.article.ID, nc: content.NewComment{Content: "Hello", ParentID: core.NewID()}, wantErr: core.IsValidation},
		{name: "missing article", articleID: core.NewID(), nc: content.NewComment{Content: "Hello"}, wantErr: func(err error) bool {
			return err == content.ErrArticleNotFound
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.Content.PostComment(ctx, f.reader.ID, tt.articleID, tt.nc)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
		})
	}
}

func TestService_EditComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.post(t, f.reader.ID, "")

	_, err := f.env.Content.EditComment(ctx, f.author.ID, c.ID, "Hijacked")
	assert.True(t, core.IsPermission(err))

	_, err = f.env.Content.EditComment(ctx, f.reader.ID, c.ID, "x")
	assert.True(t, core.IsValidation(err))

	c, err = f.env.Content.EditComment(ctx, f.reader.ID, c.ID, "Edited text")
	require.NoError(t, err)
	assert.Equal(t, "Edited text", c.Content)
	assert.True(t, c.IsEdited)
}

func TestService_ModerateComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conf := f.env.Conf.Workflow
	conf.CommentAutoApprove = false
	svc := f.service(conf)

	c, err := svc.PostComment(ctx, f.reader.ID, f.article.ID, content.NewComment{Content: "Pending comment"})
	require.NoError(t, err)
	assert.Equal(t, content.CommentPending, c.Status)

	comments, err := svc.Comments(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Empty(t, comments, "pending comments are not listed")

	_, err = svc.ModerateComment(ctx, f.reader.ID, c.ID, content.ActionApprove)
	assert.True(t, core.IsPermission(err))

	_, err = svc.ModerateComment(ctx, f.author.ID, c.ID, "delete")
	assert.True(t, core.IsValidation(err))

	c, err = svc.ModerateComment(ctx, f.author.ID, c.ID, content.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, content.CommentApproved, c.Status)

	_, err = svc.ModerateComment(ctx, f.author.ID, c.ID, content.ActionApprove)
	assert.True(t, core.IsInvalidState(err))

	c, err = svc.ModerateComment(ctx, f.admin.ID, c.ID, content.ActionHide)
	require.NoError(t, err)
	assert.Equal(t, content.CommentHidden, c.Status)

	_, err = svc.PostComment(ctx, f.author.ID, f.article.ID, content.NewComment{Content: "Reply", ParentID: c.ID})
	assert.True(t, core.IsInvalidState(err), "hidden comments cannot be replied to")

	_, err = svc.EditComment(ctx, f.reader.ID, c.ID, "Edited text")
	assert.True(t, core.IsInvalidState(err))
}

func TestService_ReportComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conf := f.env.Conf.Workflow
	conf.ReportThreshold = 2
	svc := f.service(conf)
	other := f.env.CreateUser(t, "Other", "other@test.cd", user.RoleStudent)

	c := f.post(t, f.reader.ID, "")

	_, err := svc.ReportComment(ctx, f.reader.ID, c.ID, content.NewReport{Reason: "mine"})
	assert.True(t, core.IsPermission(err))

	c, err = svc.ReportComment(ctx, f.author.ID, c.ID, content.NewReport{Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.ReportsCount)
	assert.Equal(t, content.CommentApproved, c.Status)

	_, err = svc.ReportComment(ctx, f.author.ID, c.ID, content.NewReport{Reason: "spam"})
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))
	assert.True(t, errors.Is(err, content.ErrAlreadyReported))

	c, err = svc.ReportComment(ctx, other.ID, c.ID, content.NewReport{})
	require.NoError(t, err)
	assert.Equal(t, 2, c.ReportsCount)
	assert.Equal(t, content.CommentHidden, c.Status)
}

func TestService_ToggleBookmark(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, want := range []content.BookmarkResult{content.BookmarkAdded, content.BookmarkRemoved, content.BookmarkAdded} {
		got, err := f.env.Content.ToggleBookmark(ctx, f.reader.ID, f.article.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	bookmarks, err := f.env.Content.Bookmarks(ctx, f.reader.ID)
	require.NoError(t, err)
	require.Len(t, bookmarks, 1)
	assert.Equal(t, f.article.ID, bookmarks[0].ArticleID)

	_, err = f.env.Content.ToggleBookmark(ctx, f.reader.ID, core.NewID())
	assert.Equal(t, content.ErrArticleNotFound, err)
}

func TestService_UpdateProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		progress int
		wantErr  bool
	}{
		{name: "negative", progress: -1, wantErr: true},
		{name: "over 100", progress: 101, wantErr: true},
		{name: "half", progress: 50},
		{name: "backwards", progress: 20},
		{name: "done", progress: 100},
		{name: "zero", progress: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.env.Content.UpdateProgress(ctx, f.reader.ID, f.article.ID, tt.progress)
			if tt.wantErr {
				assert.True(t, core.IsValidation(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.progress, p.Progress)

			got, err := f.env.Content.GetProgress(ctx, f.reader.ID, f.article.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.progress, got.Progress)
		})
	}
}

func TestService_RecordView(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.env.Content.RecordView(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ViewsCount)

	a, err = f.env.Content.RecordView(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ViewsCount, "a user views an article once")

	a, err = f.env.Content.RecordView(ctx, f.author.ID, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ViewsCount)
}

func TestService_RecountArticle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c := f.post(t, f.reader.ID, "")
	f.post(t, f.author.ID, c.ID)
	_, err := f.env.Content.SetReaction(ctx, f.reader.ID, f.article.ID, content.ReactionLike)
	require.NoError(t, err)
	_, err = f.env.Content.RecordView(ctx, f.reader.ID, f.article.ID)
	require.NoError(t, err)

	_, err = f.env.DB.Exec(f.env.DB.Rebind(
		"UPDATE articles SET views_count = 9, likes_count = 9, dislikes_count = 9, comments_count = 9 WHERE id = ?"), f.article.ID)
	require.NoError(t, err)
	_, err = f.env.DB.Exec(f.env.DB.Rebind("UPDATE comments SET replies_count = 9 WHERE id = ?"), c.ID)
	require.NoError(t, err)

	a, err := f.env.Content.RecountArticle(ctx, f.article.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ViewsCount)
	assert.Equal(t, 1, a.LikesCount)
	assert.Equal(t, 0, a.DislikesCount)
	assert.Equal(t, 2, a.CommentsCount)

	c, err = f.env.Content.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.RepliesCount)

	_, err = f.env.Content.RecountArticle(ctx, core.NewID())
	assert.Equal(t, content.ErrArticleNotFound, err)
}

func TestService_articles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.env.Content.CreateArticle(ctx, f.reader.ID, content.NewArticle{Title: "Mine", Body: "Body"})
	assert.True(t, core.IsPermission(err))

	_, err = f.env.Content.CreateArticle(ctx, f.author.ID, content.NewArticle{Title: " ", Body: "Body"})
	assert.True(t, core.IsValidation(err))

	a, err := f.env.Content.CreateArticle(ctx, f.author.ID, content.NewArticle{Title: "Title", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, content.ArticleDraft, a.Status)
	assert.True(t, a.AllowComments)
	assert.False(t, a.PublishedAt.Valid)

	_, err = f.env.Content.ChangeArticleStatus(ctx, f.reader.ID, a.ID, content.ArticlePublished)
	assert.True(t, core.IsPermission(err))

	_, err = f.env.Content.ChangeArticleStatus(ctx, f.author.ID, a.ID, content.ArticleArchived)
	assert.True(t, core.IsInvalidState(err))

	a, err = f.env.Content.ChangeArticleStatus(ctx, f.author.ID, a.ID, content.ArticlePublished)
	require.NoError(t, err)
	assert.Equal(t, content.ArticlePublished, a.Status)
	require.True(t, a.PublishedAt.Valid)
	publishedAt := a.PublishedAt.Time

	a, err = f.env.Content.ChangeArticleStatus(ctx, f.admin.ID, a.ID, content.ArticleArchived)
	require.NoError(t, err)
	a, err = f.env.Content.ChangeArticleStatus(ctx, f.author.ID, a.ID, content.ArticlePublished)
	require.NoError(t, err)
	assert.True(t, publishedAt.Equal(a.PublishedAt.Time), "republishing keeps the first publication date")

	articles, err := f.env.Content.QueryArticles(ctx, &content.ArticleFilter{
		AuthorID: f.author.ID,
		Statuses: []content.ArticleStatus{content.ArticlePublished},
	})
	require.NoError(t, err)
	assert.Len(t, articles, 2)
}
