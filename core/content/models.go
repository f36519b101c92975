package content

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

type CommentStatus string

const (
	CommentPending  CommentStatus = "pending"
	CommentApproved CommentStatus = "approved"
	CommentHidden   CommentStatus = "hidden"
)

type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionHide    ModerationAction = "hide"
)

type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

type BookmarkResult string

const (
	BookmarkAdded   BookmarkResult = "added"
	BookmarkRemoved BookmarkResult = "removed"
)

// Counter names a denormalized counter column.
type Counter string

const (
	CounterViews    Counter = "views_count"
	CounterLikes    Counter = "likes_count"
	CounterDislikes Counter = "dislikes_count"
	CounterComments Counter = "comments_count"
	CounterReplies  Counter = "replies_count"
	CounterReports  Counter = "reports_count"
)

const (
	// MaxCommentDepth is the depth of the deepest allowed reply; roots are at depth 0.
	MaxCommentDepth = 2
)

// Events emitted to the outbox.
const (
	EventCommentPosted  = "comment.posted"
	EventCommentReplied = "comment.replied"
)

type Article struct {
	ID            string        `json:"id" db:"id"`
	AuthorID      string        `json:"author_id" db:"author_id"`
	Title         string        `json:"title" db:"title"`
	Body          string        `json:"body" db:"body"`
	Status        ArticleStatus `json:"status" db:"status"`
	AllowComments bool          `json:"allow_comments" db:"allow_comments"`
	ViewsCount    int           `json:"views_count" db:"views_count"`
	LikesCount    int           `json:"likes_count" db:"likes_count"`
	DislikesCount int           `json:"dislikes_count" db:"dislikes_count"`
	CommentsCount int           `json:"comments_count" db:"comments_count"`
	PublishedAt   null.Time     `json:"published_at" db:"published_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

type Comment struct {
	ID           string        `json:"id" db:"id"`
	ArticleID    string        `json:"article_id" db:"article_id"`
	AuthorID     string        `json:"author_id" db:"author_id"`
	ParentID     null.String   `json:"parent_id" db:"parent_id"`
	Depth        int           `json:"depth" db:"depth"`
	Content      string        `json:"content" db:"content"`
	Status       CommentStatus `json:"status" db:"status"`
	IsEdited     bool          `json:"is_edited" db:"is_edited"`
	RepliesCount int           `json:"replies_count" db:"replies_count"`
	ReportsCount int           `json:"reports_count" db:"reports_count"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

func (c Comment) IsApproved() bool { return c.Status == CommentApproved }

type CommentReport struct {
	CommentID  string    `json:"comment_id" db:"comment_id"`
	ReporterID string    `json:"reporter_id" db:"reporter_id"`
	Reason     string    `json:"reason" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Reaction struct {
	UserID    string       `json:"user_id" db:"user_id"`
	ArticleID string       `json:"article_id" db:"article_id"`
	Kind      ReactionKind `json:"kind" db:"kind"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

type Bookmark struct {
	UserID    string    `json:"user_id" db:"user_id"`
	ArticleID string    `json:"article_id" db:"article_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ReadingProgress struct {
	UserID    string    `json:"user_id" db:"user_id"`
	ArticleID string    `json:"article_id" db:"article_id"`
	Progress  int       `json:"progress" db:"progress"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewArticle struct {
	Title         string `json:"title" validate:"required,notblank,max=200"`
	Body          string `json:"body" validate:"required,notblank"`
	AllowComments *bool  `json:"allow_comments"`
}

func (na *NewArticle) Clean() {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
}

type NewComment struct {
	Content  string `json:"content" validate:"min=3,max=2000"`
	ParentID string `json:"parent_id" validate:"omitempty,id"`
}

func (nc *NewComment) Clean() {
	nc.Content = core.CleanString(nc.Content)
	nc.ParentID = core.CleanString(nc.ParentID)
}

type CommentEdit struct {
	Content string `json:"content" validate:"min=3,max=2000"`
}

type NewReport struct {
	Reason string `json:"reason" validate:"max=500"`
}

type NewReaction struct {
	Kind ReactionKind `json:"kind" validate:"required,oneof=like dislike"`
}

type ProgressUpdate struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}

type ArticleFilter struct {
	AuthorID string
	Statuses []ArticleStatus
}

func (af *ArticleFilter) Clean() {
	af.AuthorID = core.CleanString(af.AuthorID)
}
