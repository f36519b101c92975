package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/notification"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/submission"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	logsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/logger"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
	sqlxrepos "github.com/ps965xx7vn-lgtm/backend-sub002/storage/database/sqlx"
)

// tables in deletion order
var tables = []string{
	"notifications",
	"article_views", "reading_progress", "bookmarks", "reactions", "comment_reports", "comments", "articles",
	"improvements", "reviews", "submissions",
	"course_reviewers", "lessons", "courses", "user_roles", "users",
}

// OpenDB returns a migrated, empty database.
// TEST_POSTGRES_DSN selects a shared postgres database; otherwise every call gets its own sqlite3 file.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	var db *sqlx.DB
	var err error
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err = database.OpenDSN(database.EnginePostgres, dsn)
	} else {
		dsn = "file:" + filepath.Join(t.TempDir(), "test.db") +
			"?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
		db, err = database.OpenDSN(database.EngineSQLite, dsn)
	}
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

// ResetDB deletes every row of the application tables.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("ResetDB() failed: %v", err)
		}
	}
}

// MockNow freezes core.NowFunc at now until the test ends. Use Advance to move it.
func MockNow(t *testing.T, now time.Time) *Clock {
	t.Helper()
	c := &Clock{now: now.UTC()}
	orig := core.NowFunc
	core.NowFunc = c.Now
	t.Cleanup(func() { core.NowFunc = orig })
	return c
}

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Notifier records the notifications it receives. Fail makes the next calls return err.
type Notifier struct {
	mu    sync.Mutex
	notes []core.Notification
	err   error
	calls int
}

var _ core.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(_ context.Context, note core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

func (n *Notifier) Fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *Notifier) Notes() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.notes...)
}

// Calls counts every delivery attempt, failed ones included.
func (n *Notifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	n.notes = nil
	n.calls = 0
	n.err = nil
	n.mu.Unlock()
}

// Events returns the event types received by recipientID, in order.
func (n *Notifier) Events(recipientID string) []string {
	var events []string
	for _, note := range n.Notes() {
		if note.RecipientID == recipientID {
			events = append(events, note.EventType)
		}
	}
	return events
}

// Env wires the repositories and services on a fresh database.
type Env struct {
	DB        *sqlx.DB
	Conf      *core.Config
	Validator *core.Validator
	Notifier  *Notifier

	UserRepo         user.Repository
	CourseRepo       course.Repository
	SubmissionRepo   submission.Repository
	ContentRepo      content.Repository
	NotificationRepo notification.Repository

	Users       *user.Service
	Courses     *course.Service
	Outbox      *notification.Outbox
	Submissions *submission.Service
	Content     *content.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := OpenDB(t)
	conf := core.NewTestConfig()
	v := core.NewValidator()

	env := &Env{
		DB:               db,
		Conf:             conf,
		Validator:        v,
		Notifier:         new(Notifier),
		UserRepo:         sqlxrepos.NewUserRepository(db),
		CourseRepo:       sqlxrepos.NewCourseRepository(db),
		SubmissionRepo:   sqlxrepos.NewSubmissionRepository(db),
		ContentRepo:      sqlxrepos.NewContentRepository(db),
		NotificationRepo: sqlxrepos.NewNotificationRepository(db),
	}
	env.Users = user.NewService(db, env.UserRepo, v)
	env.Courses = course.NewService(env.CourseRepo, v)
	env.Outbox = notification.NewOutbox(env.NotificationRepo, env.Notifier, logsvc.Nop, conf.Outbox)
	env.Submissions = submission.NewService(submission.Deps{
		DB:        db,
		Repo:      env.SubmissionRepo,
		Lessons:   env.CourseRepo,
		Authz:     env.Users,
		Reviewers: env.Users,
		Outbox:    env.Outbox,
		Logger:    logsvc.Nop,
		Validator: v,
		Conf:      conf.Workflow,
	})
	env.Content = content.NewService(content.Deps{
		DB:        db,
		Repo:      env.ContentRepo,
		Authz:     env.Users,
		Outbox:    env.Outbox,
		Logger:    logsvc.Nop,
		Validator: v,
		Conf:      conf.Workflow,
	})
	return env
}

func (env *Env) CreateUser(t *testing.T, name, email string, roles ...string) user.User {
	t.Helper()
	usr, err := env.Users.Create(context.Background(), user.NewUser{Name: name, Email: email, Roles: roles})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *Env) CreateCourse(t *testing.T, title string) course.Course {
	t.Helper()
	c, err := env.Courses.CreateCourse(context.Background(), course.NewCourse{Title: title})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func (env *Env) CreateLesson(t *testing.T, courseID, title string) course.Lesson {
	t.Helper()
	l, err := env.Courses.CreateLesson(context.Background(), course.NewLesson{CourseID: courseID, Title: title})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

func (env *Env) AssignReviewer(t *testing.T, courseID, userID string) {
	t.Helper()
	if err := env.Users.AssignReviewer(context.Background(), courseID, userID); err != nil {
		t.Fatalf("AssignReviewer() failed: %v", err)
	}
}

// CreateArticle inserts an article directly in the given status.
func (env *Env) CreateArticle(t *testing.T, authorID string, status content.ArticleStatus, allowComments bool) content.Article {
	t.Helper()
	now := core.NowFunc()
	a := content.Article{
		AuthorID:      authorID,
		Title:         "Article",
		Body:          "Body of the article",
		Status:        status,
		AllowComments: allowComments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status != content.ArticleDraft {
		a.PublishedAt = null.TimeFrom(now)
	}
	a, err := env.ContentRepo.CreateArticle(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateArticle() failed: %v", err)
	}
	return a
}

// Messages returns every outbox row.
func (env *Env) Messages(t *testing.T) []notification.Message {
	t.Helper()
	var msgs []notification.Message
	err := env.DB.Select(&msgs, "SELECT id, recipient_id, event_type, payload, status, attempts, last_error, "+
		"next_attempt_at, sent_at, created_at FROM notifications ORDER BY created_at, id")
	if err != nil {
		t.Fatalf("Messages() failed: %v", err)
	}
	return msgs
}
