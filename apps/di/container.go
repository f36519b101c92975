package di

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/notification"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/submission"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	appfs "github.com/ps965xx7vn-lgtm/backend-sub002/fs"
	"github.com/ps965xx7vn-lgtm/backend-sub002/services/authzcache"
	emailsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/email"
	logsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/logger"
	"github.com/ps965xx7vn-lgtm/backend-sub002/services/notifier"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
	sqlxrepos "github.com/ps965xx7vn-lgtm/backend-sub002/storage/database/sqlx"
)

type Options struct {
	// Name prefixes log lines ("admin", "worker").
	Name string
	// Migrate applies pending migrations after opening the database.
	Migrate bool
}

// Container holds the dependencies shared by the apps.
type Container struct {
	Conf      *core.Config
	Logger    core.Logger
	DB        *sqlx.DB
	Redis     *redis.Client // nil when redis is not configured or unreachable
	Validator *core.Validator

	Users       *user.Service
	AuthzCache  *authzcache.Authorizer // nil without redis
	Courses     *course.Service
	Outbox      *notification.Outbox
	Submissions *submission.Service
	Content     *content.Service

	closers []func()
}

// New wires every dependency from conf. Call Close when done.
func New(conf *core.Config, opts Options) (*Container, error) {
	c := &Container{Conf: conf}

	logger, err := newLogger(c, opts.Name)
	if err != nil {
		return nil, err
	}
	c.Logger = logger
	database.SetMigrationsLogger(logger)

	if c.DB, err = newDB(conf, opts.Migrate); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "setting up database")
	}
	c.closers = append(c.closers, func() {
		if err := c.DB.Close(); err != nil {
			c.Logger.Error("closing database", err)
		}
	})

	c.Redis = newRedis(c)
	c.Validator = core.NewValidator()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	userRepo := sqlxrepos.NewUserRepository(c.DB)
	courseRepo := sqlxrepos.NewCourseRepository(c.DB)
	c.Users = user.NewService(c.DB, userRepo, c.Validator)
	c.Courses = course.NewService(courseRepo, c.Validator)

	var authz user.Authorizer = c.Users
	if c.Redis != nil {
		c.AuthzCache = authzcache.New(c.Users, c.Redis, conf.Redis.AuthzCacheTTL, logger)
		authz = c.AuthzCache
	}

	c.Outbox = notification.NewOutbox(
		sqlxrepos.NewNotificationRepository(c.DB),
		newNotifier(c),
		logger,
		conf.Outbox,
	)
	c.Submissions = submission.NewService(submission.Deps{
		DB:        c.DB,
		Repo:      sqlxrepos.NewSubmissionRepository(c.DB),
		Lessons:   courseRepo,
		Authz:     authz,
		Reviewers: c.Users,
		Outbox:    c.Outbox,
		Logger:    logger,
		Validator: c.Validator,
		Conf:      conf.Workflow,
	})
	c.Content = content.NewService(content.Deps{
		DB:        c.DB,
		Repo:      sqlxrepos.NewContentRepository(c.DB),
		Authz:     authz,
		Outbox:    c.Outbox,
		Logger:    logger,
		Validator: c.Validator,
		Conf:      conf.Workflow,
	})
	return c, nil
}

// Close releases the resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func newLogger(c *Container, name string) (core.Logger, error) {
	zl, err := logsvc.NewZapLogger(c.Conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up logger")
	}
	logger := logsvc.NewRollbarLogger(zl.Named(name), c.Conf)
	logger.Enable(!c.Conf.Debug)
	c.closers = append(c.closers, zl.Sync, logger.Close)
	return logger, nil
}

func newDB(conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newRedis(c *Container) *redis.Client {
	if c.Conf.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Conf.Redis.Addr,
		Password: c.Conf.Redis.Password,
		DB:       c.Conf.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		c.Logger.Warn(fmt.Sprintf("redis unreachable at %s, running without it", c.Conf.Redis.Addr), err)
		_ = client.Close()
		return nil
	}
	c.closers = append(c.closers, func() { _ = client.Close() })
	return client
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newNotifier fans notifications out to the task queue (when redis is up) and email.
func newNotifier(c *Container) core.Notifier {
	sinks := notifier.Multi{notifier.NewEmail(c.Users, newEmailService(c.Conf, c.Logger))}
	if c.Redis != nil {
		sinks = append(sinks, notifier.NewRedisQueue(c.Redis, c.Conf.Redis.NotificationQueue))
	}
	if c.Conf.Debug {
		sinks = append(sinks, notifier.NewLog(c.Logger))
	}
	return sinks
}
