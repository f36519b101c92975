package content

import (
	"context"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

var errReactionRace = core.NewConflictError(ErrStaleRow)

func (svc *Service) getVisibleArticle(ctx context.Context, articleID string, exec ...core.DBExecutor) (Article, error) {
	a, err := svc.repo.GetArticle(ctx, articleID, exec...)
	if err != nil {
		return Article{}, err
	}
	if a.Status != ArticlePublished {
		return Article{}, core.NewInvalidStateError("article", string(a.Status), "interact with")
	}
	return a, nil
}

// SetReaction records the user's reaction to an article.
// Repeating the same kind is a no-op; switching kinds moves one unit between the counters.
func (svc *Service) SetReaction(ctx context.Context, userID, articleID string, kind ReactionKind) (Article, error) {
	if err := svc.validate.Struct(NewReaction{Kind: kind}); err != nil {
		return Article{}, err
	}

	var a Article
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if a, err = svc.getVisibleArticle(ctx, articleID, tx); err != nil {
			return err
		}
		if err = svc.setReaction(ctx, tx, userID, a.ID, kind); err != nil {
			return err
		}
		a, err = svc.repo.GetArticle(ctx, a.ID, tx)
		return err
	})
	return a, err
}

// setReaction retries when a concurrent call changed the row between the read and the conditional write.
func (svc *Service) setReaction(ctx context.Context, tx core.DBExecutor, userID, articleID string, kind ReactionKind) error {
	for attempt := 0; attempt < maxRaceRetries; attempt++ {
		existing, err := svc.repo.GetReaction(ctx, userID, articleID, tx)
		switch {
		case err == ErrReactionNotFound:
			now := core.NowFunc()
			inserted, err := svc.repo.InsertReaction(ctx, Reaction{UserID: userID, ArticleID: articleID, Kind: kind, CreatedAt: now, UpdatedAt: now}, tx)
			if err != nil {
				return err
			}
			if inserted {
				return svc.repo.IncrementArticleCounter(ctx, articleID, kind.Counter(), 1, tx)
			}
		case err != nil:
			return err
		case existing.Kind == kind:
			return nil
		default:
			swapped, err := svc.repo.SwapReactionKind(ctx, userID, articleID, existing.Kind, kind, tx)
			if err != nil {
				return err
			}
			if swapped {
				if err = svc.repo.IncrementArticleCounter(ctx, articleID, existing.Kind.Counter(), -1, tx); err != nil {
					return err
				}
				return svc.repo.IncrementArticleCounter(ctx, articleID, kind.Counter(), 1, tx)
			}
		}
	}
	return errReactionRace
}

// RemoveReaction deletes the user's reaction. Without a reaction it is a no-op.
func (svc *Service) RemoveReaction(ctx context.Context, userID, articleID string) (Article, error) {
	var a Article
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if a, err = svc.repo.GetArticle(ctx, articleID, tx); err != nil {
			return err
		}
		if err = svc.removeReaction(ctx, tx, userID, a.ID); err != nil {
			return err
		}
		a, err = svc.repo.GetArticle(ctx, a.ID, tx)
		return err
	})
	return a, err
}

func (svc *Service) removeReaction(ctx context.Context, tx core.DBExecutor, userID, articleID string) error {
	for attempt := 0; attempt < maxRaceRetries; attempt++ {
		existing, err := svc.repo.GetReaction(ctx, userID, articleID, tx)
		if err == ErrReactionNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		deleted, err := svc.repo.DeleteReaction(ctx, userID, articleID, existing.Kind, tx)
		if err != nil {
			return err
		}
		if deleted {
			return svc.repo.IncrementArticleCounter(ctx, articleID, existing.Kind.Counter(), -1, tx)
		}
	}
	return errReactionRace
}

// GetReaction returns the user's reaction to an article or ErrReactionNotFound.
func (svc *Service) GetReaction(ctx context.Context, userID, articleID string) (Reaction, error) {
	return svc.repo.GetReaction(ctx, userID, articleID)
}

// ToggleBookmark removes the user's bookmark when it exists and creates it otherwise.
func (svc *Service) ToggleBookmark(ctx context.Context, userID, articleID string) (BookmarkResult, error) {
	if _, err := svc.repo.GetArticle(ctx, articleID); err != nil {
		return "", err
	}

	var res BookmarkResult
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		deleted, err := svc.repo.DeleteBookmark(ctx, userID, articleID, tx)
		if err != nil {
			return err
		}
		if deleted {
			res = BookmarkRemoved
			return nil
		}
		// a concurrent toggle may have inserted first; the row exists either way
		if _, err = svc.repo.InsertBookmark(ctx, Bookmark{UserID: userID, ArticleID: articleID, CreatedAt: core.NowFunc()}, tx); err != nil {
			return err
		}
		res = BookmarkAdded
		return nil
	})
	if err != nil {
		return "", err
	}
	return res, nil
}

func (svc *Service) Bookmarks(ctx context.Context, userID string) ([]Bookmark, error) {
	return svc.repo.ListBookmarks(ctx, userID)
}

// UpdateProgress stores how far the user read an article. Progress may go down.
func (svc *Service) UpdateProgress(ctx context.Context, userID, articleID string, progress int) (ReadingProgress, error) {
	if err := svc.validate.Struct(ProgressUpdate{Progress: progress}); err != nil {
		return ReadingProgress{}, err
	}
	if _, err := svc.repo.GetArticle(ctx, articleID); err != nil {
		return ReadingProgress{}, err
	}
	return svc.repo.UpsertProgress(ctx, ReadingProgress{
		UserID:    userID,
		ArticleID: articleID,
		Progress:  progress,
		UpdatedAt: core.NowFunc(),
	})
}

func (svc *Service) GetProgress(ctx context.Context, userID, articleID string) (ReadingProgress, error) {
	return svc.repo.GetProgress(ctx, userID, articleID)
}

// RecordView counts the first view of a published article by a user.
func (svc *Service) RecordView(ctx context.Context, userID, articleID string) (Article, error) {
	var a Article
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if a, err = svc.getVisibleArticle(ctx, articleID, tx); err != nil {
			return err
		}
		inserted, err := svc.repo.InsertView(ctx, userID, a.ID, tx)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if err = svc.repo.IncrementArticleCounter(ctx, a.ID, CounterViews, 1, tx); err != nil {
			return err
		}
		a.ViewsCount++
		return nil
	})
	return a, err
}
