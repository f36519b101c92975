package submission

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

var (
	reviewCommentTag  = "reviewcomment"
	reviewCommentText = "a comment explaining what needs work is required"

	improvementsVerdictTag  = "improvementsverdict"
	improvementsVerdictText = "improvements can only be attached to a needs_work verdict"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(reviewStructValidation, NewReview{})
	core.RegisterCustomTranslation(validate, translator, reviewCommentTag, reviewCommentText)
	core.RegisterCustomTranslation(validate, translator, improvementsVerdictTag, improvementsVerdictText)
}

// reviewStructValidation enforces the verdict dependent rules of NewReview.
func reviewStructValidation(sl validator.StructLevel) {
	nr, ok := sl.Current().Interface().(NewReview)
	if !ok {
		return
	}
	switch nr.Verdict {
	case VerdictNeedsWork:
		if core.StrLen(nr.Comment) < nr.commentMinLen || nr.Comment == "" {
			sl.ReportError(nr.Comment, "comment", "Comment", reviewCommentTag, "")
		}
	case VerdictApproved:
		if len(nr.Improvements) > 0 {
			sl.ReportError(nr.Improvements, "improvements", "Improvements", improvementsVerdictTag, "")
		}
	}
}
