package curriculum

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/jazzedge/academy/core"
)

var (
	youtubeURLTag   = "youtube_url"
	youtubeURLText  = "please enter a valid YouTube URL"
	youtubeURLRegex = regexp.MustCompile(`^(https?://)?(www\.|m\.)?(youtube\.com/(watch\?(.*&)?v=|shorts/|embed/|live/)|youtu\.be/)[\w-]{6,}`)

	gradeTag  = "grade"
	gradeText = "grade must be one of: pass, redo"
)

// InitValidators registers the curriculum validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(youtubeURLTag, youtubeURLValidation)
	core.RegisterCustomTranslation(validate, translator, youtubeURLTag, youtubeURLText)

	_ = validate.RegisterValidation(gradeTag, gradeValidation)
	core.RegisterCustomTranslation(validate, translator, gradeTag, gradeText)
}

func youtubeURLValidation(fl validator.FieldLevel) bool {
	return youtubeURLRegex.MatchString(fl.Field().String())
}

func gradeValidation(fl validator.FieldLevel) bool {
	g := fl.Field().String()
	return g == GradePass || g == GradeRedo
}
