package backend

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns the English name of a language code ("fr" -> "French").
// Codes that do not parse are returned unchanged so the model sees what the
// caller sent.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}

	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// TranslationInstruction is the system instruction given to instruction-tuned
// models acting as translators.
func TranslationInstruction(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a translation engine. Translate the user's text from %s to %s. "+
			"Reply with the translation only, without quotes, notes or explanations.",
		LanguageName(sourceLang), LanguageName(targetLang),
	)
}
