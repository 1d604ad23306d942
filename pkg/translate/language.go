package translate

import "strings"

type languageHint struct {
	needle string
	name   string
}

// Order matters: "go" is tested before "java" and the bare "c" comes last.
var languageHints = []languageHint{
	{"html", "HTML"},
	{"python", "Python"},
	{"javascript", "JavaScript"},
	{"go", "Go"},
	{"rust", "Rust"},
	{"java", "Java"},
	{"c++", "C++"},
	{"c#", "C#"},
	{"php", "PHP"},
	{"ruby", "Ruby"},
	{"swift", "Swift"},
	{"kotlin", "Kotlin"},
	{"typescript", "TypeScript"},
	{"c", "C"},
}

const defaultLanguage = "HTML"

// DetectLanguage guesses a language label from the last message.
func DetectLanguage(messages []ChatTurn) string {
	if len(messages) == 0 {
		return ""
	}
	text := strings.ToLower(messages[len(messages)-1].Content.Text())
	for _, h := range languageHints {
		if strings.Contains(text, h.needle) {
			return h.name
		}
	}
	return defaultLanguage
}
