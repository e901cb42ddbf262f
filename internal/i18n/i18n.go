package i18n

import "strings"

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ru") {
		return RU
	}
	return EN
}

func Parse(s string) Lang {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "ru":
		return RU
	case "en":
		return EN
	default:
		return EN
	}
}

// Supported reports whether s names a language the bot speaks.
func Supported(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == string(RU) || s == string(EN)
}

// Pick returns ru for RU and en otherwise.
func Pick(lang Lang, ru, en string) string {
	if lang == RU {
		return ru
	}
	return en
}
