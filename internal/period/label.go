package period

import (
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLocale is used when a locale is empty or unknown.
const DefaultLocale = "pt-BR"

var (
	supportedLocales = []language.Tag{
		language.BrazilianPortuguese, // first entry is the matcher fallback
		language.English,
		language.Italian,
		language.Spanish,
	}
	localeMatcher = language.NewMatcher(supportedLocales)

	monthNames = [][12]string{
		{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"},
		{"january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december"},
		{"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno", "luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre"},
		{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
	}
)

// Label formats t as "<Month> <year>" in the closest supported locale.
func Label(t time.Time, locale string) string {
	idx := localeIndex(locale)
	name := cases.Title(supportedLocales[idx]).String(monthNames[idx][t.Month()-1])
	return name + " " + strconv.Itoa(t.Year())
}

func localeIndex(locale string) int {
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return 0
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return 0
	}
	return idx
}
