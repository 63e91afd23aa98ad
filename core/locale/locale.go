// Package locale loads the bot's message catalogues and exposes the
// per-language tokens used to match user answers.
package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var catalogFS embed.FS

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "th"

// RoomCount is the number of bookable rooms offered as choices.
const RoomCount = 4

// Message identifiers shared by the dialog, FAQ and transport layers.
const (
	MsgWelcome       = "welcome"
	MsgHelp          = "help"
	MsgSummaryTitle  = "summary.title"
	MsgSummaryRoom   = "summary.room"
	MsgSummaryEmp    = "summary.employee"
	MsgSummaryDate   = "summary.date"
	MsgSummaryRange  = "summary.range"
	MsgBookingOK     = "booking.success"
	MsgBookingCancel = "booking.cancelled"
	MsgCancelButton  = "booking.cancel_button"
	MsgBookingStale  = "booking.stale"
	MsgFAQPrompt     = "faq.prompt"
	MsgFAQNoMatch    = "faq.no_match"
	MsgFAQBackHint   = "faq.back_hint"
	MsgFAQAskAgain   = "faq.ask_again_hint"
	MsgFAQOff        = "faq.unavailable"
	MsgCancelDone    = "cancel.done"
	MsgErrorGeneric  = "error.generic"
	MsgRateLimited   = "rate_limited"
	MsgAdminOnly     = "admin_only"
	MsgStats         = "stats"
	MsgUnknownInput  = "unknown_input"
)

// NewBundle builds an i18n bundle with every embedded catalogue loaded.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.Thai)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.Glob(catalogFS, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("locale: list catalogues: %w", err)
	}
	for _, path := range files {
		if _, err := bundle.LoadMessageFileFS(catalogFS, path); err != nil {
			return nil, fmt.Errorf("locale: load %s: %w", path, err)
		}
	}
	return bundle, nil
}

// Locale resolves messages and answer tokens for a single language.
type Locale struct {
	tag       language.Tag
	localizer *i18n.Localizer

	yes      string
	no       string
	today    string
	tomorrow string
	faq      string
	rooms    []string
}

// New returns the locale for lang using the provided bundle.
func New(bundle *i18n.Bundle, lang string) (*Locale, error) {
	if bundle == nil {
		return nil, fmt.Errorf("locale: nil bundle")
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = DefaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("locale: parse language %q: %w", lang, err)
	}
	if !supported(bundle, tag) {
		return nil, fmt.Errorf("locale: no catalogue for %q", lang)
	}

	l := &Locale{
		tag:       tag,
		localizer: i18n.NewLocalizer(bundle, tag.String()),
	}
	l.yes = l.Text("token.yes")
	l.no = l.Text("token.no")
	l.today = l.Text("token.today")
	l.tomorrow = l.Text("token.tomorrow")
	l.faq = l.Text("token.faq")
	for i := 1; i <= RoomCount; i++ {
		l.rooms = append(l.rooms, l.Text(fmt.Sprintf("room.%d", i)))
	}
	return l, nil
}

// Load is a convenience wrapper building a fresh bundle for lang.
func Load(lang string) (*Locale, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	return New(bundle, lang)
}

func supported(bundle *i18n.Bundle, tag language.Tag) bool {
	base, _ := tag.Base()
	for _, t := range bundle.LanguageTags() {
		b, _ := t.Base()
		if b == base {
			return true
		}
	}
	return false
}

// Tag returns the language tag of the locale.
func (l *Locale) Tag() language.Tag {
	return l.tag
}

// Text returns the localized message for id. Unknown ids render as the id itself.
func (l *Locale) Text(id string, data ...map[string]any) string {
	cfg := &i18n.LocalizeConfig{MessageID: id}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}
	s, err := l.localizer.Localize(cfg)
	if err != nil || s == "" {
		return id
	}
	return s
}

// Yes returns the affirmative answer token.
func (l *Locale) Yes() string { return l.yes }

// No returns the negative answer token.
func (l *Locale) No() string { return l.no }

// ParseYesNo matches input against the yes/no tokens. Only surrounding
// whitespace is ignored; the comparison is otherwise exact.
func (l *Locale) ParseYesNo(input string) (answer bool, ok bool) {
	switch strings.TrimSpace(input) {
	case l.yes:
		return true, true
	case l.no:
		return false, true
	}
	return false, false
}

// RoomLabels returns the room choice labels in room id order.
func (l *Locale) RoomLabels() []string {
	out := make([]string, len(l.rooms))
	copy(out, l.rooms)
	return out
}

// ParseRoom maps a room label to its id (1-based).
func (l *Locale) ParseRoom(input string) (int, bool) {
	s := strings.TrimSpace(input)
	for i, label := range l.rooms {
		if s == label {
			return i + 1, true
		}
	}
	return 0, false
}

// RoomLabel returns the label for a room id or an empty string.
func (l *Locale) RoomLabel(id int) string {
	if id < 1 || id > len(l.rooms) {
		return ""
	}
	return l.rooms[id-1]
}

// RelativeDay reports the day offset for the locale's today/tomorrow tokens.
func (l *Locale) RelativeDay(input string) (int, bool) {
	s := strings.TrimSpace(input)
	switch {
	case s == "":
		return 0, false
	case strings.EqualFold(s, l.today):
		return 0, true
	case strings.EqualFold(s, l.tomorrow):
		return 1, true
	}
	return 0, false
}

// IsFAQKeyword reports whether the input asks to switch to the FAQ service.
func (l *Locale) IsFAQKeyword(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), l.faq)
}
