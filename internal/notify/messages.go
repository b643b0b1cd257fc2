package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// Message kinds, stored with every SMS and used as log attributes.
const (
	KindConfirmation = "confirmation"
	KindReminder     = "reminder"
	KindMoved        = "moved"
	KindCancelled    = "cancelled"
)

// Texts renders the patient facing wording. All dates are shown in the
// clinic's local time.
type Texts struct {
	BaseURL  string
	Location *time.Location
}

func (t Texts) CancelURL(a appointment.Appointment) string {
	return strings.TrimRight(t.BaseURL, "/") + "/c/" + a.CancelToken
}

func (t Texts) when(a appointment.Appointment) (string, string) {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	local := a.Start.In(loc)
	return local.Format("02.01.2006"), local.Format("15:04")
}

// kindFor maps an event to the message it triggers, or "" when patients are
// not told about it.
func kindFor(evt appointment.Event) string {
	switch evt.Type {
	case appointment.TypeCreated:
		if evt.AwaitingPayment {
			return ""
		}
		return KindConfirmation
	case appointment.TypePaid:
		return KindConfirmation
	case appointment.TypeMoved:
		return KindMoved
	case appointment.TypeCancelled:
		if evt.Actor == appointment.ActorPatient {
			return ""
		}
		return KindCancelled
	case appointment.TypeReminder:
		return KindReminder
	}
	return ""
}

func (t Texts) SMS(kind string, a appointment.Appointment) string {
	date, hour := t.when(a)
	switch kind {
	case KindConfirmation:
		return fmt.Sprintf("Wizyta %s %s. Anuluj: %s", date, hour, t.CancelURL(a))
	case KindReminder:
		return fmt.Sprintf("Przypomnienie o wizycie:\n%s godz. %s\nDo zobaczenia.", date, hour)
	case KindMoved:
		return fmt.Sprintf("Termin wizyty zmieniony na %s %s. Anuluj: %s", date, hour, t.CancelURL(a))
	case KindCancelled:
		return fmt.Sprintf("Wizyta %s %s zostala odwolana.", date, hour)
	}
	return ""
}

type emailContent struct {
	Subject string
	Text    string
	HTML    string
}

func (t Texts) Email(kind string, a appointment.Appointment) emailContent {
	date, hour := t.when(a)
	greeting := "Dzień dobry"
	if a.Patient.FirstName != "" {
		greeting += " " + a.Patient.FirstName
	}

	var subject string
	var lines []string
	switch kind {
	case KindConfirmation:
		subject = fmt.Sprintf("Potwierdzenie wizyty %s %s", date, hour)
		lines = []string{
			fmt.Sprintf("Potwierdzamy wizytę w dniu %s o godzinie %s.", date, hour),
			"Jeśli nie możesz przyjść, odwołaj wizytę: " + t.CancelURL(a),
		}
	case KindReminder:
		subject = fmt.Sprintf("Przypomnienie o wizycie %s %s", date, hour)
		lines = []string{
			fmt.Sprintf("Przypominamy o wizycie w dniu %s o godzinie %s.", date, hour),
			"Do zobaczenia.",
		}
	case KindMoved:
		subject = fmt.Sprintf("Zmiana terminu wizyty na %s %s", date, hour)
		lines = []string{
			fmt.Sprintf("Nowy termin wizyty: %s, godzina %s.", date, hour),
			"Odwołanie wizyty: " + t.CancelURL(a),
		}
	case KindCancelled:
		subject = fmt.Sprintf("Wizyta %s %s odwołana", date, hour)
		lines = []string{
			fmt.Sprintf("Wizyta w dniu %s o godzinie %s została odwołana.", date, hour),
		}
	default:
		return emailContent{}
	}

	text := greeting + ",\n\n" + strings.Join(lines, "\n")
	var b strings.Builder
	b.WriteString("<p>" + html.EscapeString(greeting) + ",</p>")
	for _, l := range lines {
		b.WriteString("<p>" + html.EscapeString(l) + "</p>")
	}
	return emailContent{Subject: subject, Text: text, HTML: b.String()}
}
