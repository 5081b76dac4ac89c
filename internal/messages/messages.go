// Package messages holds the user-facing German strings shown by the front
// ends.
package messages

import (
	"context"
	"errors"

	"piatto/internal/api"
)

const (
	Network        = "Keine Verbindung zum Server. Bitte überprüfe deine Internetverbindung."
	Server         = "Der Server hat gerade Probleme. Bitte versuche es später erneut."
	NotFound       = "Die Sitzung wurde nicht gefunden."
	RateLimited    = "Zu viele Anfragen. Bitte warte einen Moment und versuche es dann erneut."
	BadRequest     = "Die Anfrage war ungültig. Bitte überprüfe deine Eingaben."
	Unauthorized   = "Du bist nicht angemeldet oder hast keinen Zugriff."
	Unknown        = "Etwas ist schiefgelaufen. Bitte versuche es erneut."
	Canceled       = "Der Vorgang wurde abgebrochen."
	RestoreFailed  = "Die vorherige Sitzung konnte nicht wiederhergestellt werden."
	PromptRequired = "Bitte beschreibe, worauf du Lust hast."
	PromptTooLong  = "Deine Beschreibung ist zu lang."
	Busy           = "Bitte warte, bis der aktuelle Vorgang abgeschlossen ist."
	ConfirmDiscard = "Möchtest du die aktuellen Rezeptvorschläge wirklich verwerfen?"

	NoCollection           = "Bitte wähle mindestens eine Sammlung aus"
	NoCollectionFor        = "Bitte wähle mindestens eine Sammlung für „%s“ aus"
	CollectionsLoadFailed  = "Sammlungen konnten nicht geladen werden."
	CollectionCreateFailed = "Sammlung konnte nicht erstellt werden."
	CollectionNameRequired = "Bitte gib einen Namen für die Sammlung ein."
	CollectionsSaved       = "Rezepte wurden in deinen Sammlungen gespeichert."

	UndoExpired       = "Rückgängig machen ist nicht mehr möglich."
	RecipeSaved       = "Rezept gespeichert."
	RecipeDiscarded   = "Rezept verworfen."
	NoCookingSession  = "Es läuft gerade keine Kochsitzung."
	QuestionRequired  = "Bitte stelle eine Frage."
	StepOutOfRange    = "Diesen Schritt gibt es nicht."
	NoPreparingActive = "Es gibt gerade keine Rezeptvorschläge."
)

type registration struct {
	err error
	msg string
}

// Sentinel errors of other packages register their message here, so For can
// map them without importing those packages. The first match wins.
var registered []registration

// Register associates a sentinel error with its message.
func Register(err error, msg string) {
	registered = append(registered, registration{err: err, msg: msg})
}

// For maps an error to the message shown to the user.
func For(err error) string {
	if err == nil {
		return ""
	}
	var userErr interface{ UserMessage() string }
	if errors.As(err, &userErr) {
		return userErr.UserMessage()
	}
	for _, r := range registered {
		if errors.Is(err, r.err) {
			return r.msg
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	switch api.KindOf(err) {
	case api.KindNetwork:
		return Network
	case api.KindServer:
		return Server
	case api.KindNotFound:
		return NotFound
	case api.KindRateLimited:
		return RateLimited
	case api.KindBadRequest:
		return BadRequest
	case api.KindUnauthorized:
		return Unauthorized
	}
	return Unknown
}
