package tourismapi

import (
	"errors"
	"strings"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
)

var (
	// ErrOffline — запрос не дошёл до сервера (нет сети, DNS, обрыв соединения).
	ErrOffline = errors.New("network is unreachable")
	// ErrServer — сервер ответил статусом 5xx.
	ErrServer = errors.New("server error")
	// ErrDecode — ответ не удалось разобрать или преобразовать в модели.
	ErrDecode = errors.New("failed to decode response")
	// ErrUnknown — сервер ответил неожиданным статусом.
	ErrUnknown = errors.New("unknown error")
)

// UserError — ошибка с сообщением от сервера, которое показывается пользователю как есть
// (HTTP 422 с телом {"message": "..."}).
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	if e.Message == "" {
		return "unprocessable entity"
	}
	return e.Message
}

// UserMessage возвращает текст ошибки для пользователя на языке lang.
// Сообщение сервера показывается без изменений, для остальных ошибок и пустого
// сообщения сервера — общий текст.
func UserMessage(err error, lang string) string {
	var userErr *UserError
	switch {
	case errors.As(err, &userErr) && strings.TrimSpace(userErr.Message) != "":
		return userErr.Message
	case errors.Is(err, ErrOffline):
		return messages.Get(lang, messages.NoNetwork)
	case errors.Is(err, ErrServer):
		return messages.Get(lang, messages.ServerError)
	default:
		return messages.Get(lang, messages.SomethingWrong)
	}
}

func outcome(err error) string {
	var userErr *UserError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &userErr):
		return "user_error"
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.Is(err, ErrServer):
		return "server_error"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "unknown"
	}
}

// IsRemote сообщает, получена ли ошибка при обращении к API.
func IsRemote(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr) ||
		errors.Is(err, ErrOffline) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrUnknown)
}
