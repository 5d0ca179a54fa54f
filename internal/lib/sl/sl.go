// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — единообразные поля лога для ошибок, операций и категорий.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
// Для nil возвращает пустую строку, чтобы вызов был безопасен в любом месте.
//
// Пример:
//
//	log.Error("failed to refresh category", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает логгер с полем "op" — именем операции в формате "pkg.Func".
func Op(log *slog.Logger, op string) *slog.Logger {
	return log.With(slog.String("op", op))
}
