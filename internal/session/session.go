// Package session хранит данные текущего пользователя между запусками:
// токен доступа к API и выбранный язык.
//
// Способ хранения определяется переданным Cache (Redis или память процесса).
// Токен с истёкшим сроком действия считается отсутствующим.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
)

const (
	tokenKey    = "session:token"
	languageKey = "session:language"
)

// Cache описывает key-value хранилище для данных сессии.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Session предоставляет доступ к токену и языку пользователя.
type Session struct {
	cache       Cache
	defaultLang string
	now         func() time.Time
}

// New создаёт Session поверх cache. defaultLang используется, пока язык не выбран.
func New(cache Cache, defaultLang string) *Session {
	if !messages.Supported(defaultLang) {
		defaultLang = messages.DefaultLanguage
	}
	return &Session{
		cache:       cache,
		defaultLang: defaultLang,
		now:         time.Now,
	}
}

// Token возвращает сохранённый токен. Пустая строка означает, что токена нет
// или его срок действия истёк.
func (s *Session) Token(ctx context.Context) (string, error) {
	const op = "session.Token"

	var token string
	found, err := s.cache.Get(ctx, tokenKey, &token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !found || token == "" {
		return "", nil
	}
	if s.expired(token) {
		return "", nil
	}
	return token, nil
}

// expired проверяет поле exp, если токен является JWT. Подпись не проверяется:
// это делает сервер, клиенту нужно только не отправлять заведомо просроченный токен.
// Непрозрачные токены считаются действительными.
func (s *Session) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}

// SetToken сохраняет токен после входа пользователя.
func (s *Session) SetToken(ctx context.Context, token string) error {
	const op = "session.SetToken"
	if err := s.cache.Set(ctx, tokenKey, token, 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearToken удаляет токен после выхода пользователя.
func (s *Session) ClearToken(ctx context.Context) error {
	const op = "session.ClearToken"
	if err := s.cache.Invalidate(ctx, tokenKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Language возвращает выбранный язык или язык по умолчанию.
// Ошибка хранилища не мешает работе: в этом случае тоже возвращается язык по умолчанию.
func (s *Session) Language(ctx context.Context) string {
	var lang string
	found, err := s.cache.Get(ctx, languageKey, &lang)
	if err != nil || !found || !messages.Supported(lang) {
		return s.defaultLang
	}
	return lang
}

// SetLanguage сохраняет выбранный язык.
func (s *Session) SetLanguage(ctx context.Context, lang string) error {
	const op = "session.SetLanguage"
	if !messages.Supported(lang) {
		return fmt.Errorf("%s: unsupported language %q", op, lang)
	}
	if err := s.cache.Set(ctx, languageKey, lang, 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
