// Package profile реализует репозиторий профиля пользователя: чтение персональных
// данных, их изменение и выход из аккаунта.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/sl"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
	"github.com/magabrotheeeer/tourism-companion/internal/tourismapi"
)

// API — методы удалённого API для профиля.
type API interface {
	PersonalData(ctx context.Context) (*tourismapi.PersonalDataDTO, error)
	UpdatePersonalData(ctx context.Context, req tourismapi.UpdatePersonalDataRequest) (*tourismapi.PersonalDataDTO, error)
	SignOut(ctx context.Context) (*tourismapi.SimpleResponse, error)
}

// Session — данные сессии, которые нужны репозиторию.
type Session interface {
	Language(ctx context.Context) string
	ClearToken(ctx context.Context) error
}

// UpdateRequest — изменения профиля, введённые пользователем.
type UpdateRequest struct {
	FullName string `validate:"required"`
	Country  string `validate:"required"`
	Email    string `validate:"required,email"`
}

// Repository — репозиторий профиля.
type Repository struct {
	api      API
	store    storage.Store
	session  Session
	validate *validator.Validate
	log      *slog.Logger
}

// New создаёт репозиторий профиля.
func New(api API, store storage.Store, session Session, log *slog.Logger) *Repository {
	return &Repository{
		api:      api,
		store:    store,
		session:  session,
		validate: validator.New(),
		log:      log,
	}
}

// PersonalData отдаёт сохранённый профиль (если есть) и обновляет его с сервера.
// Ошибка сервера показывается, только если сохранённого профиля нет.
func (r *Repository) PersonalData(ctx context.Context) <-chan resource.Resource[models.PersonalData] {
	const op = "profile.PersonalData"
	log := r.log.With(slog.String("op", op))

	out := make(chan resource.Resource[models.PersonalData])
	go func() {
		defer close(out)
		lang := r.session.Language(ctx)

		query := func(ctx context.Context) (models.PersonalData, error) {
			data, err := r.store.PersonalData(ctx)
			if errors.Is(err, storage.ErrNotFound) {
				return models.PersonalData{}, live.ErrNoValue
			}
			return data, err
		}
		mapErr := func(err error) string {
			log.Error("failed to read personal data", sl.Err(err))
			return messages.Get(lang, messages.CacheError)
		}
		refresh := func(ctx context.Context, emit live.Emitter[models.PersonalData]) {
			_, cacheErr := r.store.PersonalData(ctx)
			err := r.Refresh(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}
			log.Warn("failed to refresh personal data", sl.Err(err))
			if errors.Is(cacheErr, storage.ErrNotFound) {
				emit(resource.NewError[models.PersonalData](tourismapi.UserMessage(err, lang)))
			}
		}

		live.Watch(ctx, r.store.Changes(), []live.Topic{live.Personal}, query, mapErr, out, refresh)
	}()
	return out
}

// Refresh загружает профиль с сервера и перезаписывает сохранённый.
func (r *Repository) Refresh(ctx context.Context) error {
	const op = "profile.Refresh"

	dto, err := r.api.PersonalData(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.store.SetPersonalData(ctx, dto.ToPersonalData()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateProfile проверяет поля, отправляет изменения на сервер и сохраняет ответ сервера.
// Email отправляется, только если он отличается от сохранённого. При ошибке
// сохранённый профиль не меняется. Поток конечен.
func (r *Repository) UpdateProfile(ctx context.Context, req UpdateRequest) <-chan resource.Resource[models.PersonalData] {
	out := make(chan resource.Resource[models.PersonalData])
	go func() {
		defer close(out)
		r.updateProfile(ctx, req, out)
	}()
	return out
}

func (r *Repository) updateProfile(ctx context.Context, req UpdateRequest, out chan<- resource.Resource[models.PersonalData]) {
	const op = "profile.UpdateProfile"
	log := r.log.With(slog.String("op", op))
	lang := r.session.Language(ctx)
	send := func(res resource.Resource[models.PersonalData]) bool {
		return resource.Send(ctx.Done(), out, res)
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Country = strings.TrimSpace(req.Country)
	req.Email = strings.TrimSpace(req.Email)
	if err := r.validate.Struct(req); err != nil {
		send(resource.NewError[models.PersonalData](validationMessage(lang, err)))
		return
	}

	if !send(resource.NewLoading[models.PersonalData]()) {
		return
	}

	body := tourismapi.UpdatePersonalDataRequest{
		FullName: req.FullName,
		Country:  req.Country,
	}
	cached, err := r.store.PersonalData(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("failed to read cached personal data", sl.Err(err))
	}
	if !strings.EqualFold(cached.Email, req.Email) {
		email := req.Email
		body.Email = &email
	}

	dto, err := r.api.UpdatePersonalData(ctx, body)
	if err != nil {
		log.Error("failed to update personal data", sl.Err(err))
		send(resource.NewError[models.PersonalData](tourismapi.UserMessage(err, lang)))
		return
	}

	data := dto.ToPersonalData()
	if err := r.store.SetPersonalData(ctx, data); err != nil {
		log.Error("failed to save personal data", sl.Err(err))
		send(resource.NewError[models.PersonalData](messages.Get(lang, messages.CacheError)))
		return
	}

	log.Info("personal data updated", slog.Int64("user_id", data.ID))
	send(resource.NewSuccess(data))
}

// SignOut завершает сессию на сервере и удаляет сохранённый токен.
// При ошибке сервера токен остаётся. Поток конечен.
func (r *Repository) SignOut(ctx context.Context) <-chan resource.Resource[string] {
	const op = "profile.SignOut"
	log := r.log.With(slog.String("op", op))

	out := make(chan resource.Resource[string])
	go func() {
		defer close(out)
		lang := r.session.Language(ctx)
		send := func(res resource.Resource[string]) bool {
			return resource.Send(ctx.Done(), out, res)
		}

		if !send(resource.NewLoading[string]()) {
			return
		}

		resp, err := r.api.SignOut(ctx)
		if err != nil {
			log.Error("failed to sign out", sl.Err(err))
			send(resource.NewError[string](tourismapi.UserMessage(err, lang)))
			return
		}
		if err := r.session.ClearToken(ctx); err != nil {
			log.Error("failed to clear token", sl.Err(err))
			send(resource.NewError[string](messages.Get(lang, messages.CacheError)))
			return
		}
		send(resource.NewSuccess(resp.Message))
	}()
	return out
}

func validationMessage(lang string, err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return messages.Get(lang, messages.SomethingWrong)
	}
	for _, e := range errs {
		if e.Tag() == "required" {
			return messages.Get(lang, messages.FillAllFields)
		}
	}
	return messages.Get(lang, messages.InvalidEmail)
}
