package presentation

import (
	"context"
	"sync"

	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/services/profile"
)

// ProfileRepository — методы репозитория профиля.
type ProfileRepository interface {
	PersonalData(ctx context.Context) <-chan resource.Resource[models.PersonalData]
	UpdateProfile(ctx context.Context, req profile.UpdateRequest) <-chan resource.Resource[models.PersonalData]
	SignOut(ctx context.Context) <-chan resource.Resource[string]
}

// CurrencyRepository — методы репозитория курсов валют.
type CurrencyRepository interface {
	Rates(ctx context.Context) <-chan resource.Resource[models.CurrencyRates]
}

// ProfileViewModel — состояние экрана профиля: персональные данные, курсы валют,
// результаты сохранения и выхода.
type ProfileViewModel struct {
	profile  ProfileRepository
	currency CurrencyRepository

	Personal *State[models.PersonalData]
	Rates    *State[models.CurrencyRates]
	Saving   *State[models.PersonalData]
	Leaving  *State[string]

	mu      sync.Mutex
	subs    []*subscription
	message string
}

// NewProfileViewModel создаёт view-model профиля.
func NewProfileViewModel(profileRepo ProfileRepository, currencyRepo CurrencyRepository) *ProfileViewModel {
	return &ProfileViewModel{
		profile:  profileRepo,
		currency: currencyRepo,
		Personal: NewState[models.PersonalData](nil),
		Rates:    NewState[models.CurrencyRates](nil),
		Saving:   NewState[models.PersonalData](nil),
		Leaving:  NewState[string](nil),
	}
}

// Load подписывается на профиль и курсы валют, если подписок ещё нет.
func (vm *ProfileViewModel) Load(ctx context.Context) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.subs) > 0 {
		return
	}
	vm.subs = append(vm.subs,
		subscribe(ctx, vm.Personal, vm.profile.PersonalData),
		subscribe(ctx, vm.Rates, vm.currency.Rates),
	)
}

// Save отправляет изменения профиля и ждёт результата.
func (vm *ProfileViewModel) Save(ctx context.Context, req profile.UpdateRequest) resource.Resource[models.PersonalData] {
	res := vm.Saving.Bind(ctx, vm.profile.UpdateProfile(ctx, req))
	vm.setMessage(res.Message)
	return res
}

// SignOut завершает сессию и ждёт результата.
func (vm *ProfileViewModel) SignOut(ctx context.Context) resource.Resource[string] {
	res := vm.Leaving.Bind(ctx, vm.profile.SignOut(ctx))
	msg := res.Message
	if res.IsSuccess() {
		msg = res.Data
	}
	vm.setMessage(msg)
	return res
}

func (vm *ProfileViewModel) setMessage(msg string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.message = msg
}

// Message возвращает последний текст для пользователя после сохранения или выхода.
func (vm *ProfileViewModel) Message() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.message
}

// Close отменяет подписки.
func (vm *ProfileViewModel) Close() {
	vm.mu.Lock()
	subs := vm.subs
	vm.subs = nil
	vm.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}
