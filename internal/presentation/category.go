package presentation

import (
	"context"
	"sync"

	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
)

// PlacesRepository — методы репозитория мест, которые использует слой представления.
type PlacesRepository interface {
	PlacesByCategory(ctx context.Context, category models.Category) <-chan resource.Resource[[]models.PlaceShort]
	Search(ctx context.Context, query string) <-chan resource.Resource[[]models.PlaceShort]
	SetFavorite(ctx context.Context, id int64, favorite bool) error
	Message(ctx context.Context, err error) string
}

// CategoryViewModel — состояние экрана списка мест одной категории.
type CategoryViewModel struct {
	repo     PlacesRepository
	category models.Category
	Places   *State[[]models.PlaceShort]

	mu      sync.Mutex
	sub     *subscription
	message string
}

// NewCategoryViewModel создаёт view-model категории. onChange может быть nil.
func NewCategoryViewModel(repo PlacesRepository, category models.Category, onChange func(resource.Resource[[]models.PlaceShort])) *CategoryViewModel {
	return &CategoryViewModel{
		repo:     repo,
		category: category,
		Places:   NewState(onChange),
	}
}

// Load подписывается на места категории, если подписки ещё нет.
func (vm *CategoryViewModel) Load(ctx context.Context) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.sub != nil {
		return
	}
	vm.sub = subscribe(ctx, vm.Places, func(ctx context.Context) <-chan resource.Resource[[]models.PlaceShort] {
		return vm.repo.PlacesByCategory(ctx, vm.category)
	})
}

// Refresh заново подписывается на категорию, что запускает новую сверку с сервером.
func (vm *CategoryViewModel) Refresh(ctx context.Context) {
	vm.mu.Lock()
	old := vm.sub
	vm.sub = nil
	vm.mu.Unlock()

	old.stop()
	vm.Load(ctx)
}

// ToggleFavorite меняет флаг избранного у места из текущего списка.
func (vm *CategoryViewModel) ToggleFavorite(ctx context.Context, id int64) error {
	favorite := true
	if current, ok := vm.Places.Get(); ok {
		for _, p := range current.Data {
			if p.ID == id {
				favorite = !p.IsFavorite
				break
			}
		}
	}
	err := vm.repo.SetFavorite(ctx, id, favorite)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.message = ""
	if err != nil {
		vm.message = vm.repo.Message(ctx, err)
	}
	return err
}

// Message возвращает текст последней ошибки действия пользователя.
func (vm *CategoryViewModel) Message() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.message
}

// Close отменяет подписку.
func (vm *CategoryViewModel) Close() {
	vm.mu.Lock()
	sub := vm.sub
	vm.sub = nil
	vm.mu.Unlock()
	sub.stop()
}

// SearchViewModel — поиск мест. Каждый новый запрос отменяет предыдущую подписку.
type SearchViewModel struct {
	repo    PlacesRepository
	Results *State[[]models.PlaceShort]

	mu    sync.Mutex
	sub   *subscription
	query string
	gen   uint64
}

// NewSearchViewModel создаёт view-model поиска. onChange может быть nil.
func NewSearchViewModel(repo PlacesRepository, onChange func(resource.Resource[[]models.PlaceShort])) *SearchViewModel {
	return &SearchViewModel{
		repo:    repo,
		Results: NewState(onChange),
	}
}

// SetQuery запускает поиск по новому запросу. Результаты старого запроса больше не приходят.
// Ожидание старой подписки идёт без блокировки, поэтому onChange может вызывать Query.
func (vm *SearchViewModel) SetQuery(ctx context.Context, query string) {
	vm.mu.Lock()
	old := vm.sub
	vm.sub = nil
	vm.query = query
	vm.gen++
	gen := vm.gen
	vm.mu.Unlock()

	old.stop()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	// пока ждали, пришёл более новый запрос или Close
	if gen != vm.gen {
		return
	}
	vm.sub = subscribe(ctx, vm.Results, func(ctx context.Context) <-chan resource.Resource[[]models.PlaceShort] {
		return vm.repo.Search(ctx, query)
	})
}

// Query возвращает текущий запрос.
func (vm *SearchViewModel) Query() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.query
}

// Close отменяет подписку.
func (vm *SearchViewModel) Close() {
	vm.mu.Lock()
	sub := vm.sub
	vm.sub = nil
	vm.gen++
	vm.mu.Unlock()
	sub.stop()
}
