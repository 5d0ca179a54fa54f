// Package messages содержит тексты, которые показываются пользователю,
// когда сервер не прислал собственного сообщения.
package messages

// Key — идентификатор текста.
type Key string

const (
	NoNetwork      Key = "no_network"
	ServerError    Key = "server_error"
	SomethingWrong Key = "smth_went_wrong"
	CacheError     Key = "cache_error"
	PlaceNotFound  Key = "place_not_found"
	FillAllFields  Key = "please_fill_all_fields"
	InvalidEmail   Key = "invalid_email"
	GreatSuccess   Key = "great_success"
	AlreadySynced  Key = "already_synced"
)

// DefaultLanguage используется, если язык не выбран или не поддерживается.
const DefaultLanguage = "en"

var texts = map[string]map[Key]string{
	"en": {
		NoNetwork:      "No internet connection",
		ServerError:    "Server error, please try again later",
		SomethingWrong: "Something went wrong",
		CacheError:     "Failed to read saved data",
		PlaceNotFound:  "Place not found",
		FillAllFields:  "Please fill in all fields",
		InvalidEmail:   "Invalid email",
		GreatSuccess:   "Data downloaded successfully",
		AlreadySynced:  "Data is already downloaded",
	},
	"ru": {
		NoNetwork:      "Нет подключения к интернету",
		ServerError:    "Ошибка сервера, попробуйте позже",
		SomethingWrong: "Что-то пошло не так",
		CacheError:     "Не удалось прочитать сохранённые данные",
		PlaceNotFound:  "Место не найдено",
		FillAllFields:  "Пожалуйста, заполните все поля",
		InvalidEmail:   "Некорректный email",
		GreatSuccess:   "Данные успешно загружены",
		AlreadySynced:  "Данные уже загружены",
	},
}

// Supported сообщает, есть ли тексты для языка.
func Supported(lang string) bool {
	_, ok := texts[lang]
	return ok
}

// Get возвращает текст на нужном языке, при его отсутствии — на языке по умолчанию.
func Get(lang string, key Key) string {
	if t, ok := texts[lang][key]; ok {
		return t
	}
	if t, ok := texts[DefaultLanguage][key]; ok {
		return t
	}
	return string(key)
}
