package conversation

import "github.com/ashureev/opsbot/internal/domain"

const (
	confirmPrompt = "Сохранить? Да/Нет"
	affirmative   = "Да"
	faultReply    = "Не удалось обработать сообщение, попробуйте ещё раз"
	weakPassword  = "Пароль простой"
	strongPasswd  = "Пароль сложный"
)

// flowDef holds the texts and extraction kind of one flow. Kind is empty
// for flows that classify instead of extracting.
type flowDef struct {
	kind       domain.Kind
	prompt     string
	notFound   string
	saved      string
	saveFailed string
}

var flows = map[domain.Flow]flowDef{
	domain.FlowFindPhone: {
		kind:       domain.KindPhone,
		prompt:     "Введите текст для поиска телефонных номеров: ",
		notFound:   "Телефонные номера не найдены",
		saved:      "Телефонные номера добавлены в базу данных",
		saveFailed: "Ошибка при добавлении телефонных номеров",
	},
	domain.FlowFindEmail: {
		kind:       domain.KindEmail,
		prompt:     "Введите текст для поиска email-адресов: ",
		notFound:   "Email-адреса не найдены",
		saved:      "Email адреса добавлены в базу данных",
		saveFailed: "Ошибка при добавлении email адресов",
	},
	domain.FlowVerifyPassword: {
		prompt: "Введите пароль: ",
	},
}

// IsEntry reports whether name is the entry command of a flow.
func IsEntry(name string) bool {
	_, ok := flows[domain.Flow(name)]
	return ok
}
