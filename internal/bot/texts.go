package bot

// User-facing replies.
const (
	GreetingText = "Привет! 👋\n" +
		"Чтобы получить доступ — зарегистрируйся на платформе\n" +
		"и отправь мне свой ID трейдера:"
	InvalidIDText   = "ID должен быть числом."
	WaitingText     = "Окей! 👍\nЖду подтверждения от платформы…"
	ClaimedText     = "Этот ID уже указан другим пользователем. Проверь номер и отправь его ещё раз."
	UnavailableText = "Сервис временно недоступен, попробуй позже."
	NotAllowedText  = "Команда недоступна."

	StatusUnregisteredText = "Ты ещё не начал регистрацию. Отправь /start."
	StatusWaitingIDText    = "Жду твой ID трейдера."
	StatusWaitingRegText   = "ID %s получен, жду подтверждения от платформы."
	StatusConfirmedText    = "Регистрация подтверждена ✅ (ID %s)."

	StatsText = "Пользователей: %d\nЖдут ID: %d\nЖдут подтверждения: %d\nПодтверждены: %d"
)
