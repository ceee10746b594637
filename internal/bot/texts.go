package bot

const (
	textInvitation         = "Открыто подтверждение участия в мероприятии. Вы придёте? Ответьте до %s."
	textPromoted           = "Освободилось место! Вы можете принять участие в мероприятии. Подтверждаете?"
	textConfirmed          = "Спасибо! Ваше участие подтверждено."
	textWaitlisted         = "Свободных мест пока нет. Вы в листе ожидания, ваш номер: %s. Мы напишем, если место освободится."
	textDeclined           = "Жаль, что не получится. Ваш ответ записан."
	textCancelled          = "Участие отменено. Спасибо, что предупредили."
	textNotRegistered      = "Вы ещё не зарегистрированы. Чтобы зарегистрироваться, отправьте /start."
	textRSVPNotOpen        = "Подтверждение участия ещё не открыто. Мы пришлём сообщение, когда оно начнётся."
	textAlreadyConfirmed   = "Ваше участие уже подтверждено. Чтобы отменить его, отправьте /cancel."
	textAlreadyDeclined    = "Вы отказались от участия."
	textRSVPClosed         = "Срок подтверждения участия истёк."
	textNothingToCancel    = "Отменять нечего: ваше участие не подтверждено."
	textStatusRegistered   = "Вы зарегистрированы. Подтверждение участия ещё не открыто."
	textStatusAwaiting     = "Ждём вашего ответа: вы придёте на мероприятие?"
	textStatusInvited      = "Для вас освободилось место. Подтверждаете участие?"
	textStatusWaitlisted   = "Вы в листе ожидания, ваш номер: %d."
	textInternalError      = "Что-то пошло не так. Попробуйте ещё раз чуть позже."
	commandStartDesc       = "Регистрация на мероприятие"
	commandStatusDesc      = "Статус участия"
	commandCancelDesc      = "Отменить участие"
)
