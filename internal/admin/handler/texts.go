package handler

const (
	textNoRegistrations     = "Нет регистраций."
	textNoRegistrationsYet  = "Пока нет регистраций."
	textRSVPStarted         = "RSVP запущен.\nОтправлено: %d\nНе доставлено: %d\nУже ответили: %d\nОшибки: %d\nДедлайн: %s"
	textStats               = "Статистика:\nВсего регистраций: %d\nПодтверждено: %d/%d\nВ листе ожидания: %d"
	textWaitlistEmpty       = "Лист ожидания пуст."
	textPromoted            = "Приглашение отправлено: %s."
	textPromotedUndelivered = "Сообщение участнику не доставлено."
	textExportCaption       = "Список регистраций"
)
