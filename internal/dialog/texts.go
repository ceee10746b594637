package dialog

import (
	"html"
	"strings"

	regdomain "rsvp-bot/internal/registration/domain"
)

// Button labels. The transport classifies these into Inputs; the engine never compares text.
const (
	ButtonYes  = "Да"
	ButtonNo   = "Нет"
	ButtonBack = "Назад"
	ButtonSkip = "Пропустить"
)

const (
	textConsent = "Для регистрации нам нужно обработать ваши персональные данные: ФИО, паспортные данные " +
		"или учебную группу, вуз и место работы. Данные используются только для пропуска на мероприятие.\n\n" +
		"Вы согласны на обработку персональных данных?"
	textConsentRequired = "Без согласия на обработку персональных данных регистрация невозможна. " +
		"Если передумаете, нажмите «Да»."
	textIntro            = "Давайте зарегистрируем вас на мероприятие. Это займёт пару минут."
	textAlreadyIntro     = "Вы уже зарегистрированы. Ваши данные:"
	textEditQuestion     = "Хотите изменить данные?"
	textEditCancelled    = "Хорошо, оставляем регистрацию без изменений."
	textAskFullName      = "Введите ваши фамилию, имя и отчество (если есть) через пробел."
	textInvalidFullName  = "Нужно указать как минимум фамилию и имя через пробел. Попробуйте ещё раз."
	textAskAffiliation   = "Вы студент или сотрудник %s?"
	textAskStudyGroup    = "Введите номер учебной группы, например Б22-101."
	textInvalidGroup     = "Не удалось распознать номер группы. Формат: буквы, год поступления, дефис и номер, например Б22-101."
	textAskPassport      = "Введите серию и номер паспорта, 10 цифр, например 12 34 567890."
	textInvalidPassport  = "Паспорт должен содержать ровно 10 цифр: 4 цифры серии и 6 цифр номера. Попробуйте ещё раз."
	textAskUniversity    = "Укажите ваш вуз или нажмите «Пропустить»."
	textAskWorkplace     = "Укажите место работы или нажмите «Пропустить»."
	textConfirmQuestion  = "Всё верно?"
	textFinished         = "Регистрация завершена! Когда откроется подтверждение участия, мы пришлём сообщение."
	textInvalidChoice    = "Пожалуйста, выберите вариант на клавиатуре."
	textNoDialog         = "Чтобы зарегистрироваться или изменить данные, отправьте /start."
	textReviewHeader     = "Проверьте данные:"
	reviewNotProvided    = "не указано"
	reviewLabelName      = "ФИО"
	reviewLabelPassport  = "Паспорт"
	reviewLabelInst      = "Организация"
	reviewLabelGroup     = "Учебная группа"
	reviewLabelUniv      = "Вуз"
	reviewLabelWorkplace = "Место работы"
)

// Review renders registration fields for confirmation. The same rendering is used before commit and
// when a returning participant is shown their stored registration.
func Review(f regdomain.Fields) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString("<b>")
		b.WriteString(label)
		b.WriteString(":</b> ")
		b.WriteString(html.EscapeString(value))
		b.WriteString("\n")
	}
	line(reviewLabelName, f.FullName)
	if f.Study != nil {
		line(reviewLabelInst, f.Study.Institution)
		line(reviewLabelGroup, f.Study.Group)
	}
	if f.Passport != nil {
		line(reviewLabelPassport, f.Passport.Series+" "+f.Passport.Number)
	}
	line(reviewLabelUniv, orNotProvided(f.University))
	line(reviewLabelWorkplace, orNotProvided(f.Workplace))
	return strings.TrimSuffix(b.String(), "\n")
}

func orNotProvided(p *string) string {
	if p == nil {
		return reviewNotProvided
	}
	return *p
}

func joinParagraphs(parts ...string) string { return strings.Join(parts, "\n\n") }
