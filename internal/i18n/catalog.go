// Package i18n holds the candidate-facing message catalog for the two supported locales.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Locale is a supported interview language.
type Locale string

const (
	English Locale = "en"
	Russian Locale = "ru"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// ParseLocale maps a preferred-language value ("ru", "ru-RU", "en_US", "Russian") to a
// supported locale. Anything unrecognized falls back to English.
func ParseLocale(s string) Locale {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))
	switch strings.ToLower(s) {
	case "":
		return English
	case "russian", "русский":
		return Russian
	case "english":
		return English
	}
	_, idx, conf := matcher.Match(language.Make(s))
	if conf == language.No {
		return English
	}
	if supported[idx] == language.Russian {
		return Russian
	}
	return English
}

// MessageID identifies a catalog entry.
type MessageID string

const (
	MsgGreeting           MessageID = "greeting"
	MsgCandidateQuestion  MessageID = "candidate_question_redirect"
	MsgElaborate          MessageID = "elaborate"
	MsgEvaluationFallback MessageID = "evaluation_fallback"
	MsgClosing            MessageID = "closing"
	MsgErrNoAudio         MessageID = "err_no_audio"
	MsgErrTranscription   MessageID = "err_transcription"
	MsgErrEmptyTranscript MessageID = "err_empty_transcript"
	MsgErrUnknownMessage  MessageID = "err_unknown_message"
	MsgErrBadAudio        MessageID = "err_bad_audio"
	MsgErrFinished        MessageID = "err_finished"
	MsgErrInternal        MessageID = "err_internal"
)

// Catalog resolves message text for a locale.
type Catalog interface {
	Text(loc Locale, id MessageID) string
}

// Static is a map-backed catalog. Missing entries fall back to English, then to the id.
type Static map[Locale]map[MessageID]string

func (s Static) Text(loc Locale, id MessageID) string {
	if m, ok := s[loc]; ok {
		if v, ok := m[id]; ok {
			return v
		}
	}
	if v, ok := s[English][id]; ok {
		return v
	}
	return string(id)
}

// Textf formats a catalog entry.
func Textf(c Catalog, loc Locale, id MessageID, args ...any) string {
	return fmt.Sprintf(c.Text(loc, id), args...)
}

// Default is the production catalog.
var Default = Static{
	English: {
		MsgGreeting:           "Hello, %s! Thank you for joining. Let's begin the interview.",
		MsgCandidateQuestion:  "That's a great question. Please ask HR about it after the interview; they will be happy to help. Let's continue with the interview.",
		MsgElaborate:          "Could you elaborate on that a bit more and give a concrete example from your experience?",
		MsgEvaluationFallback: "Sorry, I had trouble processing your answer. Could you please elaborate a little more?",
		MsgClosing:            "Thank you for your time! This concludes our interview. We will review your answers and get back to you soon.",
		MsgErrNoAudio:         "No audio was received. Please record your answer and try again.",
		MsgErrTranscription:   "Sorry, we could not transcribe your answer. Please try recording it again.",
		MsgErrEmptyTranscript: "We could not hear anything in your recording. Please try again.",
		MsgErrUnknownMessage:  "Unknown message type.",
		MsgErrBadAudio:        "The audio data could not be decoded.",
		MsgErrFinished:        "This interview has already finished.",
		MsgErrInternal:        "Something went wrong while processing your answer. Please try again.",
	},
	Russian: {
		MsgGreeting:           "Здравствуйте, %s! Спасибо, что присоединились. Давайте начнём собеседование.",
		MsgCandidateQuestion:  "Хороший вопрос. Пожалуйста, задайте его HR-специалисту после собеседования, вам обязательно помогут. Давайте продолжим собеседование.",
		MsgElaborate:          "Не могли бы вы рассказать об этом подробнее и привести конкретный пример из вашего опыта?",
		MsgEvaluationFallback: "Извините, мне не удалось обработать ваш ответ. Не могли бы вы рассказать немного подробнее?",
		MsgClosing:            "Спасибо за уделённое время! На этом наше собеседование завершено. Мы изучим ваши ответы и скоро свяжемся с вами.",
		MsgErrNoAudio:         "Аудио не получено. Пожалуйста, запишите ответ и попробуйте снова.",
		MsgErrTranscription:   "Извините, не удалось распознать ваш ответ. Пожалуйста, запишите его ещё раз.",
		MsgErrEmptyTranscript: "В записи ничего не слышно. Пожалуйста, попробуйте снова.",
		MsgErrUnknownMessage:  "Неизвестный тип сообщения.",
		MsgErrBadAudio:        "Не удалось декодировать аудиоданные.",
		MsgErrFinished:        "Это собеседование уже завершено.",
		MsgErrInternal:        "При обработке ответа произошла ошибка. Пожалуйста, попробуйте снова.",
	},
}

// LanguageName is the language's name as used inside AI prompts.
func LanguageName(loc Locale) string {
	if loc == Russian {
		return "Russian"
	}
	return "English"
}
