package i18n

var questionPrefixes = map[Locale][]string{
	English: {
		"what", "how", "why", "when", "where", "who", "whom", "whose", "which",
		"can", "could", "is", "are", "am", "do", "does", "did", "will", "would",
		"should", "shall", "may", "might", "have", "has",
	},
	Russian: {
		"что", "как", "почему", "зачем", "когда", "где", "куда", "откуда", "кто", "чей",
		"какой", "какая", "какое", "какие", "каков", "сколько", "можно", "могу", "можете",
		"ли", "есть ли", "будет ли",
	},
}

// QuestionPrefixes returns the words that open a question in loc, lowercased.
func QuestionPrefixes(loc Locale) []string {
	if p, ok := questionPrefixes[loc]; ok {
		return p
	}
	return questionPrefixes[English]
}

var defaultQuestions = map[Locale]map[string][]string{
	English: {
		"technical": {
			"Tell me about a technically challenging project you worked on recently. What was your role?",
			"How do you approach debugging a problem you have never seen before?",
			"Describe how you would design a system that needs to handle a sudden tenfold increase in load.",
			"Which tools and practices do you use to keep code quality high in a team?",
			"Tell me about a time you had to learn a new technology quickly.",
		},
		"behavioral": {
			"Tell me about yourself and your professional background.",
			"Describe a situation where you disagreed with a colleague. How did you resolve it?",
			"Tell me about a time you missed a deadline. What did you learn?",
			"How do you prioritize when several tasks are urgent at once?",
			"What motivates you in your work?",
		},
	},
	Russian: {
		"technical": {
			"Расскажите о технически сложном проекте, над которым вы недавно работали. Какова была ваша роль?",
			"Как вы подходите к отладке проблемы, с которой никогда раньше не сталкивались?",
			"Опишите, как бы вы спроектировали систему, которая должна выдержать внезапный десятикратный рост нагрузки.",
			"Какие инструменты и практики вы используете для поддержания качества кода в команде?",
			"Расскажите о случае, когда вам пришлось быстро освоить новую технологию.",
		},
		"behavioral": {
			"Расскажите о себе и своём профессиональном опыте.",
			"Опишите ситуацию, когда вы не согласились с коллегой. Как вы разрешили разногласие?",
			"Расскажите о случае, когда вы не уложились в срок. Какие выводы вы сделали?",
			"Как вы расставляете приоритеты, когда несколько задач срочные одновременно?",
			"Что мотивирует вас в работе?",
		},
	},
}

// DefaultQuestions returns the fallback question set for a session type
// ("technical", "behavioral" or "mixed"), limited to max entries when max > 0.
func DefaultQuestions(loc Locale, sessionType string, max int) []string {
	set, ok := defaultQuestions[loc]
	if !ok {
		set = defaultQuestions[English]
	}
	var qs []string
	switch sessionType {
	case "technical", "behavioral":
		qs = append(qs, set[sessionType]...)
	default:
		tech, beh := set["technical"], set["behavioral"]
		for i := 0; i < len(tech) || i < len(beh); i++ {
			if i < len(beh) {
				qs = append(qs, beh[i])
			}
			if i < len(tech) {
				qs = append(qs, tech[i])
			}
		}
	}
	if max > 0 && len(qs) > max {
		qs = qs[:max]
	}
	return qs
}
