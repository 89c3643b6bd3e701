package admission

import (
	"strings"
	"unicode"
)

// Signals are cheap lexical hints about a comment. Only Noise gates
// admission; the rest shape the generated reply.
type Signals struct {
	Noise    bool
	Question bool
	Negative bool
	InThread bool
}

var fillerWords = map[string]bool{
	"ok": true, "okay": true, "k": true, "lol": true, "lmao": true, "wow": true,
	"nice": true, "cool": true, "great": true, "thanks": true, "thx": true, "ty": true,
	"yes": true, "yep": true, "no": true, "nope": true, "first": true, "hi": true,
	"hello": true, "hey": true, "haha": true, "hahaha": true, "same": true, "this": true,
	"ок": true, "окей": true, "ого": true, "вау": true, "класс": true, "круто": true,
	"супер": true, "спасибо": true, "спс": true, "да": true, "нет": true, "ага": true,
	"ха": true, "хаха": true, "ахах": true, "привет": true, "норм": true, "топ": true,
}

var questionOpeners = []string{
	"how", "why", "what", "where", "when", "who", "which", "can", "could", "does", "do", "is", "are",
	"как", "почему", "зачем", "что", "где", "когда", "кто", "сколько", "можно", "есть ли", "а если",
}

var negativeMarkers = []string{
	"scam", "fake", "hate", "terrible", "awful", "worst", "useless", "doesn't work", "does not work",
	"not working", "disappointed", "refund",
	"спам", "обман", "развод", "ужас", "отстой", "не работает", "разочарован", "верните деньги",
}

// Classify inspects a comment and, for replies, the comment it answers.
func Classify(text, parentText string) Signals {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return Signals{
		Noise:    isNoise(normalized),
		Question: isQuestion(normalized),
		Negative: containsAny(normalized, negativeMarkers),
		InThread: strings.TrimSpace(parentText) != "",
	}
}

func isNoise(s string) bool {
	if s == "" {
		return true
	}
	if !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return true
	}

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return len(words) == 1 && fillerWords[words[0]]
}

func isQuestion(s string) bool {
	if strings.Contains(s, "?") {
		return true
	}
	for _, opener := range questionOpeners {
		if strings.HasPrefix(s, opener+" ") {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
