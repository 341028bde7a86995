package analytics

import (
	"fmt"
	"sort"
	"strings"
)

// ChatStats содержит статистику по накопленным сообщениям чата
type ChatStats struct {
	Messages int      `json:"messages"`
	Words    int      `json:"words"`
	Keywords []string `json:"keywords"`
}

// TopKeywords returns up to n most frequent whitespace-separated tokens of texts,
// lower-cased. Equal counts keep the order in which tokens were first seen.
func TopKeywords(texts []string, n int) []string {
	if n <= 0 {
		return nil
	}
	counts := make(map[string]int)
	var order []string
	for _, tok := range strings.Fields(strings.Join(texts, " ")) {
		tok = strings.ToLower(tok)
		if _, ok := counts[tok]; !ok {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// Summarize считает сообщения, слова и ключевые слова
func Summarize(texts []string, n int) ChatStats {
	words := 0
	for _, t := range texts {
		words += len(strings.Fields(t))
	}
	return ChatStats{
		Messages: len(texts),
		Words:    words,
		Keywords: TopKeywords(texts, n),
	}
}

// Report формирует текст для команды статистики
func (cs ChatStats) Report() string {
	var sb strings.Builder
	sb.WriteString("📊 Статистика чату:\n")
	sb.WriteString(fmt.Sprintf("- Повідомлень: %d\n", cs.Messages))
	sb.WriteString(fmt.Sprintf("- Слів: %d\n", cs.Words))
	if len(cs.Keywords) > 0 {
		sb.WriteString("- Ключові слова: " + strings.Join(cs.Keywords, ", "))
	} else {
		sb.WriteString("- Ключові слова: немає")
	}
	return sb.String()
}
