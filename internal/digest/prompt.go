package digest

import (
	"fmt"
	"strings"
)

const systemPrompt = "Ти помічник, який підсумовує групові чати. Відповідай українською, без Markdown-розмітки."

// BuildPrompt embeds every message and asks for a short summary plus a bulleted topic list.
func BuildPrompt(texts []string) string {
	var sb strings.Builder
	sb.WriteString("Проаналізуй ці повідомлення:\n")
	for i, t := range texts {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, t))
	}
	sb.WriteString("\nСпочатку напиши короткий підсумок обговорення (2-3 речення). ")
	sb.WriteString("Потім визнач основні теми і видай їх маркованим списком, кожна тема з нового рядка, починаючи з \"- \".")
	return sb.String()
}
