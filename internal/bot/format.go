package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/finbot/internal/markup"
	"github.com/xaenox/finbot/internal/models"
)

// style renders the same message as MarkdownV2 or as plain text. rich is
// applied to model-produced text, which may carry the restricted markup.
type style struct {
	escape func(string) string
	bold   func(string) string
	rich   func(string) string
}

var telegramStyle = style{
	escape: markup.EscapeTelegram,
	bold:   func(s string) string { return "*" + markup.EscapeTelegram(s) + "*" },
	rich:   func(s string) string { return markup.RenderTelegram(markup.Parse(s)) },
}

var plainStyle = style{
	escape: func(s string) string { return s },
	bold:   func(s string) string { return s },
	rich:   func(s string) string { return markup.RenderPlain(markup.Parse(s)) },
}

func formatAnalysis(st style, r models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString(st.bold("📄 " + r.Filename))
	sb.WriteString("\n")
	if r.DocumentType != "" {
		sb.WriteString(st.escape("Type: " + strings.ReplaceAll(r.DocumentType, "_", " ")))
		sb.WriteString("\n")
	}
	sb.WriteString(st.escape(fmt.Sprintf("Risk score: %.1f/10 (%s)", r.RiskScore, riskLabel(r.RiskScore))))
	sb.WriteString("\n")
	if !r.ProcessedAt.IsZero() {
		sb.WriteString(st.escape("Processed: " + r.ProcessedAt.Format("2006-01-02 15:04")))
		sb.WriteString("\n")
	}
	if r.Summary.TotalTransactions > 0 {
		sb.WriteString(st.escape(fmt.Sprintf("Transactions: %d, total %.2f", r.Summary.TotalTransactions, r.Summary.TotalAmount)))
		sb.WriteString("\n")
	}

	writeList(&sb, st, "Key insights", r.Summary.KeyInsights)
	if len(r.Anomalies) > 0 {
		items := make([]string, 0, len(r.Anomalies))
		for _, a := range r.Anomalies {
			items = append(items, fmt.Sprintf("%s: %s (%s risk)", a.Type, a.Description, a.RiskLevel))
		}
		writeList(&sb, st, "Anomalies", items)
	}
	writeList(&sb, st, "Recommendations", r.Recommendations)
	return sb.String()
}

func writeList(sb *strings.Builder, st style, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(st.bold(title))
	sb.WriteString("\n")
	for _, item := range items {
		sb.WriteString("• ")
		sb.WriteString(st.rich(item))
		sb.WriteString("\n")
	}
}

func riskLabel(score float64) string {
	switch {
	case score >= 7:
		return "high"
	case score >= 4:
		return "medium"
	default:
		return "low"
	}
}

func formatDocuments(st style, results []models.AnalysisResult, primary *models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString(st.bold(fmt.Sprintf("Documents in this conversation (%d)", len(results))))
	sb.WriteString("\n")
	for i, r := range results {
		line := fmt.Sprintf("%d. %s, risk %.1f/10", i+1, r.Filename, r.RiskScore)
		if primary != nil && primary.DocumentID == r.DocumentID {
			line += " (primary)"
		}
		sb.WriteString(st.escape(line))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(st.escape("Use /analysis <n> to see one in detail."))
	return sb.String()
}

// historyLimit caps how many recent messages /history shows.
const historyLimit = 20

func formatHistory(st style, messages []models.Message) string {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		who := "Assistant"
		if m.Role == models.RoleUser {
			who = "You"
		}
		sb.WriteString(st.bold(who + ":"))
		sb.WriteString(" ")
		sb.WriteString(st.rich(m.Content))
	}
	return sb.String()
}

func formatThreads(threads []models.Thread, active string) string {
	var sb strings.Builder
	sb.WriteString("Your conversations:\n")
	for i, t := range threads {
		marker := ""
		if t.ID == active {
			marker = " ← current"
		}
		fmt.Fprintf(&sb, "%d. %s (%d messages)%s\n", i+1, threadTitle(t), t.MessageCount, marker)
	}
	sb.WriteString("\nTap a conversation to open it.")
	return sb.String()
}

func threadTitle(t models.Thread) string {
	if t.Title != "" {
		return t.Title
	}
	if !t.CreatedAt.IsZero() {
		return "Conversation of " + t.CreatedAt.Format("Jan 2 15:04")
	}
	return "Untitled conversation"
}

func formatFiles(files []models.FileRef) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📎 Selected files (%d):\n", len(files))
	for i, f := range files {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, f.Name, humanSize(f.Size))
	}
	sb.WriteString("\n/upload to analyse, /remove <n> to drop a file.")
	return sb.String()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
