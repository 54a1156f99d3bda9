package summarize

import (
	"fmt"
	"strings"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/pkg/utils"
)

// kindProfiles are the kind-specific instruction profiles for single-article
// summaries.
var kindProfiles = map[models.SummaryKind]string{
	models.SummaryBrief: "Create a brief summary of roughly 50 words capturing only " +
		"the single most important development and why it matters.",
	models.SummaryComprehensive: "Create a comprehensive summary of roughly 200 words covering " +
		"the main points, important context and background, and any notable quotes or data points.",
	models.SummaryAnalytical: "Create an analytical summary of roughly 300 words that explains " +
		"the significance and implications of the story, situates it in its wider context, " +
		"and notes open questions the coverage leaves unanswered.",
}

// maxPromptContent bounds per-article content included in prompts.
const maxPromptContent = 4000

func buildSummaryPrompt(article *models.Article, kind models.SummaryKind) string {
	var b strings.Builder
	b.WriteString("Analyze and summarize the following news article.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", article.Title)
	fmt.Fprintf(&b, "Source: %s\n", article.Source)
	fmt.Fprintf(&b, "Content: %s\n\n", utils.Truncate(article.Content, maxPromptContent))
	b.WriteString(kindProfiles[kind])
	b.WriteString("\nKeep the summary clear, objective, and informative.\n\nSummary:")
	return b.String()
}

func buildMultiPrompt(articles []*models.Article, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following news articles from multiple perspectives on the topic: %s\n\n", focus)
	b.WriteString("Articles:\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "Article %d:\nTitle: %s\nSource: %s\nURL: %s\nContent: %s\n\n",
			i+1, a.Title, a.Source, a.URL, utils.Truncate(a.Content, 1000))
	}
	b.WriteString(`Provide a comprehensive multi-perspective analysis that includes:

1. Source diversity: the editorial perspectives, geographic viewpoints, and potential biases represented.
2. Perspective breakdown: the major political, economic, social, and expert viewpoints on the topic.
3. Key points of convergence: facts and claims most sources agree on.
4. Key points of divergence: where sources disagree or emphasize different aspects.
5. Missing perspectives: important viewpoints and stakeholder groups absent from these articles.
6. Synthesis: a balanced understanding of the issue and recommended follow-up questions.

Format the response with clear headers and bullet points.

Multi-Perspective Analysis:`)
	return b.String()
}
