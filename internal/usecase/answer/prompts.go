package answer

import (
	"fmt"
	"strings"

	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

const basePrompt = `You are a legal assistant specializing in contract analysis and legal document interpretation.
Answer ONLY from the provided context. Do not add outside legal knowledge.
Cite every factual claim with the bracketed number of its source, for example [1] or [2][3].
If the context is incomplete, say what is missing instead of guessing.
Use precise legal language while staying readable, and structure longer answers with short sections or bullet points.`

// intentPrompts extend the base prompt per intent. General uses the base prompt alone.
var intentPrompts = map[domq.Intent]string{
	domq.IntentDefinition: `The user asks what a term means. Quote the defining clause, explain how the term is used ` +
		`elsewhere in the context and list related defined terms. If no definition is present, say so.`,
	domq.IntentObligation: `The user asks about duties. For each obligation name the obligated party, what must be done ` +
		`and any condition or deadline attached to it.`,
	domq.IntentTimeline: `The user asks about timing. List every period, date and deadline in the context with the event ` +
		`that starts it, in chronological order where possible.`,
	domq.IntentParty: `The user asks about the parties. Identify each party, its role and the rights or duties ` +
		`the context assigns to it.`,
	domq.IntentTermination: `The user asks about ending the agreement. Cover who may terminate, the grounds, ` +
		`notice periods, cure periods and the consequences of termination.`,
	domq.IntentPayment: `The user asks about money. State amounts, due dates, invoicing, late payment consequences ` +
		`and who pays whom.`,
	domq.IntentLiability: `The user asks about risk allocation. Cover limitations and exclusions of liability, ` +
		`caps, indemnities and any carve-outs.`,
}

func systemPrompt(intent domq.Intent) string {
	if extra, ok := intentPrompts[intent]; ok {
		return basePrompt + "\n\n" + extra
	}
	return basePrompt
}

// contextBlock renders the numbered sources: [N] (doc <id>, section <s>) content.
func contextBlock(results []result.Result) string {
	var b strings.Builder
	for i := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		r := &results[i]
		section := r.Section()
		if section == "" {
			section = "n/a"
		}
		fmt.Fprintf(&b, "[%d] (doc %s, section %s) %s", i+1, r.DocumentID(), section, r.Content())
	}
	return b.String()
}

func userPrompt(pq *domq.Processed, context string) string {
	var b strings.Builder
	b.WriteString("## Question\n")
	b.WriteString(pq.Original)
	fmt.Fprintf(&b, "\n\nQuery intent: %s (confidence %.2f)\n\n", pq.Intent, pq.Confidence)
	b.WriteString("## Context from legal documents\n")
	b.WriteString(context)
	b.WriteString("\n\nAnswer the question using only the context above. ")
	b.WriteString("Cite sources as [N]. State clearly when the context does not answer the question.")
	return b.String()
}

const followUpSystem = `You suggest follow-up questions for a legal document assistant.`

func followUpPrompt(pq *domq.Processed, answer string) string {
	return fmt.Sprintf(`Original question: %s
Query intent: %s
Answer given: %s

Suggest 3 to 5 follow-up questions that are specific to the legal content discussed, practical, build on the answer and help clarify ambiguities.
Format as a numbered list, one question per line.`, pq.Original, pq.Intent, answer)
}
