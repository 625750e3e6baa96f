package librarian

import (
	"fmt"
	"strings"

	"github.com/libraryengine/stacks/internal/store"
)

func extractPrompt(turn string) string {
	var b strings.Builder
	b.WriteString("Extract durable memories from the following conversational turn. ")
	b.WriteString(`Respond with JSON: {"memories":[{"text":"...","topic":"...","tags":["..."],"entryType":"fact|decision|observation"}]}.` + "\n\n")
	b.WriteString(turn)
	return b.String()
}

func summarizePrompt(volumes []*store.Volume, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following volumes under topic %q. ", topic)
	b.WriteString(`Respond with JSON: {"text":"...","sourceIds":["..."]}.` + "\n\n")
	for _, v := range volumes {
		fmt.Fprintf(&b, "- [%s] %s\n", v.ID, v.Text)
	}
	return b.String()
}

func classifyPrompt(text string, existingTopics []string) string {
	var b strings.Builder
	b.WriteString("Classify the following text under one of the existing topics, or propose a new one. ")
	b.WriteString(`Respond with JSON: {"topic":"...","confidence":0.0}.` + "\n\n")
	fmt.Fprintf(&b, "Existing topics: %s\n\n", strings.Join(existingTopics, ", "))
	b.WriteString(text)
	return b.String()
}

func reorganizePrompt(topic string, volumes []*store.Volume) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose a reorganization of topic %q's volumes. ", topic)
	b.WriteString(`Respond with JSON: {"moves":[{"id":"...","toTopic":"..."}],"newSubtopics":["..."],"merges":[{"topics":["..."],"into":"..."}]}.` + "\n\n")
	for _, v := range volumes {
		fmt.Fprintf(&b, "- [%s] %s\n", v.ID, v.Text)
	}
	return b.String()
}
