package routing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Nyukimin/toolrouter/internal/domain/intent"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

const classifierPreamble = "You are a helpful assistant that interprets user queries for a tool routing server. " +
	"Your task is to determine the user's intent and extract relevant parameters from their natural language query."

const narratorSystemPrompt = "You are a helpful assistant that generates natural, conversational responses. " +
	"You should format the technical data into a friendly, conversational response. "

// ディスパッチャーが使うナレーション指示
const (
	NarrateSingleInstruction = "Generate a natural, conversational response to the user's query based on the data provided. " +
		"The response should be helpful, concise, and in a friendly tone. " +
		"Include all relevant information from the data, but phrase it naturally as if in conversation. " +
		"If there was an error, explain it clearly and suggest alternatives."

	NarrateMultiInstruction = "The user asked several things at once and each tool result is listed below. " +
		"Write one coherent response that answers every part in the order given. " +
		"If one of the tools failed, say so briefly and still report the others."

	NarrateGeneralInstruction = "The user's request does not match any available tool. " +
		"Reply briefly and helpfully, and tell the user what they can ask about using the available tools listed below."
)

func writeCatalog(b *strings.Builder, catalog []tool.Descriptor) {
	b.WriteString("\n\nAvailable tools:")
	for _, d := range catalog {
		fmt.Fprintf(b, "\n- %s: %s", d.Name, d.Description)
	}
}

func buildClassifySystemPrompt(catalog []tool.Descriptor) string {
	var b strings.Builder
	b.WriteString(classifierPreamble)
	if len(catalog) > 0 {
		writeCatalog(&b, catalog)
		b.WriteString("\n\nFor each query, you should respond with a JSON object containing:" +
			"\n- 'tool': The name of the tool to use" +
			"\n- 'params': A dictionary of parameters to pass to the tool" +
			"\n- 'confidence': A number between 0 and 1 indicating your confidence in this interpretation" +
			"\n- 'explanation': A brief explanation of your reasoning" +
			"\n\nIf you cannot determine the intent, respond with a JSON object with 'tool' set to 'unknown'.")
	}
	return b.String()
}

func buildMultiSystemPrompt(catalog []tool.Descriptor) string {
	var b strings.Builder
	b.WriteString(classifierPreamble)
	b.WriteString(" The query may contain several independent requests.")
	writeCatalog(&b, catalog)
	b.WriteString("\n\nRespond with a single JSON object of the form {\"intents\": [...]} where each element contains:" +
		"\n- 'tool': The name of the tool to use" +
		"\n- 'params': A dictionary of parameters to pass to the tool" +
		"\n- 'confidence': A number between 0 and 1" +
		"\n- 'explanation': A brief explanation" +
		"\n\nList the requests in the order they appear in the query. " +
		"If no request maps to a tool, respond with {\"intents\": []}.")
	return b.String()
}

func buildNarrationMessage(n intent.Narration) string {
	var b strings.Builder
	b.WriteString("Here is the context information:\n")
	fmt.Fprintf(&b, "User query: %s\n\n", n.Query)

	for i, res := range n.Results {
		name := "Unknown tool"
		if i < len(n.Tools) {
			name = n.Tools[i]
		}
		fmt.Fprintf(&b, "Tool used: %s\n", name)
		fmt.Fprintf(&b, "Response status: %s\n", res.Status)
		if res.Message != "" {
			fmt.Fprintf(&b, "Raw response message: %s\n\n", res.Message)
		}
		if len(res.Data) > 0 {
			if raw, err := json.Marshal(res.Data); err == nil {
				fmt.Fprintf(&b, "Response data: %s\n\n", raw)
			}
		}
	}

	if len(n.Catalog) > 0 {
		b.WriteString("Available tools:")
		for _, d := range n.Catalog {
			fmt.Fprintf(&b, "\n- %s: %s", d.Name, d.Description)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("Generate a natural, conversational response that includes all the relevant information.")
	return b.String()
}
