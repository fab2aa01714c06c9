// Package gemini implements llm.Client on Google's Gemini API using the
// google.golang.org/genai SDK.
package gemini
