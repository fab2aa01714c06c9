// Package llm defines the text-completion boundary used by the agents.
//
// A Client turns a prompt into raw text. Concrete clients live under
// internal/platform (gemini, openrouter, ollama). A Chain tries several
// clients in order and reports the final failure as a *ProviderError. The
// Registry maps configured provider names to client factories.
package llm
