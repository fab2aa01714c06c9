// Package agent defines the three consult agents as task work items: the
// User Whisperer (transcript analysis), the Market Maven (competitor
// analysis) and the Narrative Architect (content generation). Each agent
// renders a prompt, calls an llm.Client, and describes its output type,
// required-key defaults, parse fallback and activity metrics.
package agent
