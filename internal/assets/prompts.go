// Package assets provides embedded static assets. Prompt templates live as
// text files under prompts/ and are embedded at compile time, keeping prompt
// wording editable without touching Go code.
package assets

import _ "embed"

// AuditSystemPrompt is the system instruction for accessibility audit
// invocations. It fixes the model's role and the required JSON output shape;
// the per-mini-batch job list is supplied in the user prompt.
//
//go:embed prompts/audit-system.txt
var AuditSystemPrompt string
