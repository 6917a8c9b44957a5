package prompts

// ============================================================================
// Description Prompts (AI content description)
// ============================================================================

// DescribeSystemPrompt defines the role and rules for file content description.
const DescribeSystemPrompt = `You are a file content analyst. You produce short, factual summaries of files for a searchable file index.

Rules:
- One paragraph, 40-100 words, plain prose without headings or bullet points.
- For images: describe the subject, setting, notable text, and overall style.
- For documents: state the document type, topic, and key points.
- For anything else: describe what can be inferred from the available content.
- Never speculate beyond the provided content. Never include disclaimers.`

// DescribeUserPrompt asks for the summary of the attached content.
const DescribeUserPrompt = `Summarize the following file for the index:`

// ============================================================================
// Classification Prompts (type label)
// ============================================================================

// ClassifySystemPrompt defines the role for type-label classification.
const ClassifySystemPrompt = `You are a file classifier. Given file content or a content reference, answer with strict JSON only, no prose:

{"label": "<short type label, e.g. invoice, screenshot, vacation photo, source code>", "confidence": <0.0-1.0>}`

// ClassifyUserPrompt asks for the label of the attached content.
const ClassifyUserPrompt = `Classify the following file:`
