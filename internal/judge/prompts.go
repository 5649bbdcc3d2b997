package judge

// Every prompt demands a bare JSON object so responses parse without
// free-text handling; parseObject still strips code fences for models that
// wrap output anyway.

const relationPrompt = `You are analyzing the relationship between two memories in an AI agent's memory system.

EXISTING MEMORY (stored earlier):
"%s"

NEW MEMORY (being added now):
"%s"

Classify their relationship into exactly ONE of these categories:

1. COMPATIBLE - The memories contain different, non-conflicting information. Both should be kept.
2. CONTRADICTORY - The new memory updates, corrects, or invalidates the existing memory.
3. SUBSUMES - The new memory is more general and fully encompasses the existing memory.
4. SUBSUMED - The existing memory is more general and already encompasses the new memory.

Respond ONLY with valid JSON in this exact format:
{"classification": "COMPATIBLE|CONTRADICTORY|SUBSUMES|SUBSUMED", "explanation": "1-2 sentences"}`

const fieldsMediumPrompt = `Process this memory for storage in a memory system.

MEMORY CONTENT:
"%s"

Generate: a one-sentence paraphrase restating the fact, and up to %d keywords.

Respond ONLY with valid JSON in this exact format:
{"paraphrase": "...", "keywords": ["...", "..."]}`

const fieldsDeepPrompt = `Process this memory for storage in a memory system.

MEMORY CONTENT:
"%s"

Generate ALL of:
- a one-sentence paraphrase restating the fact
- up to %d keywords
- up to %d implications (what this fact suggests beyond its literal content)
- a question_form: the question a user would ask for which this memory is the answer

Respond ONLY with valid JSON in this exact format:
{"paraphrase": "...", "keywords": ["..."], "implications": ["..."], "question_form": "..."}`

const summaryPrompt = `Update the summary of a memory category.

CURRENT SUMMARY (may be empty):
%s

MEMORIES IN THIS CATEGORY:
%s

Write a 2-3 sentence summary capturing the key information and common themes.

Respond ONLY with valid JSON in this exact format:
{"summary": "..."}`

const consolidatePrompt = `Consolidate these near-duplicate memories into ONE comprehensive statement that preserves every specific detail.

MEMORIES:
%s

Respond ONLY with valid JSON in this exact format:
{"consolidated_memory": "..."}`

const extractPrompt = `You are extracting memorable facts from a conversation to store in a long-term memory system.

CONVERSATION:
%s

EXISTING MEMORIES (for context, to avoid duplicates):
%s

Identify NEW facts worth remembering: preferences, habits, goals, context, important entities or events. Skip small talk, temporary details, and anything already captured.

Respond ONLY with valid JSON in this exact format:
{"memories": [{"content": "The specific fact to remember", "category": "preference|fact|goal|relationship|context|event"}]}

Rules:
- Each memory must be a standalone, self-contained statement in third person.
- Be specific: "User prefers morning meetings", not "User has meeting preferences".
- If nothing new is worth remembering, return an empty memories array.`
