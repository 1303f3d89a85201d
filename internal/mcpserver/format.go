package mcpserver

// FlashcardFormat describes how flashcards and links are written in vault
// notes so LLM clients can author notes cardsync will pick up.
const FlashcardFormat = `# Flashcard Format

cardsync reads flashcards from Markdown notes and follows [[wikilinks]] to
collect cards from every reachable note.

## Cards

` + "```" + `markdown
#[flashcard] Q: What is the capital of France? A: Paris

#[flashcard]
Q: Name the three states of matter.
A: Solid, liquid
and gas.
` + "```" + `

1. A card starts at the tag ` + "`" + `#[flashcard]` + "`" + ` and runs to the next tag or the end of the note.
2. ` + "`" + `Q:` + "`" + ` must come before ` + "`" + `A:` + "`" + `. Both keywords are case-sensitive.
3. The answer is everything after ` + "`" + `A:` + "`" + `, so it may span several lines.
4. Blocks with an empty question or answer are ignored.
5. Everything up to and including a line containing ` + "`" + `Select Connection:` + "`" + ` is ignored.

## Links

- ` + "`" + `[[Note]]` + "`" + `, ` + "`" + `[[Note|alias]]` + "`" + ` and ` + "`" + `[[Note#Heading]]` + "`" + ` all point at ` + "`" + `Note.md` + "`" + `.
- Links are matched by file name anywhere in the vault. When two notes share a
  name, the first in lexical path order wins.
- Hidden directories such as ` + "`" + `.obsidian` + "`" + ` are never searched.

## Decks

A sync target's cards go into one deck. By default the deck is named after the
start note (without extension) or the directory.
`
