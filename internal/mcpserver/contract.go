package mcpserver

// EntryFormatContract describes how documents are tracked and rendered, for
// LLM consumers reading the index or the ledger.
const EntryFormatContract = `# DMS Entry Format

Every tracked file has one ledger entry keyed by its logical path.

## Logical paths

- Relative to the document root, forward slashes, always prefixed with ` + "`./`" + `
  (e.g. ` + "`./guides/setup.txt`" + `).
- Tool-owned files (` + "`.dms_*`" + `, ` + "`index.html`" + ` and its backups) are never tracked.

## Ledger entry

| field | meaning |
|---|---|
| hash | ` + "`sha256:<hex>`" + ` of the file content, ` + "`sha256:missing`" + ` when gone |
| category | section the entry is filed under |
| summary | short description shown in the index |
| title | defaults to the file name without extension |
| last_processed | when the entry was last applied |
| summary_approved | whether a person approved the summary |

## Rendered entry

` + "```" + `html
<li class="file" data-path="./a.txt" data-pdf="">
  <div class="meta">
    <div class="title"><a href="#" class="file-link">a</a></div>
    <div class="desc">summary</div>
    <div class="tags small-muted">TXT · Guides</div>
  </div>
</li>
` + "```" + `

Entries live inside ` + "`<section class=\"category\" data-category=\"...\">`" + ` blocks.
The ledger is authoritative; a copy is embedded in the index as a
` + "`<!-- DMS_STATE ... -->`" + ` comment.
`
