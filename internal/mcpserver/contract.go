package mcpserver

// PageFormatContract describes how the content directory maps to routes and
// which frontmatter keys the engine understands.
const PageFormatContract = `# Page Format Contract

Every page is a directory under the content root holding one descriptor file
(` + "`" + `<template>.md` + "`" + `). The descriptor name selects the template; its YAML
frontmatter holds page attributes and the rest is the page body.

## Layout

` + "```" + `text
content/
  index/page.md          # served at /
  404/page.md            # the error page
  01-about/page.md       # /about/ (01- is an ordering prefix)
  01-about/photo.png     # /about/photo.png
  02-blog/blog.md        # /blog/, template "blog"
  02-blog/01-first/post.md
` + "```" + `

## Rules

1. **Routes** are directory names with one leading ` + "`" + `NN-` + "`" + ` prefix removed.
   Siblings must not collide once the prefix is removed (see ` + "`" + `list_conflicts` + "`" + `).
2. **Order** of children follows the directory listing, so prefixes sort pages.
3. A directory without a descriptor is an empty page: it is kept for structure
   but never served.
4. **Files** next to the descriptor are served when their extension is allowed
   (jpg, jpeg, png, gif, svg, pdf by default).

## Frontmatter keys

| key             | default            | effect                                        |
|-----------------|--------------------|-----------------------------------------------|
| title           | directory name     | display title                                 |
| published       | true               | false hides the page (error page is served)   |
| publish_date    | none               | page is hidden before this date               |
| unpublish_date  | none               | page is hidden after this date                |
| routable        | true               | false hides the page from routing             |
| visible         | has ordering prefix| shown in navigation                           |
| cacheable       | true               | false bypasses the response cache             |
| canonical       | none               | requests for other routes are redirected here |
| type: listing   | none               | children are paginated into the template      |
| tags            | none               | list used by /tag/{name}/ filters             |
| headers         | none               | map of extra response headers                 |

## Example

` + "```" + `markdown
---
title: First post
tags:
  - go
publish_date: 2025-01-20
---

Body text in standard Markdown.
` + "```" + `
`
