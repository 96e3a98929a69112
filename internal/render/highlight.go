package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// codeBlockHTML renders one fenced code block. Highlighting tries the tagged
// language first, then content analysis; anything that still fails renders
// the source verbatim.
func codeBlockHTML(source, language string) string {
	if body, ok := highlightHTML(source, language); ok {
		return `<pre class="chroma"><code>` + body + `</code></pre>`
	}
	return plainCodeHTML(source)
}

func plainCodeHTML(source string) string {
	return `<pre class="chroma"><code>` + html.EscapeString(source) + `</code></pre>`
}

// highlightHTML tokenizes source into class-annotated spans. The second
// return is false when no lexer matches or formatting fails.
func highlightHTML(source, language string) (string, bool) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		return "", false
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("github")
	if style == nil {
		style = styles.Fallback
	}

	formatter := chromahtml.New(
		chromahtml.WithClasses(true),
		chromahtml.PreventSurroundingPre(true),
	)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return "", false
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "", false
	}
	return buf.String(), true
}
