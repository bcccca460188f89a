package extract

import (
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// The converter is goroutine-safe and configuration never changes, so a
// single shared instance serves every text extraction.
var markdownConv = sync.OnceValue(func() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			// base strips script, style, iframe, head, comments.
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
})

// toMarkdown renders clean article HTML as markdown. The domain resolves
// relative links and image sources so the output stands alone.
func toMarkdown(htmlContent, domain string) (string, error) {
	return markdownConv().ConvertString(htmlContent, converter.WithDomain(domain))
}
