package markdown

import (
	"github.com/russross/blackfriday/v2"
)

// Extensions is the parser extension set used by Render.
const Extensions = blackfriday.CommonExtensions

// HTMLFlags is the renderer flag set used by Render.
const HTMLFlags = blackfriday.UseXHTML

// Render converts src to an HTML fragment. A nil or empty src yields an
// empty result.
func Render(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: HTMLFlags,
	})
	return blackfriday.Run(src,
		blackfriday.WithExtensions(Extensions),
		blackfriday.WithRenderer(renderer),
	)
}
