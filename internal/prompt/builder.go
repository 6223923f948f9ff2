package prompt

import (
	"strconv"
	"strings"
)

const (
	textPlaceholder  = "{{text}}"
	countPlaceholder = "{{count}}"
)

// UserContent renders the prompt for a single-chunk request.
func (i *Instructions) UserContent(text string) string {
	return render(i.UserPrompt, text, 1)
}

// ChunkContent renders the prompt for one section of a multi-chunk request.
func (i *Instructions) ChunkContent(text string) string {
	return render(i.ChunkPrompt, text, 1)
}

// ReductionContent renders the merge prompt over count joined partial outputs.
func (i *Instructions) ReductionContent(joined string, count int) string {
	return render(i.ReductionPrompt, joined, count)
}

func render(tmpl, text string, count int) string {
	r := strings.NewReplacer(
		countPlaceholder, strconv.Itoa(count),
		textPlaceholder, text,
	)
	return r.Replace(tmpl)
}
