// Package keyboard builds inline keyboards independently of the transport.
package keyboard

import (
	"strconv"

	"github.com/m3rciful/streambot/core/telegram/callbacks"
)

// Button is an inline keyboard button carrying callback data or a URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Row is a single keyboard line.
type Row []Button

// Markup is an inline keyboard.
type Markup []Row

const defaultCancelButtonText = "Cancel"

// PageSize is the number of item rows PageList shows per page.
const PageSize = 10

// Data returns a callback button.
func Data(text, data string) Button {
	return Button{Text: text, Data: data}
}

// Link returns a URL button.
func Link(text, url string) Button {
	return Button{Text: text, URL: url}
}

// Single places each button on its own row.
func Single(buttons ...Button) Markup {
	rows := make(Markup, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, Row{b})
	}
	return rows
}

// NPerRow splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, it behaves like Single.
func NPerRow(buttons []Button, n int) Markup {
	if n <= 1 {
		return Single(buttons...)
	}
	var rows Markup
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, Row(buttons[i:end]))
	}
	return rows
}

// CancelButton returns the button cancelling command, e.g. "/cancel/delete".
// An optional label overrides the default text.
func CancelButton(command string, label ...string) Button {
	text := defaultCancelButtonText
	if len(label) > 0 && label[0] != "" {
		text = label[0]
	}
	return Data(text, callbacks.Path("cancel", command))
}

// PageList returns one page of item rows followed by a control row. The
// control row holds "<" and ">" buttons pointing at base with a page query
// and, when cancel is set, the cancel button. The page is read from query
// and clamped to the available range.
func PageList(query map[string]string, items Markup, base string, cancel *Button) Markup {
	page, _ := strconv.Atoi(query["page"])
	pages := (len(items) + PageSize - 1) / PageSize
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}

	start := page * PageSize
	end := start + PageSize
	if end > len(items) {
		end = len(items)
	}
	out := make(Markup, 0, end-start+1)
	out = append(out, items[start:end]...)

	var controls Row
	if page > 0 {
		controls = append(controls, Data("<", callbacks.WithQuery(base, "page", strconv.Itoa(page-1))))
	}
	if cancel != nil {
		controls = append(controls, *cancel)
	}
	if page < pages-1 {
		controls = append(controls, Data(">", callbacks.WithQuery(base, "page", strconv.Itoa(page+1))))
	}
	if len(controls) > 0 {
		out = append(out, controls)
	}
	return out
}
