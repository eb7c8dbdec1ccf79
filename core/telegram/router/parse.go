package router

import (
	"net/url"
	"strings"
)

// parsed is the single normalized view routes match against.
type parsed struct {
	command string
	path    string
	query   map[string]string
}

// parseEvent derives the command path of ev. Message text keeps its arguments
// but drops the "@botname" suffix of the leading command; callback data splits
// into a path and a query string.
func parseEvent(ev Event, botName string) parsed {
	switch ev.Kind {
	case KindCallbackQuery:
		return parseCallbackData(ev.Data)
	case KindMessage:
		return parseMessageText(ev.Text, botName)
	}
	return parsed{query: map[string]string{}}
}

func parseMessageText(text, botName string) parsed {
	p := parsed{path: text, query: map[string]string{}}
	if !strings.HasPrefix(text, "/") {
		return p
	}
	end := strings.IndexAny(text, " \t\n")
	if end < 0 {
		end = len(text)
	}
	token := text[:end]
	if at := strings.IndexByte(token, '@'); at > 0 {
		mention := token[at+1:]
		if botName == "" || strings.EqualFold(mention, botName) {
			token = token[:at]
			p.path = token + text[end:]
		}
	}
	p.command = token
	return p
}

func parseCallbackData(data string) parsed {
	p := parsed{path: data, query: map[string]string{}}
	if i := strings.IndexByte(data, '?'); i >= 0 {
		p.path = data[:i]
		// ParseQuery keeps the pairs it could decode even when it reports an error.
		values, _ := url.ParseQuery(data[i+1:])
		for k, v := range values {
			if len(v) > 0 {
				p.query[k] = v[0]
			}
		}
	}
	p.command = p.path
	if strings.HasPrefix(p.path, "/") {
		if j := strings.IndexByte(p.path[1:], '/'); j >= 0 {
			p.command = p.path[:j+1]
		}
	}
	return p
}
