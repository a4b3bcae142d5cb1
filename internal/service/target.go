package service

import (
	"strings"

	"model-proxy-go/internal/model"
)

// StripMountPrefix removes a platform mount prefix such as "/api" from path.
// The prefix only matches whole segments, so "/api.openai.com" is untouched
// by prefix "/api". The result always starts with "/".
func StripMountPrefix(path, prefix string) string {
	if prefix == "" {
		return path
	}
	if path == prefix {
		return "/"
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix):]
	}
	return path
}

// ResolveTarget decodes "/{host}/{rest}" into an upstream target.
// It never fails: the first segment is taken verbatim as the host, even when
// empty or not a valid hostname, and the rest keeps its leading slash and any
// internal slashes. A bare "/{host}" resolves to path "/".
func ResolveTarget(path, rawQuery string) model.Target {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	i := strings.IndexByte(path[1:], '/')
	if i < 0 {
		return model.Target{Host: path[1:], Path: "/", Query: rawQuery}
	}
	i++ // index into path, not path[1:]

	return model.Target{
		Host:  path[1:i],
		Path:  path[i:],
		Query: rawQuery,
	}
}
