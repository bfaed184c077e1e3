// Package web embeds the browser chat page.
package web

import _ "embed"

//go:embed index.html
var Index []byte
