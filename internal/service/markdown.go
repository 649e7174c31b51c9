package service

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	descriptionPolicy = bluemonday.UGCPolicy()
	notePolicy        = bluemonday.StrictPolicy()
)

// RenderDescription 将习惯描述（Markdown）渲染为安全的 HTML
func RenderDescription(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return descriptionPolicy.Sanitize(buf.String()), nil
}

// sanitizeNote 去除备注中的全部 HTML 标签
func sanitizeNote(note string) string {
	return strings.TrimSpace(notePolicy.Sanitize(strings.TrimSpace(note)))
}
