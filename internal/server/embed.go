package server

import (
	"embed"
	"fmt"
)

//go:embed web/index.html
var webFS embed.FS

// indexHTML は埋め込まれた画面のHTMLを返す
func indexHTML() ([]byte, error) {
	data, err := webFS.ReadFile("web/index.html")
	if err != nil {
		return nil, fmt.Errorf("埋め込みindex.htmlの読み込みに失敗: %w", err)
	}
	return data, nil
}
