// Package server は監視画面のHTTPサーバーとWebSocket通信を管理します。
//
// 責務:
//   - 画面 (index.html) と操作用APIの配信
//   - カメラ映像のMJPEGストリーミング
//   - WebSocketによる再描画イベントの配信
//   - グレースフルシャットダウン
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - 起動時に画面をマウントし、停止時にアンマウントしてカメラを解放する
//   - カメラを開く処理はリクエストの切断では中断しない
package server
