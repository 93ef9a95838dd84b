// Package camera はカメラストリームの取得機能を担う
//
// # 責務
// - カメラデバイスの検出 (/dev/video* と v4l2-ctl)
// - 映像のみのストリームの要求と解放
// - 取得失敗の分類 (権限拒否・デバイスなし・使用中・非対応・不明)
//
// # 仕様
// - MediaDevices: ストリームを開く機能。V4L2MediaDevicesがffmpegで実装する
// - Stream / Track: 開いているストリームのハンドル。StopAllTracksでデバイスを解放する
// - V4L2Capturer: ffmpeg経由でMJPEGフレームを切り出す
// - MockMediaDevices: テスト用に合成フレームを流す
//
// # 前提要件
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - v4l-utils: カメラ名とフォーマットの取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
