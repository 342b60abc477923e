// Package notification は通知のライフサイクルとリアルタイム配信の中核を提供する。
//
// 通知の作成、既読・未読・非表示の状態遷移、未読件数の再計算、
// アクティブ化時のアクション解決、ライブチャネルへの配信を扱う。
// すべての操作は操作ユーザーを引数で受け取り、他人の通知に対する変更は
// エラーにせず何もしない。
package notification
