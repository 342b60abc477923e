// Package actions は通知のウィンドウアクションが参照するアクション定義のレジストリを提供する。
//
// 定義はYAMLファイルで管理し、数値IDまたはシンボル名（xml_id）で引く。
// Watch を使うとファイルの変更を検知して定義を再読み込みする。
package actions
