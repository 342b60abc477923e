// Package httpclient はJSONを送受信する小さなHTTPクライアントを提供する。
//
// ライブチャネルのWebhookトランスポートが配信イベントを外部エンドポイントへPOSTするために使う。
package httpclient
