// Package middleware はbellのHTTP APIで使用するGinミドルウェアを提供する。
//
// JWTによる要求ユーザーの特定、zerologによるリクエストログ、
// パニックリカバリ、CORS設定を含む。
package middleware
