// Package httpclient はアップストリームのRAG APIへHTTPリクエストを中継するクライアントを提供する。
//
// リクエストボディは不透明なJSONバイト列としてそのまま送信し、レスポンスも
// デシリアライズせずにバイト列として返す。2xx以外のステータスはStatusErrorとして
// エラー側に寄せるため、呼び出し側は成功か失敗かだけを判定すればよい。
package httpclient
