// Package gateway はRAG APIの前段に置くHTTPゲートウェイを提供する。
//
// query、ingest、inspectの3種類のリクエストを1回だけアップストリームへ中継し、
// 成功時はアップストリームのJSONボディをそのまま200で返す。失敗時は種類を問わず
// 500と{"error": メッセージ}を返す。リクエスト間で共有する可変状態は持たない。
package gateway
