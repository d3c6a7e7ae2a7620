// Package journal はゲートウェイが中継したリクエストの履歴（Exchange）を記録する。
//
// 記録は観測目的のみで、中継レスポンスの内容には一切影響しない。
// SQLiteによる永続化とメモリ上のリングバッファの2種類の実装を持ち、
// 古い履歴はcron式で指定したスケジュールで削除される。
package journal
