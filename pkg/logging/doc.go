// Package logging はzerologベースの構造化ロガーを生成する。
//
// コンソール（標準エラー出力）への人間向け出力と、ログファイルへのJSON Lines
// 出力を同時に行える。全てのログ行にサービス名が付与される。
package logging
