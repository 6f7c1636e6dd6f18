// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"
)

// ClientStateRepository はブラウザ単位のキー・バリュー状態の永続化インターフェース。
// ownerIDはデバイスID（localStorage相当）またはタブセッションID（sessionStorage相当）。
type ClientStateRepository interface {
	// Get は指定キーの値を取得する。存在しない場合はok=falseを返す。
	Get(ctx context.Context, ownerID, key string) (value string, ok bool, err error)

	// Set は指定キーの値を作成または上書きする。
	Set(ctx context.Context, ownerID, key, value string) error

	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, ownerID, key string) error

	// DeleteStale は最後の更新がbeforeより古いオーナーの全行を削除し、削除件数を返す。
	// オーナー単位で消すため、ログイン時にだけ書くキーが単独で消えることはない。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
