// Package flight はキー単位の単発実行レジストリを提供する。
//
// Doは同時に呼ばれた同じキーの処理を1回の実行にまとめ、結果を全員で共有する。
// Onceはさらに結果をラッチし、Group存続中は後続の呼び出しにも同じ結果を返す。
package flight

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group はキーごとの実行中呼び出しとラッチ済み結果を保持する。
// ゼロ値で使用できる。
type Group struct {
	sf singleflight.Group

	mu      sync.Mutex
	latched map[string]result
}

type result struct {
	val any
	err error
}

// Do はkeyに対する実行中の呼び出しがあればその完了を待って結果を共有する。
// なければfnを実行する。完了後は何も保持しない。
func (g *Group) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := g.sf.Do(key, fn)
	return v, err
}

// Once はkeyについてfnを高々1回だけ実行し、その結果を以後すべての呼び出しに返す。
// 失敗した結果もラッチされる。やり直すにはForgetを呼ぶ。
func (g *Group) Once(key string, fn func() (any, error)) (any, error) {
	if r, ok := g.load(key); ok {
		return r.val, r.err
	}

	v, err, _ := g.sf.Do(key, func() (any, error) {
		// 待機中に別の呼び出しがラッチした可能性がある
		if r, ok := g.load(key); ok {
			return r.val, r.err
		}
		val, err := fn()
		g.store(key, result{val: val, err: err})
		return val, err
	})
	return v, err
}

// DoContext はDoと同じだが、待機中にctxが終了した場合は待たずにctx.Err()を返す。
// 共有している実行自体は止めない。
func (g *Group) DoContext(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	ch := g.sf.DoChan(key, fn)
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Latched はkeyの結果がラッチ済みかを返す。
func (g *Group) Latched(key string) bool {
	_, ok := g.load(key)
	return ok
}

// Forget はkeyのラッチを解除する。実行中の呼び出しには影響しない。
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.latched, key)
	g.mu.Unlock()
	g.sf.Forget(key)
}

func (g *Group) load(key string) (result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.latched[key]
	return r, ok
}

func (g *Group) store(key string, r result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latched == nil {
		g.latched = make(map[string]result)
	}
	g.latched[key] = r
}
