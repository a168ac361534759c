package notify

import (
	"sync"
	"time"
)

// Throttle はキーごとのスライディングウィンドウ方式の送信制限。
// プロセス内のみで状態を持つため、複数インスタンス間では共有されない。
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	hits   map[string][]time.Time
}

// NewThrottle はwindowあたりmax回まで許可するThrottleを生成する。
// nowがnilの場合はtime.Nowを使う。
func NewThrottle(window time.Duration, max int, now func() time.Time) *Throttle {
	if max <= 0 {
		max = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		window: window,
		max:    max,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow はkeyの送信枠を1つ予約できればtrueを返す。
func (t *Throttle) Allow(key string) bool {
	_, ok := t.Reserve(key)
	return ok
}

// Reserve はkeyの送信枠を1つ予約し、記録した時刻を返す。
// 確認と予約は同じロック内で行うため、同時呼び出しでも上限を超えない。
func (t *Throttle) Reserve(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	recent := t.recent(key, now)
	if len(recent) >= t.max {
		t.hits[key] = recent
		return time.Time{}, false
	}
	t.hits[key] = append(recent, now)
	return now, true
}

// Release はReserveで予約した時刻atの枠を返却する。送信に失敗した場合に呼ぶ。
// 他の呼び出しが予約した枠には触れない。
func (t *Throttle) Release(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hits := t.hits[key]
	for i := len(hits) - 1; i >= 0; i-- {
		if !hits[i].Equal(at) {
			continue
		}
		hits = append(hits[:i:i], hits[i+1:]...)
		if len(hits) == 0 {
			delete(t.hits, key)
			return
		}
		t.hits[key] = hits
		return
	}
}

// Prune はウィンドウ外の記録しか持たないキーを削除する。
func (t *Throttle) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key := range t.hits {
		recent := t.recent(key, now)
		if len(recent) == 0 {
			delete(t.hits, key)
			continue
		}
		t.hits[key] = recent
	}
}

// Len は記録を保持しているキーの数を返す。
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hits)
}

// recent はウィンドウ内の記録だけを返す。呼び出し元でロックを取得していること。
func (t *Throttle) recent(key string, now time.Time) []time.Time {
	hits := t.hits[key]
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
