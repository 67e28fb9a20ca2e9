package holepunch

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-dcutr/pkg/types"
)

// ============================================================================
//                              Registry
// ============================================================================

// RegistryEntry 单个节点的准入记录快照
type RegistryEntry struct {
	// InFlight 进行中的尝试数
	InFlight int
	// LastFailure 最近一次失败时间（零值表示无记录或已被成功清除）
	LastFailure time.Time
}

// RegistryStats 准入统计
type RegistryStats struct {
	// Active 全局进行中的尝试数
	Active int
	// Peers 有进行中尝试的节点数
	Peers int
	// CoolingDown 冷却表中的节点数（含已过期未清理的）
	CoolingDown int
	// Admitted 累计准入次数
	Admitted uint64
	// Rejected 累计拒绝次数
	Rejected uint64
}

// Registry 打洞尝试准入控制
//
// 所有准入判定与计数更新都在同一把锁内完成，N 个并发请求
// 在上限为 N-1 时恰好有一个被拒绝。
type Registry struct {
	cfg   *Config
	clock clock.Clock

	global  *semaphore.Weighted
	limiter *rate.Limiter // nil 表示不限速

	mu       sync.Mutex
	inflight map[types.PeerID]int
	failures *lru.Cache[types.PeerID, time.Time]
	active   int
	admitted uint64
	rejected uint64
}

// NewRegistry 创建准入控制器
func NewRegistry(cfg *Config, clk clock.Clock) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	failures, err := lru.New[types.PeerID, time.Time](cfg.CooldownCacheSize)
	if err != nil {
		return nil, fmt.Errorf("holepunch: create cooldown cache: %w", err)
	}

	r := &Registry{
		cfg:      cfg,
		clock:    clk,
		global:   semaphore.NewWeighted(int64(cfg.MaxConcurrentAttempts)),
		inflight: make(map[types.PeerID]int),
		failures: failures,
	}
	if cfg.MaxAttemptRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.MaxAttemptRate), cfg.AttemptRateBurst)
	}
	return r, nil
}

// Admit 申请一次对 peer 的打洞尝试
//
// 成功时返回的 Admission 必须且只需 Release 一次；
// 拒绝时返回 Reason 为 TooManyConcurrentAttempts 或 PeerCooldown 的 *AttemptError。
func (r *Registry) Admit(peer types.PeerID) (*Admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	if last, ok := r.failures.Peek(peer); ok {
		if elapsed := now.Sub(last); elapsed < r.cfg.FailureCooldown {
			r.rejected++
			return nil, &AttemptError{
				Peer:   peer,
				Reason: ReasonPeerCooldown,
				Err:    fmt.Errorf("last failure %s ago, cooldown %s", elapsed, r.cfg.FailureCooldown),
			}
		}
		r.failures.Remove(peer)
	}

	if n := r.inflight[peer]; n >= r.cfg.MaxAttemptsPerPeer {
		r.rejected++
		return nil, &AttemptError{
			Peer:   peer,
			Reason: ReasonTooManyConcurrentAttempts,
			Err:    fmt.Errorf("peer limit reached (%d/%d)", n, r.cfg.MaxAttemptsPerPeer),
		}
	}

	if !r.global.TryAcquire(1) {
		r.rejected++
		return nil, &AttemptError{
			Peer:   peer,
			Reason: ReasonTooManyConcurrentAttempts,
			Err:    fmt.Errorf("global limit reached (%d)", r.cfg.MaxConcurrentAttempts),
		}
	}

	if r.limiter != nil && !r.limiter.AllowN(now, 1) {
		r.global.Release(1)
		r.rejected++
		return nil, &AttemptError{
			Peer:   peer,
			Reason: ReasonTooManyConcurrentAttempts,
			Err:    fmt.Errorf("attempt rate exceeded (%.2f/s)", r.cfg.MaxAttemptRate),
		}
	}

	r.inflight[peer]++
	r.active++
	r.admitted++

	return &Admission{registry: r, peer: peer}, nil
}

// release 归还名额并按结果更新冷却表
func (r *Registry) release(peer types.PeerID, final State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.inflight[peer]; n <= 1 {
		delete(r.inflight, peer)
	} else {
		r.inflight[peer] = n - 1
	}
	r.active--
	r.global.Release(1)

	switch final {
	case StateSucceeded:
		r.failures.Remove(peer)
	case StateFailed:
		r.failures.Add(peer, r.clock.Now())
	}
}

// Entry 返回节点的准入记录快照
func (r *Registry) Entry(peer types.PeerID) RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := RegistryEntry{InFlight: r.inflight[peer]}
	if last, ok := r.failures.Peek(peer); ok {
		entry.LastFailure = last
	}
	return entry
}

// InCooldown 检查节点当前是否处于冷却期
func (r *Registry) InCooldown(peer types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.failures.Peek(peer)
	return ok && r.clock.Since(last) < r.cfg.FailureCooldown
}

// Stats 返回准入统计
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RegistryStats{
		Active:      r.active,
		Peers:       len(r.inflight),
		CoolingDown: r.failures.Len(),
		Admitted:    r.admitted,
		Rejected:    r.rejected,
	}
}

// ============================================================================
//                              Admission
// ============================================================================

// Admission 一次已准入的尝试
type Admission struct {
	registry *Registry
	peer     types.PeerID
	once     sync.Once
}

// Peer 返回目标节点
func (a *Admission) Peer() types.PeerID {
	return a.peer
}

// Release 以终态归还名额，重复调用无效
//
// Succeeded 清除该节点的冷却记录，Failed 记录失败时间；
// 非终态（尝试未真正开始）只归还名额。
func (a *Admission) Release(final State) {
	a.once.Do(func() {
		a.registry.release(a.peer, final)
	})
}
