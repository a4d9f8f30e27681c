// Package timeout defines centralized timeout constants for guidance operations.
// Package timeout 定义引导流程的集中式超时常量。
package timeout

import "time"

// Collaborator call timeout constants.
// 外部协作者调用超时常量。
const (
	// ReasonerCallTimeout bounds one Reasoner invocation, retries excluded.
	// ReasonerCallTimeout 是单次 Reasoner 调用的超时时间（不含重试）。
	ReasonerCallTimeout = 15 * time.Second

	// LookupTimeout bounds one protocol lookup.
	// LookupTimeout 是单次协议查询的超时时间。
	LookupTimeout = 5 * time.Second

	// ReportTimeout bounds report prose generation on termination.
	// ReportTimeout 是会话结束时生成报告叙述的超时时间。
	ReportTimeout = 30 * time.Second

	// RetryBackoff is the wait before the single retry of a transient failure.
	// RetryBackoff 是瞬时失败单次重试前的等待时间。
	RetryBackoff = 300 * time.Millisecond

	// ProtocolCacheTTL is how long a fetched protocol is served from memory.
	// ProtocolCacheTTL 是已获取协议在内存中的缓存时间。
	ProtocolCacheTTL = time.Minute

	// ObserverTimeout bounds one observer delivery attempt.
	// ObserverTimeout 是单次观察者投递的超时时间。
	ObserverTimeout = 2 * time.Second
)

// Orchestration policy defaults.
// 编排策略默认值。
const (
	// DefaultConfidenceThreshold is the minimum classifier confidence to act on.
	// DefaultConfidenceThreshold 是可据以行动的最低分类置信度。
	DefaultConfidenceThreshold = 0.6

	// DefaultClarificationCap is the number of consecutive clarifications tolerated before escalation.
	// DefaultClarificationCap 是升级前允许的连续澄清次数。
	DefaultClarificationCap = 3

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
