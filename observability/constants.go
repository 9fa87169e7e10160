package observability

// Metric name prefixes
const (
	MetricPrefix = "scrimbet"
)

// Metric names
const (
	// Ledger metrics
	BalanceTransactionsTotal = MetricPrefix + ".balance.transactions_total"
	BalanceVolumeTotal       = MetricPrefix + ".balance.volume_total"

	// Wager metrics
	WagersActive       = MetricPrefix + ".wagers.active"
	WagersSettledTotal = MetricPrefix + ".wagers.settled_total"
	WagerPayoutTotal   = MetricPrefix + ".wagers.payout_total"

	// Match metrics
	MatchTransitionsTotal = MetricPrefix + ".matches.transitions_total"
	MatchBetsTotal        = MetricPrefix + ".matches.bets_total"
	MatchPoolSize         = MetricPrefix + ".matches.pool_size"
)

// Label keys
const (
	LabelType   = "type"
	LabelGame   = "game"
	LabelStatus = "status"
	LabelReason = "reason"
	LabelState  = "state"
)

// Exporter types
const (
	ExporterNone    = "none"
	ExporterConsole = "console"
)

const serviceName = "scrimbet"
