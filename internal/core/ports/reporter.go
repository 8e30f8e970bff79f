package ports

import "go.trai.ch/knot/internal/core/domain"

//go:generate mockgen -source=reporter.go -destination=mocks/mock_reporter.go -package=mocks

// Reporter publishes check results to the user.
type Reporter interface {
	// Publish writes the result lines of one check.
	Publish(revision domain.Revision, lines []string)
	// Metrics writes a counter dump.
	Metrics(counters []domain.Counter)
}

// CounterSource exposes internal counters for the metrics dump.
type CounterSource interface {
	Counters() []domain.Counter
}
