// ABOUTME: Weather data provider boundary for the weather conversation
// ABOUTME: Results are opaque to the FSM; only name and summary matter

package weather

import "context"

// Conditions is one answer from the provider. SubjectID is the provider's
// stable city identifier, used for history dedup and alert uniqueness.
type Conditions struct {
	SubjectID   string
	SubjectName string
	Summary     string
}

// Provider fetches weather data from an external collaborator. Any error is
// treated as transient: the conversation stays where it is and the user may
// simply retry.
type Provider interface {
	Current(ctx context.Context, query, units string) (*Conditions, error)
	CurrentByLocation(ctx context.Context, lat, lon float64, units string) (*Conditions, error)
	Forecast(ctx context.Context, query, units string) (*Conditions, error)
}
